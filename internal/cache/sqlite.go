package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite is a persistent store backed by SQLite via modernc.org/sqlite.
// Rows past expires_at read as absent; DeleteExpired reclaims them.
type SQLite struct {
	write *sql.DB // single-writer connection
	read  *sql.DB // multi-reader pool
}

// OpenSQLite opens a SQLite database, runs migrations, and returns a store.
func OpenSQLite(dsn string) (*SQLite, error) {
	pragmas := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	// For :memory: databases, use shared cache so read/write pools share the same data
	var fullDSN string
	if dsn == ":memory:" {
		fullDSN = "file::memory:?mode=memory&cache=shared&" + pragmas
	} else {
		fullDSN = "file:" + dsn + "?" + pragmas
	}

	write, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read db: %w", err)
	}
	read.SetMaxOpenConns(max(4, runtime.NumCPU()))

	if err := runMigrations(write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLite{write: write, read: read}, nil
}

// runMigrations applies embedded SQL migrations using goose.
func runMigrations(db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(context.Background())
	return err
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	err := s.read.QueryRowContext(ctx,
		`SELECT value FROM entries WHERE key=? AND expires_at>?`,
		key, time.Now().UnixMilli(),
	).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("sqlite get", err)
	}
	return val, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at`,
		key, val, time.Now().Add(ttl).UnixMilli(),
	)
	if err != nil {
		return unavailable("sqlite set", err)
	}
	return nil
}

// Delete removes key. An expired row is deleted too but reported as absent.
func (s *SQLite) Delete(ctx context.Context, key string) (bool, error) {
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM entries WHERE key=? AND expires_at>?`, key, time.Now().UnixMilli(),
	)
	if err != nil {
		return false, unavailable("sqlite delete", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("sqlite delete", err)
	}
	if n == 0 {
		if _, err := s.write.ExecContext(ctx, `DELETE FROM entries WHERE key=?`, key); err != nil {
			return false, unavailable("sqlite delete", err)
		}
	}
	return n > 0, nil
}

// DeleteExpired removes rows whose expiry has passed and returns how many.
func (s *SQLite) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM entries WHERE expires_at<=?`, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, unavailable("sqlite sweep", err)
	}
	return result.RowsAffected()
}

// Ping verifies database connectivity by pinging the read pool.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.read.PingContext(ctx); err != nil {
		return unavailable("sqlite ping", err)
	}
	return nil
}

// Close closes both database connections.
func (s *SQLite) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}
