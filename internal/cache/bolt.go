package cache

import (
	"context"
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/eugener/aside/internal/config"
)

// Bolt is a persistent single-file store backed by bbolt.
//
// Record layout: 8-byte big-endian unix-millisecond expiry || raw value.
// Expired records read as absent and are removed on the next write to the key
// or on Delete.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBolt opens (or creates) the database at cfg.Path.
func OpenBolt(cfg config.BoltConfig) (*Bolt, error) {
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	bucket := []byte("cache")
	if cfg.Bucket != "" {
		bucket = []byte(cfg.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db, bucket: bucket}, nil
}

func live(rec []byte, now time.Time) bool {
	if len(rec) < 8 {
		return false
	}
	return now.UnixMilli() < int64(binary.BigEndian.Uint64(rec[:8]))
}

func (b *Bolt) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		rec := tx.Bucket(b.bucket).Get([]byte(key))
		if rec == nil || !live(rec, time.Now()) {
			return nil
		}
		// rec is only valid for the life of the transaction.
		out = append([]byte(nil), rec[8:]...)
		return nil
	})
	if err != nil {
		return nil, false, unavailable("bolt get", err)
	}
	return out, out != nil, nil
}

func (b *Bolt) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	rec := make([]byte, 8+len(val))
	binary.BigEndian.PutUint64(rec[:8], uint64(time.Now().Add(ttl).UnixMilli()))
	copy(rec[8:], val)

	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), rec)
	})
	if err != nil {
		return unavailable("bolt put", err)
	}
	return nil
}

func (b *Bolt) Delete(_ context.Context, key string) (bool, error) {
	var removed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		rec := bk.Get([]byte(key))
		if rec == nil {
			return nil
		}
		removed = live(rec, time.Now())
		return bk.Delete([]byte(key))
	})
	if err != nil {
		return false, unavailable("bolt delete", err)
	}
	return removed, nil
}

func (b *Bolt) Ping(context.Context) error {
	if err := b.db.View(func(*bolt.Tx) error { return nil }); err != nil {
		return unavailable("bolt ping", err)
	}
	return nil
}

// Close closes the database file. Safe to call on a nil store.
func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
