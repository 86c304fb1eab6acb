package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	aside "github.com/eugener/aside/internal"
	"github.com/eugener/aside/internal/config"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestRedis_GetSetDelete(t *testing.T) {
	t.Parallel()
	r, mr := newTestRedis(t)
	ctx := context.Background()

	if _, ok, err := r.Get(ctx, "posts"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v, want miss", ok, err)
	}

	if err := r.Set(ctx, "posts", []byte(`[{"id":1}]`), 60*time.Second); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("posts"); ttl != 60*time.Second {
		t.Errorf("ttl = %v, want 60s", ttl)
	}

	val, ok, err := r.Get(ctx, "posts")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(val) != `[{"id":1}]` {
		t.Errorf("value = %s", val)
	}

	removed, err := r.Delete(ctx, "posts")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v, want true", removed, err)
	}
	removed, err = r.Delete(ctx, "posts")
	if err != nil || removed {
		t.Errorf("second delete: removed=%v err=%v, want false", removed, err)
	}
}

func TestRedis_Expiry(t *testing.T) {
	t.Parallel()
	r, mr := newTestRedis(t)
	ctx := context.Background()

	r.Set(ctx, "k", []byte("v"), 30*time.Second)
	mr.FastForward(31 * time.Second)

	if _, ok, _ := r.Get(ctx, "k"); ok {
		t.Error("entry should have expired")
	}
}

func TestRedis_Unavailable(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	r := NewRedisFromClient(client)
	mr.Close()

	ctx := context.Background()
	if _, _, err := r.Get(ctx, "k"); !errors.Is(err, aside.ErrStoreUnavailable) {
		t.Errorf("get err = %v, want ErrStoreUnavailable", err)
	}
	if err := r.Set(ctx, "k", []byte("v"), time.Second); !errors.Is(err, aside.ErrStoreUnavailable) {
		t.Errorf("set err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := r.Delete(ctx, "k"); !errors.Is(err, aside.ErrStoreUnavailable) {
		t.Errorf("delete err = %v, want ErrStoreUnavailable", err)
	}
	if err := r.Ping(ctx); !errors.Is(err, aside.ErrStoreUnavailable) {
		t.Errorf("ping err = %v, want ErrStoreUnavailable", err)
	}
}

func TestNewRedis_BadURL(t *testing.T) {
	t.Parallel()
	if _, err := NewRedis(config.RedisConfig{URL: "http://nope"}); err == nil {
		t.Fatal("expected error for non-redis URL")
	}
}

func TestNewRedis_Unreachable(t *testing.T) {
	t.Parallel()
	r, err := NewRedis(config.RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewRedis should not dial: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	if err := r.Ping(context.Background()); !errors.Is(err, aside.ErrStoreUnavailable) {
		t.Errorf("ping err = %v, want ErrStoreUnavailable", err)
	}
}
