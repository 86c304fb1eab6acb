package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aside.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("PORT", "")

	path := writeConfig(t, `
server:
  addr: ":9090"
  read_timeout: 10s
store:
  driver: memory
  memory:
    max_size: 500
cache:
  default_ttl_s: 120
  codec: msgpack
sources:
  - name: placeholder
    base_url: https://jsonplaceholder.typicode.com
    path: /{key}
    extract: data
routes:
  - prefix: ""
    source: placeholder
warm:
  - key: posts
    ttl_s: 60
    interval: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read_timeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("write_timeout = %v, want default 60s", cfg.Server.WriteTimeout)
	}
	if cfg.Store.Driver != DriverMemory || cfg.Store.Memory.MaxSize != 500 {
		t.Errorf("store = %+v, want memory/500", cfg.Store)
	}
	if cfg.Store.KeyPrefix != "aside:" {
		t.Errorf("key_prefix = %q, want default", cfg.Store.KeyPrefix)
	}
	if cfg.Cache.DefaultTTLs != 120 || cfg.Cache.Codec != "msgpack" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].ResolvedType() != "http" {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
	if cfg.Sources[0].Extract != "data" {
		t.Errorf("extract = %q, want %q", cfg.Sources[0].Extract, "data")
	}
	if len(cfg.Warm) != 1 || cfg.Warm[0].Interval != 30*time.Second {
		t.Errorf("warm = %+v", cfg.Warm)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":8000")
	}
	if cfg.Store.Driver != DriverRedis {
		t.Errorf("driver = %q, want redis", cfg.Store.Driver)
	}
	if cfg.Cache.DefaultTTLs != 60 {
		t.Errorf("default ttl = %d, want 60", cfg.Cache.DefaultTTLs)
	}
}

func TestLoad_PortOverride(t *testing.T) {
	t.Setenv("PORT", "7777")

	cfg, err := Load(writeConfig(t, "server:\n  addr: \":9090\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":7777")
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")
	t.Setenv("PORT", "")

	cfg, err := Load(writeConfig(t, "store:\n  redis:\n    password: ${TEST_REDIS_PASSWORD}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Redis.Password != "s3cret" {
		t.Errorf("password = %q, want %q", cfg.Store.Redis.Password, "s3cret")
	}

	result := expandEnv([]byte("key: ${ASIDE_SURELY_UNSET_VAR}"))
	if string(result) != "key: ${ASIDE_SURELY_UNSET_VAR}" {
		t.Errorf("unset var should be left as-is, got %q", result)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store.Driver = "memcached" },
			wantErr: "store.driver",
		},
		{
			name:    "unknown codec",
			mutate:  func(c *Config) { c.Cache.Codec = "xml" },
			wantErr: "cache.codec",
		},
		{
			name:    "zero default ttl",
			mutate:  func(c *Config) { c.Cache.DefaultTTLs = 0 },
			wantErr: "default_ttl_s",
		},
		{
			name: "route to unknown source",
			mutate: func(c *Config) {
				c.Routes = []RouteEntry{{Prefix: "posts", Source: "ghost"}}
			},
			wantErr: "unknown source",
		},
		{
			name: "http source without base url",
			mutate: func(c *Config) {
				c.Sources = []SourceEntry{{Name: "a"}}
			},
			wantErr: "base_url",
		},
		{
			name: "duplicate source",
			mutate: func(c *Config) {
				c.Sources = []SourceEntry{
					{Name: "a", Type: "static", Data: "1"},
					{Name: "a", Type: "static", Data: "2"},
				}
			},
			wantErr: "duplicate",
		},
		{
			name: "unknown source type",
			mutate: func(c *Config) {
				c.Sources = []SourceEntry{{Name: "a", Type: "grpc"}}
			},
			wantErr: "unknown type",
		},
		{
			name: "warm without key",
			mutate: func(c *Config) {
				c.Warm = []WarmEntry{{TTLs: 10}}
			},
			wantErr: "warm",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
