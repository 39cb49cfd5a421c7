package cache

import (
	"testing"
	"time"

	"vfs-go/internal/config"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()

	if _, ok, _ := c.Get("/index.html"); ok {
		t.Fatal("Get() hit on empty cache")
	}

	for _, p := range []string{"/index.html", "/news/a.html", "/news/b.html"} {
		if err := c.Put(p, []byte("rendered "+p)); err != nil {
			t.Fatalf("Put(%s) error = %v", p, err)
		}
	}

	data, ok, err := c.Get("/news/a.html")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want hit", ok, err)
	}
	if string(data) != "rendered /news/a.html" {
		t.Errorf("Get() = %q", data)
	}

	t.Run("invalidate drops only the given paths", func(t *testing.T) {
		if err := c.Invalidate([]string{"/news/a.html", "/missing.html"}); err != nil {
			t.Fatalf("Invalidate() error = %v", err)
		}
		if _, ok, _ := c.Get("/news/a.html"); ok {
			t.Error("invalidated entry still present")
		}
		if c.Len() != 2 {
			t.Errorf("Len() = %d, want 2", c.Len())
		}
	})

	t.Run("clear drops everything", func(t *testing.T) {
		if err := c.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if c.Len() != 0 {
			t.Errorf("Len() = %d, want 0", c.Len())
		}
	})
}

func TestMemoryCache_PutCopiesData(t *testing.T) {
	c := NewMemoryCache()
	data := []byte("abc")
	if err := c.Put("/a", data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data[0] = 'x'

	got, _, _ := c.Get("/a")
	if string(got) != "abc" {
		t.Errorf("Get() = %q, want %q", got, "abc")
	}
}

func TestRedisCache_Key(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "/index.html", "vfs:/index.html"},
		{"site-a:", "/news/", "site-a:/news/"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			c := NewRedisCache("127.0.0.1:0", 0, tt.prefix, time.Minute)
			t.Cleanup(func() { c.Close() })

			if got := c.key(tt.path); got != tt.want {
				t.Errorf("key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedisCache_InvalidateNothing(t *testing.T) {
	c := NewRedisCache("127.0.0.1:0", 0, "", time.Minute)
	t.Cleanup(func() { c.Close() })

	if err := c.Invalidate(nil); err != nil {
		t.Errorf("Invalidate(nil) error = %v", err)
	}
}

func TestNewCacheFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.CacheConfig
		wantNil bool
		wantErr bool
	}{
		{name: "default", cfg: config.CacheConfig{}, wantNil: true},
		{name: "none", cfg: config.CacheConfig{Type: "none"}, wantNil: true},
		{name: "memory", cfg: config.CacheConfig{Type: "memory"}},
		{name: "redis", cfg: config.CacheConfig{Type: "redis", RedisAddr: "127.0.0.1:6379", RedisPrefix: "t:"}},
		{name: "redis without addr", cfg: config.CacheConfig{Type: "redis"}, wantNil: true, wantErr: true},
		{name: "unknown", cfg: config.CacheConfig{Type: "memcached"}, wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCacheFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCacheFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewCacheFromConfig() nil = %v, wantNil %v", got == nil, tt.wantNil)
			}
			if rc, ok := got.(*RedisCache); ok {
				rc.Close()
			}
		})
	}
}
