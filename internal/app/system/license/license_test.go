package license

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type memCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemCache() *memCache {
	return &memCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func licenseServer(t *testing.T, body string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("key") != "abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestChecker_EmptyKey(t *testing.T) {
	srv, calls := licenseServer(t, `{"valid":true}`, http.StatusOK)
	c := NewChecker(Config{URL: srv.URL}, nil, zap.NewNop())
	if c.Valid(context.Background()) {
		t.Error("empty key should be invalid")
	}
	if calls.Load() != 0 {
		t.Error("empty key should not reach the server")
	}
}

func TestChecker_Uncached(t *testing.T) {
	srv, calls := licenseServer(t, `{"valid":true,"plan":"pro"}`, http.StatusOK)
	c := NewChecker(Config{Key: "abc", URL: srv.URL}, nil, zap.NewNop())
	for i := 0; i < 2; i++ {
		if !c.Valid(context.Background()) {
			t.Fatal("Valid() = false, want true")
		}
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2 without cache", calls.Load())
	}
}

func TestChecker_CachesVerdict(t *testing.T) {
	srv, calls := licenseServer(t, `{"valid":false}`, http.StatusOK)
	cache := newMemCache()
	c := NewChecker(Config{Key: "abc", URL: srv.URL, CacheTTL: 2 * time.Minute}, cache, zap.NewNop())

	for i := 0; i < 3; i++ {
		if c.Valid(context.Background()) {
			t.Fatal("Valid() = true, want false")
		}
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if cache.ttls[cacheKey("abc")] != 2*time.Minute {
		t.Errorf("cache ttl = %v", cache.ttls[cacheKey("abc")])
	}
}

func TestChecker_CacheKeyHidesLicenseKey(t *testing.T) {
	srv, _ := licenseServer(t, `{"valid":true}`, http.StatusOK)
	cache := newMemCache()
	c := NewChecker(Config{Key: "abc", URL: srv.URL}, cache, zap.NewNop())
	c.Valid(context.Background())

	if len(cache.values) != 1 {
		t.Fatalf("cache entries = %d, want 1", len(cache.values))
	}
	for k := range cache.values {
		if strings.Contains(k, "abc") {
			t.Errorf("cache key %q contains the license key", k)
		}
		if !strings.HasPrefix(k, cacheKeyPrefix) || len(k) != len(cacheKeyPrefix)+64 {
			t.Errorf("cache key %q is not a prefixed sha256 digest", k)
		}
	}
}

func TestChecker_ServerFailure(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"server error", `{"valid":true}`, http.StatusInternalServerError},
		{"bad json", `not json`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := licenseServer(t, tt.body, tt.status)
			cache := newMemCache()
			c := NewChecker(Config{Key: "abc", URL: srv.URL}, cache, zap.NewNop())
			if c.Valid(context.Background()) {
				t.Error("Valid() = true on failure")
			}
			if len(cache.values) != 0 {
				t.Error("failures should not be cached")
			}
		})
	}
}

func TestChecker_CacheErrorFallsThrough(t *testing.T) {
	srv, calls := licenseServer(t, `{"valid":true}`, http.StatusOK)
	cache := newMemCache()
	cache.err = errors.New("redis down")
	c := NewChecker(Config{Key: "abc", URL: srv.URL}, cache, zap.NewNop())
	if !c.Valid(context.Background()) {
		t.Error("Valid() = false, want true from server")
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d", calls.Load())
	}
}

func TestChecker_Refresh(t *testing.T) {
	srv, _ := licenseServer(t, `{"valid":true}`, http.StatusOK)
	cache := newMemCache()
	cache.values[cacheKey("abc")] = "0"
	c := NewChecker(Config{Key: "abc", URL: srv.URL}, cache, zap.NewNop())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !c.Valid(context.Background()) {
		t.Error("Refresh did not overwrite the cached verdict")
	}
}
