// ABOUTME: Tests for the track cache
// ABOUTME: Tests HTTP download, caching, and error handling
package trackcache

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func newCache(t *testing.T, handler http.HandlerFunc) *Cache {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(t.TempDir(), strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func TestNewCreatesDir(t *testing.T) {
	dir := t.TempDir() + "/nested/tracks"
	c, err := New(dir, "localhost:8937")
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	if _, err := os.Stat(c.Dir()); err != nil {
		t.Errorf("cache directory was not created: %v", err)
	}
}

func TestGetDownloads(t *testing.T) {
	c := newCache(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracks/abc123" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("fake mp3 data"))
	})

	path, err := c.Get("abc123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read cached track: %v", err)
	}
	if string(content) != "fake mp3 data" {
		t.Errorf("expected 'fake mp3 data', got %q", content)
	}
	if !c.Has("abc123") {
		t.Error("expected track to be cached")
	}
}

func TestGetCaches(t *testing.T) {
	var requests int32
	c := newCache(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte("data"))
	})

	var wg sync.WaitGroup
	paths := make([]string, 4)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Get("same")
			if err != nil {
				t.Errorf("get failed: %v", err)
			}
			paths[i] = p
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
	for _, p := range paths[1:] {
		if p != paths[0] {
			t.Errorf("expected same path, got %s and %s", paths[0], p)
		}
	}
}

func TestGetHTTPError(t *testing.T) {
	c := newCache(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	if _, err := c.Get("missing"); err == nil {
		t.Fatal("expected error for 404")
	}
	if c.Has("missing") {
		t.Error("failed download should not be cached")
	}

	entries, _ := os.ReadDir(c.Dir())
	if len(entries) != 0 {
		t.Errorf("expected empty cache dir, found %d entries", len(entries))
	}
}

func TestGetEmptyID(t *testing.T) {
	c, err := New(t.TempDir(), "localhost:1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestCleanup(t *testing.T) {
	c := newCache(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	})
	if _, err := c.Get("x"); err != nil {
		t.Fatal(err)
	}
	if err := c.Cleanup(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if _, err := os.Stat(c.Dir()); !os.IsNotExist(err) {
		t.Error("cache dir should be removed")
	}
}
