// ABOUTME: Local cache of track files fetched from a room server
// ABOUTME: Downloads /tracks/{id} once and serves later plays from disk
package trackcache

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache manages track downloads
type Cache struct {
	dir     string
	baseURL string
	client  *http.Client

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// New creates a cache for the server at addr (host:port). An empty dir uses
// a directory under os.TempDir.
func New(dir, addr string) (*Cache, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "syncroom-tracks")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Cache{
		dir:      dir,
		baseURL:  "http://" + addr,
		client:   &http.Client{Timeout: 2 * time.Minute},
		inflight: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// Get returns a local path for trackID, downloading it on first use
func (c *Cache) Get(trackID string) (string, error) {
	if trackID == "" {
		return "", fmt.Errorf("empty track id")
	}

	lock := c.lockFor(trackID)
	lock.Lock()
	defer lock.Unlock()

	cachePath := c.pathFor(trackID)
	if _, err := os.Stat(cachePath); err == nil {
		log.Printf("Track cache hit: %s", trackID)
		return cachePath, nil
	}

	u := c.baseURL + "/tracks/" + url.PathEscape(trackID)
	log.Printf("Downloading track: %s", u)

	resp, err := c.client.Get(u)
	if err != nil {
		return "", fmt.Errorf("failed to download track: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("track download failed: HTTP %d", resp.StatusCode)
	}

	// Write to a temp file first so a partial download is never served
	tmp, err := os.CreateTemp(c.dir, "partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save track: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save track: %w", err)
	}
	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store track: %w", err)
	}

	log.Printf("Track saved: %s", cachePath)
	return cachePath, nil
}

// Has reports whether trackID is already on disk
func (c *Cache) Has(trackID string) bool {
	_, err := os.Stat(c.pathFor(trackID))
	return err == nil
}

// Cleanup removes all cached tracks
func (c *Cache) Cleanup() error {
	return os.RemoveAll(c.dir)
}

func (c *Cache) lockFor(trackID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.inflight[trackID]
	if !ok {
		lock = &sync.Mutex{}
		c.inflight[trackID] = lock
	}
	return lock
}

// pathFor keys files by server and track so two servers never collide
func (c *Cache) pathFor(trackID string) string {
	hash := sha256.Sum256([]byte(c.baseURL + "/" + trackID))
	return filepath.Join(c.dir, fmt.Sprintf("%x.mp3", hash[:8]))
}
