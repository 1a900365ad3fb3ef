// ABOUTME: Local music library of MP3 files
// ABOUTME: Scans a directory tree, measures durations, and watches for changes
package library

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hajimehoshi/go-mp3"
	"github.com/syncroom/syncroom/internal/store"
)

// artworkNames are checked, in order, next to each track.
var artworkNames = []string{"cover.jpg", "cover.png", "folder.jpg", "folder.png"}

// Library indexes the MP3 files under a root directory.
type Library struct {
	root string

	mu      sync.RWMutex
	tracks  map[string]store.Track
	paths   map[string]string // track ID -> absolute path
	artwork map[string]string // track ID -> absolute artwork path
}

// New creates a library rooted at dir. Call Scan to populate it.
func New(dir string) (*Library, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve library root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("library root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", abs)
	}

	return &Library{
		root:    abs,
		tracks:  make(map[string]store.Track),
		paths:   make(map[string]string),
		artwork: make(map[string]string),
	}, nil
}

// Root returns the absolute library directory.
func (l *Library) Root() string {
	return l.root
}

// Scan walks the root and replaces the index.
func (l *Library) Scan() error {
	tracks := make(map[string]store.Track)
	paths := make(map[string]string)
	artwork := make(map[string]string)

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("Library: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp3") {
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return nil
		}

		track := trackFromPath(rel)
		duration, err := measureDuration(path)
		if err != nil {
			log.Printf("Library: cannot measure %s: %v", rel, err)
		}
		track.Duration = duration

		if art := findArtwork(filepath.Dir(path)); art != "" {
			artwork[track.ID] = art
			track.ArtworkURL = "/artwork/" + track.ID
		}

		tracks[track.ID] = track
		paths[track.ID] = path
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan library: %w", err)
	}

	l.mu.Lock()
	l.tracks = tracks
	l.paths = paths
	l.artwork = artwork
	l.mu.Unlock()

	log.Printf("Library: indexed %d tracks under %s", len(tracks), l.root)
	return nil
}

// Lookup returns the track with the given ID.
func (l *Library) Lookup(id string) (store.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tracks[id]
	return t, ok
}

// Path returns the file path of a track.
func (l *Library) Path(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.paths[id]
	return p, ok
}

// ArtworkPath returns the artwork file for a track, if any.
func (l *Library) ArtworkPath(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.artwork[id]
	return p, ok
}

// Tracks returns all tracks sorted by artist, then title.
func (l *Library) Tracks() []store.Track {
	l.mu.RLock()
	tracks := make([]store.Track, 0, len(l.tracks))
	for _, t := range l.tracks {
		tracks = append(tracks, t)
	}
	l.mu.RUnlock()

	sort.Slice(tracks, func(i, j int) bool {
		if tracks[i].Artist != tracks[j].Artist {
			return tracks[i].Artist < tracks[j].Artist
		}
		return tracks[i].Title < tracks[j].Title
	})
	return tracks
}

// Watch rescans the library whenever files change under the root. It blocks
// until ctx is cancelled.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := l.watchDirs(watcher); err != nil {
		return err
	}

	const debounce = 500 * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Library: watch error: %v", err)

		case <-timer.C:
			if err := l.Scan(); err != nil {
				log.Printf("Library: rescan failed: %v", err)
			}
		}
	}
}

func (l *Library) watchDirs(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// TrackID derives a stable ID from a library-relative path.
func TrackID(rel string) string {
	hash := sha256.Sum256([]byte(filepath.ToSlash(rel)))
	return fmt.Sprintf("%x", hash[:8])
}

// trackFromPath fills in metadata from an "Artist - Title.mp3" file name and
// its parent directory.
func trackFromPath(rel string) store.Track {
	base := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	track := store.Track{
		ID:    TrackID(rel),
		Title: strings.TrimSpace(base),
	}

	if artist, title, ok := strings.Cut(base, " - "); ok {
		track.Artist = strings.TrimSpace(artist)
		track.Title = strings.TrimSpace(title)
	}

	if dir := filepath.Dir(rel); dir != "." {
		track.Album = filepath.Base(dir)
	}
	return track
}

// measureDuration decodes the MP3 header to compute its length in seconds.
func measureDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}

	length := dec.Length()
	if length <= 0 || dec.SampleRate() <= 0 {
		return 0, nil
	}
	// go-mp3 always produces 16-bit stereo: 4 bytes per sample frame.
	return float64(length) / float64(dec.SampleRate()*4), nil
}

func findArtwork(dir string) string {
	for _, name := range artworkNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
