// ABOUTME: Tests for the music library
// ABOUTME: Covers scanning, metadata parsing, HTTP serving, and watching
package library

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/syncroom/syncroom/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func newTestLibrary(t *testing.T) (*Library, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Band - Song.mp3"), "not really audio")
	writeFile(t, filepath.Join(dir, "Album", "Other Band - Ballad.MP3"), "not really audio")
	writeFile(t, filepath.Join(dir, "Album", "cover.jpg"), "jpeg bytes")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	lib, err := New(dir)
	if err != nil {
		t.Fatalf("failed to create library: %v", err)
	}
	if err := lib.Scan(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	return lib, dir
}

func TestNewRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "x.mp3")
	writeFile(t, file, "")

	if _, err := New(file); err == nil {
		t.Error("expected error for non-directory root")
	}
	if _, err := New(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestTrackFromPath(t *testing.T) {
	tests := []struct {
		rel  string
		want store.Track
	}{
		{"Band - Song.mp3", store.Track{Title: "Song", Artist: "Band"}},
		{"Untitled.mp3", store.Track{Title: "Untitled"}},
		{filepath.Join("Greatest Hits", "A - B - C.mp3"), store.Track{Title: "B - C", Artist: "A", Album: "Greatest Hits"}},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got := trackFromPath(tt.rel)
			if got.Title != tt.want.Title || got.Artist != tt.want.Artist || got.Album != tt.want.Album {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
			if got.ID != TrackID(tt.rel) {
				t.Errorf("expected ID %s, got %s", TrackID(tt.rel), got.ID)
			}
		})
	}
}

func TestTrackIDStable(t *testing.T) {
	if TrackID("a/b.mp3") != TrackID("a/b.mp3") {
		t.Error("track ID should be deterministic")
	}
	if TrackID("a/b.mp3") == TrackID("a/c.mp3") {
		t.Error("different paths should have different IDs")
	}
	if len(TrackID("x.mp3")) != 16 {
		t.Errorf("expected 16 hex chars, got %q", TrackID("x.mp3"))
	}
}

func TestScan(t *testing.T) {
	lib, dir := newTestLibrary(t)

	tracks := lib.Tracks()
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d: %+v", len(tracks), tracks)
	}
	if tracks[0].Artist != "Band" || tracks[1].Artist != "Other Band" {
		t.Errorf("expected tracks sorted by artist, got %+v", tracks)
	}

	id := TrackID("Band - Song.mp3")
	track, ok := lib.Lookup(id)
	if !ok || track.Title != "Song" {
		t.Fatalf("lookup failed: %+v %v", track, ok)
	}
	if track.ArtworkURL != "" {
		t.Errorf("expected no artwork for root track, got %s", track.ArtworkURL)
	}

	path, ok := lib.Path(id)
	if !ok || path != filepath.Join(dir, "Band - Song.mp3") {
		t.Errorf("unexpected path %q", path)
	}

	ballad, _ := lib.Lookup(TrackID(filepath.Join("Album", "Other Band - Ballad.MP3")))
	if ballad.ArtworkURL != "/artwork/"+ballad.ID {
		t.Errorf("expected artwork URL, got %q", ballad.ArtworkURL)
	}

	if _, ok := lib.Lookup("missing"); ok {
		t.Error("expected lookup miss")
	}
}

func TestHTTPRoutes(t *testing.T) {
	lib, _ := newTestLibrary(t)
	mux := http.NewServeMux()
	lib.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/tracks")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	var tracks []store.Track
	if err := json.NewDecoder(resp.Body).Decode(&tracks); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if len(tracks) != 2 {
		t.Errorf("expected 2 tracks, got %d", len(tracks))
	}

	resp, err = http.Get(srv.URL + "/tracks/" + TrackID("Band - Song.mp3"))
	if err != nil {
		t.Fatalf("track request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "not really audio" {
		t.Errorf("unexpected track response %d %q", resp.StatusCode, body)
	}

	resp, _ = http.Get(srv.URL + "/tracks/nope")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp, _ = http.Get(srv.URL + "/artwork/" + TrackID(filepath.Join("Album", "Other Band - Ballad.MP3")))
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "jpeg bytes" {
		t.Errorf("unexpected artwork response %d %q", resp.StatusCode, body)
	}
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	lib, dir := newTestLibrary(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lib.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register directories
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "New - Arrival.mp3"), "fresh")

	id := TrackID("New - Arrival.mp3")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := lib.Lookup(id); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("new file was not indexed")
}
