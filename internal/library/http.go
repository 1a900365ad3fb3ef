// ABOUTME: HTTP handlers for the music library
// ABOUTME: Serves the track list, track files, and artwork to listeners
package library

import (
	"encoding/json"
	"log"
	"net/http"
)

// Routes registers the library endpoints on mux.
func (l *Library) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /tracks", l.handleList)
	mux.HandleFunc("GET /tracks/{id}", l.handleTrack)
	mux.HandleFunc("GET /artwork/{id}", l.handleArtwork)
}

func (l *Library) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(l.Tracks()); err != nil {
		log.Printf("Library: encode track list: %v", err)
	}
}

func (l *Library) handleTrack(w http.ResponseWriter, r *http.Request) {
	path, ok := l.Path(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

func (l *Library) handleArtwork(w http.ResponseWriter, r *http.Request) {
	path, ok := l.ArtworkPath(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
