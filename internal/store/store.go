// ABOUTME: Room record store interface and shared record types
// ABOUTME: Per-room track, playing flag, reference start, and queue
package store

import (
	"context"
	"errors"
	"time"

	"github.com/syncroom/syncroom/internal/playback"
)

var (
	// ErrRoomNotFound is returned when no record exists for a room ID.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned when creating a room whose ID is taken.
	ErrRoomExists = errors.New("room already exists")
)

// Track describes a playable song.
type Track struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist,omitempty"`
	Album      string  `json:"album,omitempty"`
	Duration   float64 `json:"duration"` // seconds, 0 if unknown
	ArtworkURL string  `json:"artwork_url,omitempty"`
}

// Room is the shared record for one listening session.
type Room struct {
	ID        string
	Name      string
	HostID    string
	Playback  playback.State
	Current   *Track
	Queue     []Track
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers never share the queue or pointers.
func (r Room) Clone() Room {
	c := r
	if r.Current != nil {
		t := *r.Current
		c.Current = &t
	}
	if r.Playback.ReferenceStart != nil {
		ref := *r.Playback.ReferenceStart
		c.Playback.ReferenceStart = &ref
	}
	if r.Queue != nil {
		c.Queue = make([]Track, len(r.Queue))
		copy(c.Queue, r.Queue)
	}
	return c
}

// Store persists room records. Updates are last-write-wins.
type Store interface {
	CreateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	SaveRoom(ctx context.Context, room Room) error
	DeleteRoom(ctx context.Context, id string) error
	Close() error
}
