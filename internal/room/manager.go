// ABOUTME: Room lifecycle, host-only playback control, and update fan-out
// ABOUTME: Mutations go through the injected store; subscribers get copies
package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/syncroom/syncroom/internal/playback"
	"github.com/syncroom/syncroom/internal/store"
)

var (
	// ErrNotHost is returned when a non-host tries to control playback.
	ErrNotHost = errors.New("only the host can do that")
	// ErrNothingToPlay is returned when play has no track and the queue is empty.
	ErrNothingToPlay = errors.New("nothing to play")
	// ErrTrackNotFound is returned when a track ID is not in the library.
	ErrTrackNotFound = errors.New("track not found")
)

// TrackResolver looks up track metadata by ID.
type TrackResolver interface {
	Lookup(id string) (store.Track, bool)
}

// Manager coordinates rooms stored in a Store.
type Manager struct {
	store  store.Store
	clock  clock.Clock
	tracks TrackResolver

	// mu serializes read-modify-write cycles against the store
	mu sync.Mutex

	subsMu sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch   chan store.Room
	once sync.Once
}

// New creates a room manager. tracks may be nil, in which case any track ID
// is accepted and used as its own title.
func New(s store.Store, clk clock.Clock, tracks TrackResolver) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		store:  s,
		clock:  clk,
		tracks: tracks,
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// Clock returns the manager's time source.
func (m *Manager) Clock() clock.Clock {
	return m.clock
}

// Create opens a new room hosted by hostID.
func (m *Manager) Create(ctx context.Context, name, hostID string) (store.Room, error) {
	if hostID == "" {
		return store.Room{}, fmt.Errorf("create room: missing host")
	}
	if name == "" {
		name = "Untitled room"
	}

	now := m.clock.Now()
	r := store.Room{
		ID:        uuid.New().String(),
		Name:      name,
		HostID:    hostID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.CreateRoom(ctx, r); err != nil {
		return store.Room{}, fmt.Errorf("create room: %w", err)
	}

	log.Printf("Room created: %s (%s) host=%s", r.Name, r.ID, hostID)
	return r, nil
}

// Get returns the current record for a room.
func (m *Manager) Get(ctx context.Context, roomID string) (store.Room, error) {
	return m.store.GetRoom(ctx, roomID)
}

// List returns all rooms, oldest first.
func (m *Manager) List(ctx context.Context) ([]store.Room, error) {
	return m.store.ListRooms(ctx)
}

// Close deletes a room and ends every subscription to it.
func (m *Manager) Close(ctx context.Context, roomID, by string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if r.HostID != by {
		return ErrNotHost
	}
	if err := m.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}

	m.subsMu.Lock()
	for sub := range m.subs[roomID] {
		sub.close()
	}
	delete(m.subs, roomID)
	m.subsMu.Unlock()

	log.Printf("Room closed: %s", roomID)
	return nil
}

// Play sets a track and starts it now. An empty trackID restarts the current
// track, or takes the next one from the queue if there is none.
func (m *Manager) Play(ctx context.Context, roomID, by, trackID string) (store.Room, error) {
	return m.update(ctx, roomID, by, func(r *store.Room) error {
		if trackID != "" {
			track, err := m.resolve(trackID)
			if err != nil {
				return err
			}
			r.Current = &track
		} else if r.Current == nil {
			if len(r.Queue) == 0 {
				return ErrNothingToPlay
			}
			next := r.Queue[0]
			r.Queue = r.Queue[1:]
			r.Current = &next
		}
		return r.Playback.Play(r.Current.ID, m.clock.Now())
	})
}

// Pause clears the room's playback.
func (m *Manager) Pause(ctx context.Context, roomID, by string) (store.Room, error) {
	return m.update(ctx, roomID, by, func(r *store.Room) error {
		r.Playback.Pause()
		return nil
	})
}

// Seek moves the running playback to seconds. The target is clamped to the
// track duration when it is known.
func (m *Manager) Seek(ctx context.Context, roomID, by string, seconds float64) (store.Room, error) {
	return m.update(ctx, roomID, by, func(r *store.Room) error {
		if r.Current != nil && r.Current.Duration > 0 && seconds > r.Current.Duration {
			seconds = r.Current.Duration
		}
		return r.Playback.Seek(seconds, m.clock.Now())
	})
}

// Enqueue appends a track to the room's queue.
func (m *Manager) Enqueue(ctx context.Context, roomID, by, trackID string) (store.Room, error) {
	return m.update(ctx, roomID, by, func(r *store.Room) error {
		track, err := m.resolve(trackID)
		if err != nil {
			return err
		}
		r.Queue = append(r.Queue, track)
		return nil
	})
}

// Skip starts the next queued track, or stops when the queue is empty.
func (m *Manager) Skip(ctx context.Context, roomID, by string) (store.Room, error) {
	return m.update(ctx, roomID, by, func(r *store.Room) error {
		m.advance(r)
		return nil
	})
}

// TransferHost hands playback control to another participant.
func (m *Manager) TransferHost(ctx context.Context, roomID, by, newHostID string) (store.Room, error) {
	return m.update(ctx, roomID, by, func(r *store.Room) error {
		if newHostID == "" {
			return fmt.Errorf("transfer host: missing new host")
		}
		r.HostID = newHostID
		return nil
	})
}

// AdvanceFinished moves every room whose current track has run past its
// duration on to the next queued track. It returns the rooms it changed.
func (m *Manager) AdvanceFinished(ctx context.Context) ([]store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms, err := m.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	var changed []store.Room
	for _, r := range rooms {
		if !r.Playback.IsPlaying || r.Current == nil || r.Current.Duration <= 0 {
			continue
		}
		if r.Playback.Offset(now) < r.Current.Duration {
			continue
		}

		m.advance(&r)
		r.UpdatedAt = now
		if err := m.store.SaveRoom(ctx, r); err != nil {
			log.Printf("Failed to advance room %s: %v", r.ID, err)
			continue
		}
		m.publish(r)
		changed = append(changed, r)
	}
	return changed, nil
}

// Subscribe returns a channel of room updates and a cancel func that must be
// called when the caller is done. The channel holds only the latest state;
// slow readers skip intermediate updates. It is closed on cancel or when the
// room is closed.
func (m *Manager) Subscribe(roomID string) (<-chan store.Room, func()) {
	sub := &subscriber{ch: make(chan store.Room, 1)}

	m.subsMu.Lock()
	if m.subs[roomID] == nil {
		m.subs[roomID] = make(map[*subscriber]struct{})
	}
	m.subs[roomID][sub] = struct{}{}
	m.subsMu.Unlock()

	cancel := func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if subs, ok := m.subs[roomID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(m.subs, roomID)
			}
		}
		sub.close()
	}
	return sub.ch, cancel
}

// Subscribers returns the number of live subscriptions to a room.
func (m *Manager) Subscribers(roomID string) int {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	return len(m.subs[roomID])
}

func (m *Manager) update(ctx context.Context, roomID, by string, fn func(*store.Room) error) (store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return store.Room{}, err
	}
	if r.HostID != by {
		return store.Room{}, ErrNotHost
	}

	if err := fn(&r); err != nil {
		return store.Room{}, err
	}
	r.UpdatedAt = m.clock.Now()

	if err := m.store.SaveRoom(ctx, r); err != nil {
		return store.Room{}, fmt.Errorf("save room: %w", err)
	}

	m.publish(r)
	return r.Clone(), nil
}

// advance pops the queue into the current slot and starts it, or stops.
// Entries that cannot be played are dropped.
func (m *Manager) advance(r *store.Room) {
	for len(r.Queue) > 0 {
		next := r.Queue[0]
		r.Queue = r.Queue[1:]
		if err := r.Playback.Play(next.ID, m.clock.Now()); err != nil {
			log.Printf("Room %s: dropping queued track %q: %v", r.ID, next.Title, err)
			continue
		}
		r.Current = &next
		return
	}
	r.Current = nil
	r.Playback = playback.State{}
}

func (m *Manager) resolve(trackID string) (store.Track, error) {
	if trackID == "" {
		return store.Track{}, ErrTrackNotFound
	}
	if m.tracks == nil {
		return store.Track{ID: trackID, Title: trackID}, nil
	}
	track, ok := m.tracks.Lookup(trackID)
	if !ok {
		return store.Track{}, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	return track, nil
}

func (m *Manager) publish(r store.Room) {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()

	for sub := range m.subs[r.ID] {
		sub.offer(r.Clone())
	}
}

// offer replaces any unread update with r.
func (s *subscriber) offer(r store.Room) {
	select {
	case s.ch <- r:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- r:
	default:
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}
