// ABOUTME: In-memory room store
// ABOUTME: Used for tests and for servers started without a database
package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a Store backed by a map.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]Room
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]Room)}
}

func (m *Memory) CreateRoom(ctx context.Context, room Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[room.ID]; exists {
		return ErrRoomExists
	}
	m.rooms[room.ID] = room.Clone()
	return nil
}

func (m *Memory) GetRoom(ctx context.Context, id string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (m *Memory) ListRooms(ctx context.Context) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room.Clone())
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (m *Memory) SaveRoom(ctx context.Context, room Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room.ID]; !ok {
		return ErrRoomNotFound
	}
	m.rooms[room.ID] = room.Clone()
	return nil
}

func (m *Memory) DeleteRoom(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	delete(m.rooms, id)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
