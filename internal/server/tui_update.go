// ABOUTME: TUI update helpers for server
// ABOUTME: Functions to send room and client state to the TUI
package server

import (
	"context"
	"log"
	"sort"
)

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}

	rooms, err := s.rooms.List(context.Background())
	if err != nil {
		log.Printf("TUI: failed to list rooms: %v", err)
		return
	}
	now := s.rooms.Clock().Now()

	s.clientsMu.RLock()
	names := make(map[string]string, len(s.clients))
	clients := make([]ClientInfo, 0, len(s.clients))
	for _, client := range s.clients {
		client.mu.RLock()
		state := client.State
		client.mu.RUnlock()

		names[client.ID] = client.Name
		clients = append(clients, ClientInfo{
			Name:   client.Name,
			ID:     client.ID,
			RoomID: client.RoomID,
			State:  state.State,
			Offset: state.Offset,
		})
	}
	s.clientsMu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })

	roomInfos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		host := names[r.HostID]
		if host == "" {
			host = shortID(r.HostID)
		}

		info := RoomInfo{
			ID:      r.ID,
			Name:    r.Name,
			Host:    host,
			Playing: r.Playback.IsPlaying,
			Offset:  r.Playback.Offset(now),
			Queued:  len(r.Queue),
		}
		if r.Current != nil {
			info.NowPlaying = r.Current.Title
			if r.Current.Artist != "" {
				info.NowPlaying = r.Current.Artist + " - " + r.Current.Title
			}
		}
		roomInfos = append(roomInfos, info)
	}

	tracks := 0
	if s.library != nil {
		tracks = len(s.library.Tracks())
	}

	s.tui.Update(ServerStatus{
		Name:    s.config.Name,
		Port:    s.config.Port,
		Tracks:  tracks,
		Rooms:   roomInfos,
		Clients: clients,
	})
}
