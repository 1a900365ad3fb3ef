// ABOUTME: Conversions between room records and wire messages
// ABOUTME: Also maps domain errors to protocol error codes
package server

import (
	"errors"

	"github.com/syncroom/syncroom/internal/playback"
	"github.com/syncroom/syncroom/internal/protocol"
	"github.com/syncroom/syncroom/internal/room"
	"github.com/syncroom/syncroom/internal/store"
)

var errBadRequest = errors.New("bad request")

// roomState converts a room record to its wire form
func roomState(r store.Room) protocol.RoomState {
	state := protocol.RoomState{
		RoomID:    r.ID,
		Name:      r.Name,
		HostID:    r.HostID,
		TrackID:   r.Playback.TrackID,
		IsPlaying: r.Playback.IsPlaying,
		Queue:     make([]protocol.Track, 0, len(r.Queue)),
		UpdatedAt: r.UpdatedAt.UnixMilli(),
	}

	if r.Playback.IsPlaying {
		state.ReferenceStart = playback.UnixMillis(r.Playback.ReferenceStart)
	}
	if r.Current != nil {
		t := wireTrack(*r.Current)
		state.Track = &t
	}
	for _, t := range r.Queue {
		state.Queue = append(state.Queue, wireTrack(t))
	}
	return state
}

func wireTrack(t store.Track) protocol.Track {
	return protocol.Track{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		Duration:   t.Duration,
		ArtworkURL: t.ArtworkURL,
	}
}

// errorCode maps an error to the code sent in server/error
func errorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		return protocol.ErrorRoomNotFound
	case errors.Is(err, room.ErrNotHost):
		return protocol.ErrorNotHost
	case errors.Is(err, room.ErrNothingToPlay):
		return protocol.ErrorNothingToPlay
	case errors.Is(err, room.ErrTrackNotFound):
		return protocol.ErrorTrackNotFound
	case errors.Is(err, playback.ErrNotPlaying):
		return protocol.ErrorNotPlaying
	case errors.Is(err, errBadRequest):
		return protocol.ErrorBadRequest
	default:
		return protocol.ErrorInternal
	}
}
