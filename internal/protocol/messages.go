// ABOUTME: Syncroom wire protocol message definitions
// ABOUTME: JSON envelopes exchanged over the room WebSocket
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version spoken by this build.
const Version = 1

// Message types
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeRoomState   = "room/state"
	TypeHostCommand = "host/command"
	TypeClientState = "client/state"
	TypeServerError = "server/error"
)

// Host commands
const (
	CommandPlay     = "play"
	CommandPause    = "pause"
	CommandSeek     = "seek"
	CommandSkip     = "skip"
	CommandEnqueue  = "enqueue"
	CommandTransfer = "transfer"
	CommandClose    = "close"
)

// Error codes carried in ServerError
const (
	ErrorBadRequest    = "bad_request"
	ErrorRoomNotFound  = "room_not_found"
	ErrorNotHost       = "not_host"
	ErrorNothingToPlay = "nothing_to_play"
	ErrorNotPlaying    = "not_playing"
	ErrorTrackNotFound = "track_not_found"
	ErrorDuplicateID   = "duplicate_client_id"
	ErrorInternal      = "internal"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello opens a session. Set RoomID to join an existing room, or
// RoomName (and no RoomID) to create one and become its host.
type ClientHello struct {
	ClientID   string      `json:"client_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	RoomID     string      `json:"room_id,omitempty"`
	RoomName   string      `json:"room_name,omitempty"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	RoomID   string `json:"room_id"`
	Role     string `json:"role"` // "host" or "guest"
}

// Track describes a song in a room
type Track struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist,omitempty"`
	Album      string  `json:"album,omitempty"`
	Duration   float64 `json:"duration"` // seconds
	ArtworkURL string  `json:"artwork_url,omitempty"`
}

// RoomState is pushed to every participant whenever the room changes.
// ReferenceStart is Unix milliseconds, null while stopped.
type RoomState struct {
	RoomID         string  `json:"room_id"`
	Name           string  `json:"name"`
	HostID         string  `json:"host_id"`
	TrackID        string  `json:"track_id,omitempty"`
	Track          *Track  `json:"track,omitempty"`
	IsPlaying      bool    `json:"is_playing"`
	ReferenceStart *int64  `json:"reference_start"`
	Queue          []Track `json:"queue"`
	UpdatedAt      int64   `json:"updated_at"`
}

// HostCommand is a playback control request. Only the host's are applied.
type HostCommand struct {
	Command  string  `json:"command"`
	TrackID  string  `json:"track_id,omitempty"` // play, enqueue
	Position float64 `json:"position,omitempty"` // seek, seconds
	HostID   string  `json:"host_id,omitempty"`  // transfer
}

// ClientState reports a listener's local playback
type ClientState struct {
	State   string  `json:"state"` // "playing", "stopped", "buffering"
	TrackID string  `json:"track_id,omitempty"`
	Offset  float64 `json:"offset"` // seconds into the track
	Volume  int     `json:"volume"`
	Muted   bool    `json:"muted"`
}

// ServerError reports a rejected request
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DecodePayload converts a generic decoded payload into v.
func DecodePayload(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
