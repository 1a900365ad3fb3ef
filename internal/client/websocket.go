// ABOUTME: WebSocket client for the Syncroom protocol
// ABOUTME: Handles connection, room handshake, and message routing
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/syncroom/syncroom/internal/protocol"
)

// Config holds client configuration
type Config struct {
	ServerAddr string
	Path       string // Defaults to /syncroom
	ClientID   string
	Name       string
	RoomID     string // Join this room...
	RoomName   string // ...or create one with this name
	DeviceInfo protocol.DeviceInfo
}

// Client represents a WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Message channels
	RoomStates chan protocol.RoomState
	Errors     chan protocol.ServerError

	hello protocol.ServerHello

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// RejectedError is returned when the server refuses the handshake
type RejectedError struct {
	Reply protocol.ServerError
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("server rejected connection: %s (%s)", e.Reply.Error, e.Reply.Message)
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = "/syncroom"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:     config,
		RoomStates: make(chan protocol.RoomState, 10),
		Errors:     make(chan protocol.ServerError, 10),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake performs the protocol handshake
func (c *Client) handshake() error {
	hello := protocol.ClientHello{
		ClientID:   c.config.ClientID,
		Name:       c.config.Name,
		Version:    protocol.Version,
		RoomID:     c.config.RoomID,
		RoomName:   c.config.RoomName,
		DeviceInfo: &c.config.DeviceInfo,
	}

	if err := c.sendJSON(protocol.Message{Type: protocol.TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var serverMsg protocol.Message
	if err := json.Unmarshal(data, &serverMsg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	switch serverMsg.Type {
	case protocol.TypeServerHello:
	case protocol.TypeServerError:
		var serverErr protocol.ServerError
		if err := protocol.DecodePayload(serverMsg.Payload, &serverErr); err != nil {
			return err
		}
		return &RejectedError{Reply: serverErr}
	default:
		return fmt.Errorf("expected server/hello, got %s", serverMsg.Type)
	}

	var sh protocol.ServerHello
	if err := protocol.DecodePayload(serverMsg.Payload, &sh); err != nil {
		return fmt.Errorf("failed to decode server/hello: %w", err)
	}

	c.mu.Lock()
	c.hello = sh
	c.mu.Unlock()

	log.Printf("Handshake complete: room %s as %s", sh.RoomID, sh.Role)
	return nil
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			c.handleJSONMessage(data)
		}
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeRoomState:
		var state protocol.RoomState
		if err := protocol.DecodePayload(msg.Payload, &state); err != nil {
			log.Printf("Bad room state: %v", err)
			return
		}
		select {
		case c.RoomStates <- state:
		case <-c.ctx.Done():
		}

	case protocol.TypeServerError:
		var serverErr protocol.ServerError
		if err := protocol.DecodePayload(msg.Payload, &serverErr); err != nil {
			log.Printf("Bad server error: %v", err)
			return
		}
		log.Printf("Server error: %s: %s", serverErr.Error, serverErr.Message)
		select {
		case c.Errors <- serverErr:
		case <-c.ctx.Done():
		}

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// SendCommand sends a host/command message
func (c *Client) SendCommand(cmd protocol.HostCommand) error {
	return c.sendJSON(protocol.Message{Type: protocol.TypeHostCommand, Payload: cmd})
}

// Play starts trackID, or the current/next track when empty
func (c *Client) Play(trackID string) error {
	return c.SendCommand(protocol.HostCommand{Command: protocol.CommandPlay, TrackID: trackID})
}

// Pause stops playback for the room
func (c *Client) Pause() error {
	return c.SendCommand(protocol.HostCommand{Command: protocol.CommandPause})
}

// Seek moves the room's playback to seconds
func (c *Client) Seek(seconds float64) error {
	return c.SendCommand(protocol.HostCommand{Command: protocol.CommandSeek, Position: seconds})
}

// Skip moves to the next queued track
func (c *Client) Skip() error {
	return c.SendCommand(protocol.HostCommand{Command: protocol.CommandSkip})
}

// Enqueue adds a track to the room's queue
func (c *Client) Enqueue(trackID string) error {
	return c.SendCommand(protocol.HostCommand{Command: protocol.CommandEnqueue, TrackID: trackID})
}

// SendState sends a client/state message
func (c *Client) SendState(state protocol.ClientState) error {
	return c.sendJSON(protocol.Message{Type: protocol.TypeClientState, Payload: state})
}

// Hello returns the server's handshake reply
func (c *Client) Hello() protocol.ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hello
}

// ID returns this client's ID
func (c *Client) ID() string {
	return c.config.ClientID
}

// ServerAddr returns the host:port this client dials
func (c *Client) ServerAddr() string {
	return c.config.ServerAddr
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
