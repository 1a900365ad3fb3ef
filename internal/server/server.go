// ABOUTME: Main server implementation for Syncroom
// ABOUTME: Manages WebSocket connections, room membership, and state fan-out
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/syncroom/syncroom/internal/discovery"
	"github.com/syncroom/syncroom/internal/library"
	"github.com/syncroom/syncroom/internal/protocol"
	"github.com/syncroom/syncroom/internal/room"
	"github.com/syncroom/syncroom/internal/store"
)

const (
	// DefaultPort is used when Config.Port is zero
	DefaultPort = 8937

	// WebSocketPath is the room endpoint
	WebSocketPath = "/syncroom"

	// driftWarning is how far a listener may stray before it is logged
	driftWarning = 2.0
)

// Config holds server configuration
type Config struct {
	Port            int
	Name            string
	EnableMDNS      bool
	Debug           bool
	UseTUI          bool
	AdvanceInterval time.Duration // How often finished tracks are advanced. Zero = 1s
}

// Server represents the Syncroom server
type Server struct {
	config   Config
	serverID string

	rooms   *room.Manager
	library *library.Library

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// Client management
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// mDNS discovery
	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	startTime time.Time

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected participant
type Client struct {
	ID     string
	Name   string
	RoomID string
	Conn   *websocket.Conn

	// Last reported local playback
	State protocol.ClientState

	// Output channel for messages
	sendChan chan interface{}

	mu sync.RWMutex
}

// New creates a new server instance. lib may be nil when no music library is
// served.
func New(config Config, rooms *room.Manager, lib *library.Library) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Name == "" {
		config.Name = "Syncroom Server"
	}
	if config.AdvanceInterval == 0 {
		config.AdvanceInterval = time.Second
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		rooms:    rooms,
		library:  lib,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Rooms are meant for trusted local networks
				origin := r.Header.Get("Origin")
				if origin != "" && config.Debug {
					log.Printf("[DEBUG] Accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		clients:   make(map[string]*Client),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}

	s.mux.HandleFunc(WebSocketPath, s.handleWebSocket)
	s.mux.HandleFunc("GET /rooms", s.handleListRooms)
	if lib != nil {
		lib.Routes(s.mux)
	}

	return s
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the server and blocks until it is stopped
func (s *Server) Start() error {
	if s.config.UseTUI {
		s.tui = NewServerTUI(s.config.Name, s.config.Port)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tui.Start(s.config.Name, s.config.Port)
		}()

		// Give TUI time to initialize
		time.Sleep(100 * time.Millisecond)
	}

	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        WebSocketPath,
			Version:     protocol.Version,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.library != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.library.Watch(ctx); err != nil {
				log.Printf("Library watch stopped: %v", err)
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.advanceLoop(ctx)
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("WebSocket server listening on %s%s", addr, WebSocketPath)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case <-tuiQuitChan:
		log.Printf("TUI quit requested, shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	// Reject new connections from here on
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Hijacked WebSocket connections are not closed by Shutdown
	s.clientsMu.RLock()
	for _, client := range s.clients {
		client.Conn.Close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
	log.Printf("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// advanceLoop moves rooms whose track has ended on to the next track
func (s *Server) advanceLoop(ctx context.Context) {
	ticker := s.rooms.Clock().Ticker(s.config.AdvanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := s.rooms.AdvanceFinished(ctx)
			if err != nil {
				log.Printf("Failed to advance rooms: %v", err)
				continue
			}
			for _, r := range changed {
				log.Printf("Room %s advanced to %q", r.ID, r.Playback.TrackID)
			}
			// Also keeps the TUI's offsets ticking
			s.updateTUI()
		}
	}
}

// handleListRooms serves the room list as JSON
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	states := make([]protocol.RoomState, 0, len(rooms))
	for _, rm := range rooms {
		states = append(states, roomState(rm))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(states); err != nil {
		log.Printf("Error encoding room list: %v", err)
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)

	// The request context ends with the hijack, so room calls use their own
	s.handleConnection(context.Background(), conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	if s.config.Debug {
		log.Printf("[DEBUG] New connection, waiting for handshake")
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Printf("Error reading hello: %v", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}

	if msg.Type != protocol.TypeClientHello {
		log.Printf("Expected %s, got %s", protocol.TypeClientHello, msg.Type)
		writeError(conn, protocol.ErrorBadRequest, "expected client/hello")
		return
	}

	var hello protocol.ClientHello
	if err := protocol.DecodePayload(msg.Payload, &hello); err != nil {
		log.Printf("Error decoding client hello: %v", err)
		writeError(conn, protocol.ErrorBadRequest, "malformed client/hello")
		return
	}

	if hello.ClientID == "" || hello.Name == "" {
		log.Printf("Client hello missing ClientID or Name")
		writeError(conn, protocol.ErrorBadRequest, "client_id and name are required")
		return
	}

	log.Printf("Client hello: %s (ID: %s, room: %q, create: %q)", hello.Name, hello.ClientID, hello.RoomID, hello.RoomName)

	// Reject a taken ID before joinRoom can create a room for it
	s.clientsMu.RLock()
	existing, taken := s.clients[hello.ClientID]
	s.clientsMu.RUnlock()
	if taken {
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", hello.ClientID, existing.Name)
		writeError(conn, protocol.ErrorDuplicateID, "client ID already connected")
		return
	}

	rm, err := s.joinRoom(ctx, hello)
	if err != nil {
		log.Printf("Client %s could not join: %v", hello.Name, err)
		writeError(conn, errorCode(err), err.Error())
		return
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		RoomID:   rm.ID,
		Conn:     conn,
		State:    protocol.ClientState{State: "stopped", Volume: 100},
		sendChan: make(chan interface{}, 100),
	}

	// Check for duplicate client ID and register atomically
	s.clientsMu.Lock()
	if existing, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", client.ID, existing.Name)
		if hello.RoomID == "" {
			// Lost a race with the other connection; drop the room made for us
			if err := s.rooms.Close(ctx, rm.ID, client.ID); err != nil {
				log.Printf("Failed to remove room %s: %v", rm.ID, err)
			}
		}
		writeError(conn, protocol.ErrorDuplicateID, "client ID already connected")
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.updateTUI()

	// Subscribe before the first snapshot so no update is missed
	updates, unsubscribe := s.rooms.Subscribe(rm.ID)

	writerDone := make(chan struct{})
	forwardDone := make(chan struct{})

	defer func() {
		unsubscribe()
		<-forwardDone

		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()

		close(client.sendChan)
		<-writerDone
		log.Printf("Client disconnected: %s", client.Name)

		s.updateTUI()
	}()

	role := "guest"
	if rm.HostID == client.ID {
		role = "host"
	}

	serverHello := protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  protocol.Version,
		RoomID:   rm.ID,
		Role:     role,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(writerDone)
		s.clientWriter(client)
	}()

	if err := s.sendMessage(client, protocol.TypeServerHello, serverHello); err != nil {
		log.Printf("Error sending server hello: %v", err)
		close(forwardDone)
		return
	}

	if current, err := s.rooms.Get(ctx, rm.ID); err == nil {
		s.sendMessage(client, protocol.TypeRoomState, roomState(current))
	}

	go func() {
		defer close(forwardDone)
		s.forwardRoomUpdates(client, updates)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleClientMessage(ctx, client, data)
	}
}

// joinRoom resolves the room named in a hello, creating it if asked
func (s *Server) joinRoom(ctx context.Context, hello protocol.ClientHello) (store.Room, error) {
	if hello.RoomID != "" {
		return s.rooms.Get(ctx, hello.RoomID)
	}
	if hello.RoomName != "" {
		return s.rooms.Create(ctx, hello.RoomName, hello.ClientID)
	}
	return store.Room{}, fmt.Errorf("%w: hello needs room_id or room_name", errBadRequest)
}

// forwardRoomUpdates pushes room changes to one client until unsubscribed
func (s *Server) forwardRoomUpdates(client *Client, updates <-chan store.Room) {
	for rm := range updates {
		if err := s.sendMessage(client, protocol.TypeRoomState, roomState(rm)); err != nil {
			log.Printf("Dropping room update for %s: %v", client.Name, err)
		}
	}

	// The channel also closes when the room itself is closed
	if _, err := s.rooms.Get(context.Background(), client.RoomID); err != nil {
		s.sendError(client, protocol.ErrorRoomNotFound, "room closed")
	}
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				client.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Error marshaling message: %v", err)
				continue
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Error writing text message: %v", err)
				// Keep draining so senders never block on a dead client
				for range client.sendChan {
				}
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				for range client.sendChan {
				}
				return
			}
		}
	}
}

// handleClientMessage processes messages from clients
func (s *Server) handleClientMessage(ctx context.Context, client *Client, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		s.sendError(client, protocol.ErrorBadRequest, "malformed message")
		return
	}

	switch msg.Type {
	case protocol.TypeHostCommand:
		s.handleHostCommand(ctx, client, msg.Payload)
	case protocol.TypeClientState:
		s.handleClientState(ctx, client, msg.Payload)
	default:
		log.Printf("Unknown message type: %s", msg.Type)
		s.sendError(client, protocol.ErrorBadRequest, "unknown message type "+msg.Type)
	}
}

// handleHostCommand applies a playback command. The resulting state reaches
// every participant, including the sender, through the room subscription.
func (s *Server) handleHostCommand(ctx context.Context, client *Client, payload interface{}) {
	var cmd protocol.HostCommand
	if err := protocol.DecodePayload(payload, &cmd); err != nil {
		s.sendError(client, protocol.ErrorBadRequest, err.Error())
		return
	}

	if s.config.Debug {
		log.Printf("[DEBUG] Command from %s: %+v", client.Name, cmd)
	}

	var err error
	switch cmd.Command {
	case protocol.CommandPlay:
		_, err = s.rooms.Play(ctx, client.RoomID, client.ID, cmd.TrackID)
	case protocol.CommandPause:
		_, err = s.rooms.Pause(ctx, client.RoomID, client.ID)
	case protocol.CommandSeek:
		_, err = s.rooms.Seek(ctx, client.RoomID, client.ID, cmd.Position)
	case protocol.CommandSkip:
		_, err = s.rooms.Skip(ctx, client.RoomID, client.ID)
	case protocol.CommandEnqueue:
		_, err = s.rooms.Enqueue(ctx, client.RoomID, client.ID, cmd.TrackID)
	case protocol.CommandTransfer:
		_, err = s.rooms.TransferHost(ctx, client.RoomID, client.ID, cmd.HostID)
	case protocol.CommandClose:
		err = s.rooms.Close(ctx, client.RoomID, client.ID)
	default:
		err = fmt.Errorf("%w: unknown command %q", errBadRequest, cmd.Command)
	}

	if err != nil {
		log.Printf("Command %s from %s rejected: %v", cmd.Command, client.Name, err)
		s.sendError(client, errorCode(err), err.Error())
		return
	}

	log.Printf("Room %s: %s by %s", client.RoomID, cmd.Command, client.Name)
	s.updateTUI()
}

// handleClientState records a listener's reported position and warns on drift
func (s *Server) handleClientState(ctx context.Context, client *Client, payload interface{}) {
	var state protocol.ClientState
	if err := protocol.DecodePayload(payload, &state); err != nil {
		s.sendError(client, protocol.ErrorBadRequest, err.Error())
		return
	}

	client.mu.Lock()
	client.State = state
	client.mu.Unlock()

	if state.State == "playing" {
		if rm, err := s.rooms.Get(ctx, client.RoomID); err == nil && rm.Playback.IsPlaying {
			expected := rm.Playback.Offset(s.rooms.Clock().Now())
			drift := state.Offset - expected
			if drift > driftWarning || drift < -driftWarning {
				log.Printf("Client %s is %.1fs out of sync (at %.1fs, room at %.1fs)", client.Name, drift, state.Offset, expected)
			}
		}
	}

	if s.config.Debug {
		log.Printf("[DEBUG] Client %s state: %s at %.1fs (vol: %d, muted: %v)", client.Name, state.State, state.Offset, state.Volume, state.Muted)
	}
	s.updateTUI()
}

// sendMessage queues a JSON message for a client
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	msg := protocol.Message{
		Type:    msgType,
		Payload: payload,
	}

	select {
	case client.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// sendError queues a server/error message for a client
func (s *Server) sendError(client *Client, code, message string) {
	if err := s.sendMessage(client, protocol.TypeServerError, protocol.ServerError{Error: code, Message: message}); err != nil {
		log.Printf("Error sending error to %s: %v", client.Name, err)
	}
}

// writeError writes an error directly, for use before the writer goroutine runs
func writeError(conn *websocket.Conn, code, message string) {
	errorMsg := protocol.Message{
		Type:    protocol.TypeServerError,
		Payload: protocol.ServerError{Error: code, Message: message},
	}
	if data, err := json.Marshal(errorMsg); err == nil {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		conn.WriteMessage(websocket.TextMessage, data)
	}
}
