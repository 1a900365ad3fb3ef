// ABOUTME: Tests for WebSocket client implementation
// ABOUTME: Tests connection, handshake, and message routing
package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/syncroom/syncroom/internal/protocol"
)

// fakeServer answers the handshake with reply and then runs script
func fakeServer(t *testing.T, reply protocol.Message, script func(conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/syncroom" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello protocol.Message
		if err := conn.ReadJSON(&hello); err != nil || hello.Type != protocol.TypeClientHello {
			return
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
		if script != nil {
			script(conn)
		}
	}))
	t.Cleanup(ts.Close)

	return strings.TrimPrefix(ts.URL, "http://")
}

func TestNewClient(t *testing.T) {
	config := Config{
		ServerAddr: "localhost:8937",
		ClientID:   "test-client",
		Name:       "Test Player",
	}

	client := NewClient(config)
	if client == nil {
		t.Fatal("expected client to be created")
	}

	if client.config.ServerAddr != "localhost:8937" {
		t.Errorf("expected server addr localhost:8937, got %s", client.config.ServerAddr)
	}
	if client.config.Path != "/syncroom" {
		t.Errorf("expected default path /syncroom, got %s", client.config.Path)
	}
	if client.IsConnected() {
		t.Error("new client should not be connected")
	}
}

func TestConnectHandshake(t *testing.T) {
	addr := fakeServer(t, protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID: "srv",
			Name:     "Test",
			Version:  protocol.Version,
			RoomID:   "room-1",
			Role:     "host",
		},
	}, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	c := NewClient(Config{ServerAddr: addr, ClientID: "c1", Name: "Player", RoomName: "Den"})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	if !c.IsConnected() {
		t.Error("expected client to be connected")
	}
	hello := c.Hello()
	if hello.RoomID != "room-1" || hello.Role != "host" {
		t.Errorf("unexpected hello: %+v", hello)
	}
}

func TestConnectRejected(t *testing.T) {
	addr := fakeServer(t, protocol.Message{
		Type:    protocol.TypeServerError,
		Payload: protocol.ServerError{Error: protocol.ErrorRoomNotFound, Message: "no such room"},
	}, nil)

	c := NewClient(Config{ServerAddr: addr, ClientID: "c1", RoomID: "missing"})
	err := c.Connect()
	if err == nil {
		t.Fatal("expected handshake to fail")
	}

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Reply.Error != protocol.ErrorRoomNotFound {
		t.Errorf("expected room_not_found, got %s", rejected.Reply.Error)
	}
	if c.IsConnected() {
		t.Error("rejected client should not stay connected")
	}
}

func TestMessageRouting(t *testing.T) {
	ref := int64(1_700_000_000_000)
	commands := make(chan protocol.Message, 4)

	addr := fakeServer(t, protocol.Message{
		Type:    protocol.TypeServerHello,
		Payload: protocol.ServerHello{RoomID: "room-1", Role: "guest"},
	}, func(conn *websocket.Conn) {
		conn.WriteJSON(protocol.Message{
			Type: protocol.TypeRoomState,
			Payload: protocol.RoomState{
				RoomID:         "room-1",
				TrackID:        "t1",
				IsPlaying:      true,
				ReferenceStart: &ref,
			},
		})
		conn.WriteJSON(protocol.Message{
			Type:    protocol.TypeServerError,
			Payload: protocol.ServerError{Error: protocol.ErrorNotHost, Message: "only the host"},
		})
		for {
			var msg protocol.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			commands <- msg
		}
	})

	c := NewClient(Config{ServerAddr: addr, ClientID: "c2", RoomID: "room-1"})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	select {
	case state := <-c.RoomStates:
		if state.TrackID != "t1" || !state.IsPlaying {
			t.Errorf("unexpected state: %+v", state)
		}
		if state.ReferenceStart == nil || *state.ReferenceStart != ref {
			t.Errorf("expected reference %d, got %v", ref, state.ReferenceStart)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for room state")
	}

	select {
	case serverErr := <-c.Errors:
		if serverErr.Error != protocol.ErrorNotHost {
			t.Errorf("expected not_host, got %s", serverErr.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server error")
	}

	if err := c.Seek(42.5); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if err := c.SendState(protocol.ClientState{State: "playing", TrackID: "t1", Offset: 1}); err != nil {
		t.Fatalf("send state failed: %v", err)
	}

	select {
	case msg := <-commands:
		var cmd protocol.HostCommand
		if msg.Type != protocol.TypeHostCommand {
			t.Fatalf("expected host/command, got %s", msg.Type)
		}
		if err := protocol.DecodePayload(msg.Payload, &cmd); err != nil {
			t.Fatal(err)
		}
		if cmd.Command != protocol.CommandSeek || cmd.Position != 42.5 {
			t.Errorf("unexpected command: %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for command")
	}

	select {
	case msg := <-commands:
		if msg.Type != protocol.TypeClientState {
			t.Errorf("expected client/state, got %s", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for client state")
	}
}

func TestCloseEndsSession(t *testing.T) {
	addr := fakeServer(t, protocol.Message{
		Type:    protocol.TypeServerHello,
		Payload: protocol.ServerHello{RoomID: "room-1", Role: "guest"},
	}, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	c := NewClient(Config{ServerAddr: addr, ClientID: "c3", RoomID: "room-1"})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	c.Close()
	c.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}
	if err := c.Pause(); err == nil {
		t.Error("expected error sending on closed client")
	}
}
