// ABOUTME: Server TUI for displaying rooms and connected participants
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{} // Signal to stop the server

	mu      sync.Mutex
	stopped bool
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name    string
	Port    int
	Tracks  int
	Rooms   []RoomInfo
	Clients []ClientInfo
}

// RoomInfo holds room information for display
type RoomInfo struct {
	ID         string
	Name       string
	Host       string
	NowPlaying string
	Playing    bool
	Offset     float64
	Queued     int
}

// ClientInfo holds client information for display
type ClientInfo struct {
	Name   string
	ID     string
	RoomID string
	State  string
	Offset float64
}

// tuiModel is the bubbletea model for server TUI
type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{} // Channel to signal server stop
}

type tickMsg time.Time
type statusMsg ServerStatus

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(
		tickEvery(),
	)
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			// Signal the server to stop
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	clientHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	playingStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	// Build the view
	var b strings.Builder

	// Title
	b.WriteString(titleStyle.Render("Syncroom Server"))
	b.WriteString("\n\n")

	// Server info
	b.WriteString(headerStyle.Render("Server: "))
	b.WriteString(valueStyle.Render(m.status.Name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Port: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.status.Port)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	uptime := time.Since(m.startTime).Round(time.Second)
	b.WriteString(valueStyle.Render(uptime.String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Library: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d tracks", m.status.Tracks)))
	b.WriteString("\n\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Rooms (%d)", len(m.status.Rooms))))
	b.WriteString("\n\n")

	if len(m.status.Rooms) == 0 {
		b.WriteString(valueStyle.Render("  No rooms open"))
		b.WriteString("\n")
	}
	for _, room := range m.status.Rooms {
		b.WriteString(fmt.Sprintf("  • %s", room.Name))
		b.WriteString(valueStyle.Render(fmt.Sprintf(" (host %s, %d queued)", room.Host, room.Queued)))
		b.WriteString("\n    ")
		if room.Playing {
			b.WriteString(playingStyle.Render(fmt.Sprintf("▶ %s  %s", room.NowPlaying, formatOffset(room.Offset))))
		} else if room.NowPlaying != "" {
			b.WriteString(valueStyle.Render("⏸ " + room.NowPlaying))
		} else {
			b.WriteString(valueStyle.Render("⏹ idle"))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Connected Clients (%d)", len(m.status.Clients))))
	b.WriteString("\n\n")

	if len(m.status.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	} else {
		for _, client := range m.status.Clients {
			b.WriteString(fmt.Sprintf("  • %s", client.Name))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %s at %s)", shortID(client.RoomID), client.State, formatOffset(client.Offset))))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewServerTUI creates a new server TUI
func NewServerTUI(serverName string, port int) *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start starts the TUI
func (t *ServerTUI) Start(serverName string, port int) error {
	m := tuiModel{
		status: ServerStatus{
			Name:    serverName,
			Port:    port,
			Clients: []ClientInfo{},
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	// Start listening for updates in a goroutine
	go func() {
		for status := range t.updates {
			if t.program != nil {
				t.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *ServerTUI) Update(status ServerStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true

	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}

// formatOffset renders seconds as m:ss
func formatOffset(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// shortID trims a UUID for display
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
