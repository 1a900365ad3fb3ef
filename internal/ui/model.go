// ABOUTME: Bubbletea model for the listener TUI
// ABOUTME: Shows the room's now-playing state and turns keys into controls
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/syncroom/syncroom/internal/playback"
)

const (
	// seekStep is how far the arrow keys move playback, in seconds
	seekStep = 10.0
	// libraryRows is how many library entries are shown at once
	libraryRows = 10
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Model represents the TUI state
type Model struct {
	clk      clock.Clock
	controls *Controls

	// Connection
	connected  bool
	serverName string
	roomName   string
	host       bool

	// Room playback
	trackID        string
	title          string
	artist         string
	album          string
	duration       float64
	isPlaying      bool
	referenceStart *time.Time
	queued         []string
	now            time.Time

	// Server library browser
	library  []LibraryTrack
	browsing bool
	cursor   int

	// Local output
	volume int
	muted  bool

	notice string

	width int
}

// RoomStatus is the room's playback as the TUI displays it
type RoomStatus struct {
	TrackID        string
	Title          string
	Artist         string
	Album          string
	Duration       float64
	IsPlaying      bool
	ReferenceStart *time.Time
	Queued         []string
}

// LibraryTrack is a track the host can play or queue
type LibraryTrack struct {
	ID     string
	Title  string
	Artist string
}

// StatusMsg updates TUI state. Zero fields are left unchanged.
type StatusMsg struct {
	Connected  *bool
	ServerName string
	RoomName   string
	Host       *bool
	Room       *RoomStatus
	Library    []LibraryTrack
	Volume     int
	Notice     string
}

type tickMsg time.Time

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.now = m.clk.Now()
		return m, tick()
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// Offset is the room's current position in the playing track
func (m Model) Offset() float64 {
	offset := playback.CurrentOffset(m.referenceStart, m.now)
	if m.duration > 0 && offset > m.duration {
		offset = m.duration
	}
	return offset
}

// View renders the TUI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("♫ Syncroom"))
	b.WriteString("\n\n")

	if !m.connected {
		b.WriteString("Disconnected\n")
	} else {
		role := "guest"
		if m.host {
			role = "host"
		}
		fmt.Fprintf(&b, "Room:   %s %s\n", m.roomName, dimStyle.Render("("+role+")"))
		fmt.Fprintf(&b, "Server: %s\n", m.serverName)
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Now Playing"))
	b.WriteString("\n")
	if m.trackID == "" {
		b.WriteString(dimStyle.Render("  Nothing playing"))
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "  %s\n", truncate(m.title, 50))
		if m.artist != "" || m.album != "" {
			fmt.Fprintf(&b, "  %s\n", dimStyle.Render(truncate(strings.Trim(m.artist+" · "+m.album, " ·"), 50)))
		}
		state := "⏸"
		if m.isPlaying {
			state = "▶"
		}
		offset := m.Offset()
		fmt.Fprintf(&b, "  %s %s [%s] %s\n", state, formatTime(offset), renderProgress(offset, m.duration, 30), formatTime(m.duration))
	}

	if len(m.queued) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render(fmt.Sprintf("Up Next (%d)", len(m.queued))))
		b.WriteString("\n")
		for i, title := range m.queued {
			if i == 5 {
				fmt.Fprintf(&b, "  %s\n", dimStyle.Render(fmt.Sprintf("… %d more", len(m.queued)-5)))
				break
			}
			fmt.Fprintf(&b, "  %d. %s\n", i+1, truncate(title, 46))
		}
	}

	if m.browsing {
		m.renderLibrary(&b)
	}

	b.WriteString("\n")
	muted := ""
	if m.muted {
		muted = " (muted)"
	}
	fmt.Fprintf(&b, "Volume: [%s] %d%%%s\n", renderBar(m.volume, 100, 10), m.volume, muted)

	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.browsing && m.host:
		b.WriteString(dimStyle.Render("↑/↓:Select  enter:Play  a:Queue  l/esc:Close  q:Quit"))
	case m.browsing:
		b.WriteString(dimStyle.Render("↑/↓:Select  l/esc:Close  q:Quit"))
	case m.host:
		b.WriteString(dimStyle.Render("space:Play/Pause  n:Skip  ←/→:Seek  l:Library  ↑/↓:Volume  m:Mute  q:Quit"))
	default:
		b.WriteString(dimStyle.Render("l:Library  ↑/↓:Volume  m:Mute  q:Quit"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderLibrary(b *strings.Builder) {
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("Library (%d)", len(m.library))))
	b.WriteString("\n")
	if len(m.library) == 0 {
		b.WriteString(dimStyle.Render("  No tracks on this server"))
		b.WriteString("\n")
		return
	}

	first := 0
	if m.cursor >= libraryRows {
		first = m.cursor - libraryRows + 1
	}
	for i := first; i < len(m.library) && i < first+libraryRows; i++ {
		t := m.library[i]
		label := t.Title
		if t.Artist != "" {
			label = t.Artist + " - " + t.Title
		}
		marker := "  "
		if i == m.cursor {
			marker = "> "
			label = titleStyle.Render(truncate(label, 50))
		} else {
			label = truncate(label, 50)
		}
		fmt.Fprintf(b, "%s%s\n", marker, label)
	}
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "ctrl+c" {
		m.send(Command{Kind: CommandQuit})
		return m, tea.Quit
	}
	if m.browsing {
		m.handleLibraryKey(key)
		return m, nil
	}

	switch key {
	case "l":
		m.browsing = true
		m.notice = ""
	case "up":
		m.volume = clampVolume(m.volume + 5)
		m.send(Command{Kind: CommandVolume, Volume: m.volume})
	case "down":
		m.volume = clampVolume(m.volume - 5)
		m.send(Command{Kind: CommandVolume, Volume: m.volume})
	case "m":
		m.muted = !m.muted
		m.send(Command{Kind: CommandMute, Muted: m.muted})
	case " ", "n", "left", "right":
		if !m.host {
			m.notice = "Only the host controls playback"
			return m, nil
		}
		m.notice = ""
		m.handleHostKey(msg.String())
	}

	return m, nil
}

func (m *Model) handleLibraryKey(key string) {
	switch key {
	case "l", "esc":
		m.browsing = false
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.library)-1 {
			m.cursor++
		}
	case "enter", "a":
		if len(m.library) == 0 {
			return
		}
		if !m.host {
			m.notice = "Only the host controls playback"
			return
		}
		m.notice = ""
		trackID := m.library[m.cursor].ID
		if key == "enter" {
			m.send(Command{Kind: CommandPlay, TrackID: trackID})
		} else {
			m.send(Command{Kind: CommandEnqueue, TrackID: trackID})
		}
	}
}

func (m *Model) handleHostKey(key string) {
	switch key {
	case " ":
		if m.isPlaying {
			m.send(Command{Kind: CommandPause})
		} else if m.trackID == "" && len(m.queued) == 0 {
			// Nothing to resume or pop; pick from the library instead
			m.browsing = true
			m.notice = "Pick a track to play"
		} else {
			m.send(Command{Kind: CommandPlay})
		}
	case "n":
		m.send(Command{Kind: CommandSkip})
	case "left", "right":
		if !m.isPlaying {
			return
		}
		delta := seekStep
		if key == "left" {
			delta = -seekStep
		}
		target := m.Offset() + delta
		if target < 0 {
			target = 0
		}
		m.send(Command{Kind: CommandSeek, Position: target})
	}
}

func (m *Model) send(cmd Command) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Commands <- cmd:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.RoomName != "" {
		m.roomName = msg.RoomName
	}
	if msg.Host != nil {
		m.host = *msg.Host
	}
	if msg.Room != nil {
		r := msg.Room
		m.trackID = r.TrackID
		m.title = r.Title
		m.artist = r.Artist
		m.album = r.Album
		m.duration = r.Duration
		m.isPlaying = r.IsPlaying
		m.referenceStart = r.ReferenceStart
		m.queued = r.Queued
		m.now = m.clk.Now()
	}
	if msg.Library != nil {
		m.library = msg.Library
		if m.cursor >= len(m.library) {
			m.cursor = 0
		}
	}
	if msg.Volume != 0 {
		m.volume = msg.Volume
	}
	if msg.Notice != "" {
		m.notice = msg.Notice
	}
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func renderProgress(offset, duration float64, width int) string {
	if duration <= 0 {
		return strings.Repeat("░", width)
	}
	return renderBar(int(offset*1000), int(duration*1000), width)
}

func renderBar(value, max, width int) string {
	if max <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / max
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatTime(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
