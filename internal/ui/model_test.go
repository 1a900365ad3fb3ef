// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling, and progress rendering
package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func newTestModel(t *testing.T) (Model, *Controls, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	controls := NewControls()
	return NewModel(controls, mock), controls, mock
}

func playingStatus(ref time.Time, host bool) StatusMsg {
	connected := true
	return StatusMsg{
		Connected:  &connected,
		ServerName: "test-server",
		RoomName:   "Den",
		Host:       &host,
		Room: &RoomStatus{
			TrackID:        "t1",
			Title:          "Song",
			Artist:         "Band",
			Duration:       200,
			IsPlaying:      true,
			ReferenceStart: &ref,
		},
	}
}

func press(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	next, _ := m.Update(key)
	return next.(Model)
}

func expectCommand(t *testing.T, controls *Controls, kind int) Command {
	t.Helper()
	select {
	case cmd := <-controls.Commands:
		if cmd.Kind != kind {
			t.Fatalf("expected command %d, got %d", kind, cmd.Kind)
		}
		return cmd
	default:
		t.Fatalf("expected command %d, got none", kind)
	}
	return Command{}
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil, nil)

	if model.connected {
		t.Error("expected connected to be false initially")
	}
	if model.volume != 100 {
		t.Errorf("expected default volume 100, got %d", model.volume)
	}
	if model.muted {
		t.Error("expected muted to be false initially")
	}
}

func TestStatusMsgRoom(t *testing.T) {
	m, _, mock := newTestModel(t)

	ref := mock.Now().Add(-5 * time.Second)
	m.applyStatus(playingStatus(ref, false))

	if !m.connected || m.serverName != "test-server" || m.roomName != "Den" {
		t.Errorf("connection fields not applied: %+v", m)
	}
	if m.trackID != "t1" || !m.isPlaying {
		t.Errorf("room fields not applied")
	}
	if got := m.Offset(); got != 5.0 {
		t.Errorf("expected offset 5.0, got %f", got)
	}
}

func TestTickAdvancesOffset(t *testing.T) {
	m, _, mock := newTestModel(t)
	m.applyStatus(playingStatus(mock.Now(), false))

	mock.Add(3 * time.Second)
	next, cmd := m.Update(tickMsg(mock.Now()))
	m = next.(Model)

	if cmd == nil {
		t.Error("tick should schedule another tick")
	}
	if got := m.Offset(); got != 3.0 {
		t.Errorf("expected offset 3.0, got %f", got)
	}
}

func TestOffsetStoppedAndClamped(t *testing.T) {
	m, _, mock := newTestModel(t)

	if got := m.Offset(); got != 0 {
		t.Errorf("expected 0 with nothing playing, got %f", got)
	}

	m.applyStatus(playingStatus(mock.Now().Add(-500*time.Second), false))
	if got := m.Offset(); got != 200 {
		t.Errorf("expected offset clamped to duration 200, got %f", got)
	}
}

func TestHostKeys(t *testing.T) {
	m, controls, mock := newTestModel(t)
	m.applyStatus(playingStatus(mock.Now().Add(-30*time.Second), true))

	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	expectCommand(t, controls, CommandPause)

	m = press(t, m, runeKey('n'))
	expectCommand(t, controls, CommandSkip)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if cmd := expectCommand(t, controls, CommandSeek); cmd.Position != 40 {
		t.Errorf("expected seek to 40, got %f", cmd.Position)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	if cmd := expectCommand(t, controls, CommandSeek); cmd.Position != 20 {
		t.Errorf("expected seek to 20, got %f", cmd.Position)
	}
}

func TestSeekBackClampsToZero(t *testing.T) {
	m, controls, mock := newTestModel(t)
	m.applyStatus(playingStatus(mock.Now().Add(-4*time.Second), true))

	press(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	if cmd := expectCommand(t, controls, CommandSeek); cmd.Position != 0 {
		t.Errorf("expected seek to 0, got %f", cmd.Position)
	}
}

func TestSpaceResumesWhenPaused(t *testing.T) {
	m, controls, _ := newTestModel(t)
	host := true
	m.applyStatus(StatusMsg{Host: &host, Room: &RoomStatus{TrackID: "t1", Title: "Song"}})

	press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	expectCommand(t, controls, CommandPlay)
}

func TestGuestCannotControl(t *testing.T) {
	m, controls, mock := newTestModel(t)
	m.applyStatus(playingStatus(mock.Now(), false))

	m = press(t, m, runeKey('n'))
	select {
	case cmd := <-controls.Commands:
		t.Errorf("guest key produced command %+v", cmd)
	default:
	}
	if m.notice == "" {
		t.Error("expected notice for guest")
	}
}

func TestVolumeKeys(t *testing.T) {
	m, controls, _ := newTestModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if cmd := expectCommand(t, controls, CommandVolume); cmd.Volume != 100 {
		t.Errorf("expected volume to stay at 100, got %d", cmd.Volume)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if cmd := expectCommand(t, controls, CommandVolume); cmd.Volume != 95 {
		t.Errorf("expected 95, got %d", cmd.Volume)
	}

	m = press(t, m, runeKey('m'))
	if cmd := expectCommand(t, controls, CommandMute); !cmd.Muted {
		t.Error("expected mute")
	}
	if !m.muted {
		t.Error("model should be muted")
	}
}

func TestQuit(t *testing.T) {
	m, controls, _ := newTestModel(t)

	_, cmd := m.Update(runeKey('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	expectCommand(t, controls, CommandQuit)
}

func TestView(t *testing.T) {
	m, _, mock := newTestModel(t)

	if !strings.Contains(m.View(), "Disconnected") {
		t.Error("expected disconnected view")
	}

	m.applyStatus(playingStatus(mock.Now().Add(-65*time.Second), true))
	view := m.View()
	for _, want := range []string{"Den", "Song", "1:05", "3:20", "host"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value, max, width int
		expected          string
	}{
		{0, 100, 4, "░░░░"},
		{50, 100, 4, "██░░"},
		{100, 100, 4, "████"},
		{150, 100, 4, "████"},
		{10, 0, 4, "░░░░"},
	}
	for _, tt := range tests {
		if got := renderBar(tt.value, tt.max, tt.width); got != tt.expected {
			t.Errorf("renderBar(%d, %d, %d) = %q, want %q", tt.value, tt.max, tt.width, got, tt.expected)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(65.9); got != "1:05" {
		t.Errorf("expected 1:05, got %s", got)
	}
	if got := formatTime(0); got != "0:00" {
		t.Errorf("expected 0:00, got %s", got)
	}
}

func libraryStatus(host bool) StatusMsg {
	return StatusMsg{
		Host: &host,
		Library: []LibraryTrack{
			{ID: "t1", Title: "First", Artist: "Band"},
			{ID: "t2", Title: "Second"},
			{ID: "t3", Title: "Third"},
		},
	}
}

func TestLibraryPlayAndQueue(t *testing.T) {
	m, controls, _ := newTestModel(t)
	m.applyStatus(libraryStatus(true))

	m = press(t, m, runeKey('l'))
	if !m.browsing {
		t.Fatal("expected library browser open")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd := expectCommand(t, controls, CommandPlay); cmd.TrackID != "t2" {
		t.Errorf("expected play t2, got %q", cmd.TrackID)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, runeKey('a'))
	if cmd := expectCommand(t, controls, CommandEnqueue); cmd.TrackID != "t3" {
		t.Errorf("expected enqueue t3, got %q", cmd.TrackID)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.browsing {
		t.Error("esc should close the library")
	}
}

func TestLibraryBrowsingDoesNotChangeVolume(t *testing.T) {
	m, controls, _ := newTestModel(t)
	m.applyStatus(libraryStatus(true))

	m = press(t, m, runeKey('l'))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})

	select {
	case cmd := <-controls.Commands:
		t.Errorf("cursor keys produced command %+v", cmd)
	default:
	}
	if m.volume != 100 || m.cursor != 1 {
		t.Errorf("expected volume 100 and cursor 1, got %d and %d", m.volume, m.cursor)
	}
}

func TestGuestCannotPickTrack(t *testing.T) {
	m, controls, _ := newTestModel(t)
	m.applyStatus(libraryStatus(false))

	m = press(t, m, runeKey('l'))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	select {
	case cmd := <-controls.Commands:
		t.Errorf("guest produced command %+v", cmd)
	default:
	}
	if m.notice == "" {
		t.Error("expected notice for guest")
	}
}

func TestSpaceWithNothingQueuedOpensLibrary(t *testing.T) {
	m, controls, _ := newTestModel(t)
	m.applyStatus(libraryStatus(true))

	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if !m.browsing {
		t.Error("expected library browser open")
	}
	select {
	case cmd := <-controls.Commands:
		t.Errorf("expected no command, got %+v", cmd)
	default:
	}

	if !strings.Contains(m.View(), "Band - First") {
		t.Errorf("library not rendered:\n%s", m.View())
	}
}
