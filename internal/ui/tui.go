// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program and the command channel back to the app
package ui

import (
	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
)

// Command kinds sent from the TUI to the app
const (
	CommandPlay = iota
	CommandPause
	CommandSkip
	CommandSeek
	CommandVolume
	CommandMute
	CommandQuit
	CommandEnqueue
)

// Command is a user action for the app to carry out
type Command struct {
	Kind     int
	TrackID  string  // CommandPlay (empty resumes), CommandEnqueue
	Position float64 // CommandSeek, seconds
	Volume   int     // CommandVolume
	Muted    bool    // CommandMute
}

// Controls carries user actions out of the TUI
type Controls struct {
	Commands chan Command
}

// NewControls creates a new control channel set
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
	}
}

// NewModel creates a new TUI model. A nil clock uses the wall clock.
func NewModel(controls *Controls, clk clock.Clock) Model {
	if clk == nil {
		clk = clock.New()
	}
	return Model{
		clk:      clk,
		controls: controls,
		volume:   100,
		now:      clk.Now(),
	}
}

// Run creates the TUI program; the caller runs it
func Run(controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls, nil), tea.WithAltScreen())
}
