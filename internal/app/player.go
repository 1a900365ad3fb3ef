// ABOUTME: Listener application orchestration
// ABOUTME: Joins a room and keeps local audio in step with the room's playback clock
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/syncroom/syncroom/internal/client"
	"github.com/syncroom/syncroom/internal/discovery"
	"github.com/syncroom/syncroom/internal/playback"
	"github.com/syncroom/syncroom/internal/player"
	"github.com/syncroom/syncroom/internal/protocol"
	"github.com/syncroom/syncroom/internal/trackcache"
	"github.com/syncroom/syncroom/internal/ui"
	"github.com/syncroom/syncroom/internal/version"
)

const (
	// resyncThreshold is how far local audio may drift before restarting it
	resyncThreshold = 1.0
	reportInterval  = 5 * time.Second
)

// Config holds listener configuration
type Config struct {
	ServerAddr string // Discovered over mDNS when empty
	Name       string
	RoomID     string
	RoomName   string // Create a room with this name when RoomID is empty
	CacheDir   string
	UseTUI     bool

	// Host actions taken once the room is joined
	Enqueue []string
	Play    string
}

// Output plays track files
type Output interface {
	Play(trackID, path string, offset float64) error
	Stop()
	Position() (trackID string, offset float64, playing bool)
	SetVolume(volume int)
	SetMuted(muted bool)
	Close()
}

// TrackFetcher returns a local file path for a track
type TrackFetcher interface {
	Get(trackID string) (string, error)
}

// Player represents the listener application
type Player struct {
	config    Config
	clk       clock.Clock
	tracks    TrackFetcher
	output    Output
	discovery *discovery.Manager
	controls  *ui.Controls
	tuiProg   *tea.Program
	ctx       context.Context
	cancel    context.CancelFunc

	// syncMu serializes syncOutput between room updates and the report loop
	syncMu sync.Mutex

	mu     sync.Mutex
	conn   *client.Client
	room   protocol.RoomState
	joined bool
	volume int
	muted  bool
}

// New creates a new listener
func New(config Config) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	clk := clock.New()

	return &Player{
		config:   config,
		clk:      clk,
		output:   player.New(clk),
		controls: ui.NewControls(),
		ctx:      ctx,
		cancel:   cancel,
		volume:   100,
	}
}

// Start runs the listener until Stop is called or the session ends
func (p *Player) Start() error {
	if p.config.UseTUI {
		p.tuiProg = ui.Run(p.controls)
		go func() {
			if _, err := p.tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			p.cancel()
		}()
		go p.handleControls()
	}

	addr := p.config.ServerAddr
	if addr == "" {
		found, err := p.discover()
		if err != nil {
			return err
		}
		addr = found
	}

	c, err := p.connect(addr)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	select {
	case <-p.ctx.Done():
	case <-c.Done():
		log.Printf("Disconnected from server")
	}

	return nil
}

// discover waits for the first server seen on the LAN
func (p *Player) discover() (string, error) {
	p.discovery = discovery.NewManager(discovery.Config{})
	if err := p.discovery.Browse(); err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	log.Printf("Searching for servers...")

	select {
	case server := <-p.discovery.Servers():
		log.Printf("Found server %s at %s", server.Name, server.Addr())
		return server.Addr(), nil
	case <-p.ctx.Done():
		return "", p.ctx.Err()
	}
}

// connect establishes connection to server
func (p *Player) connect(serverAddr string) (*client.Client, error) {
	cache, err := trackcache.New(p.config.CacheDir, serverAddr)
	if err != nil {
		return nil, err
	}
	p.tracks = cache

	c := client.NewClient(client.Config{
		ServerAddr: serverAddr,
		ClientID:   uuid.New().String(),
		Name:       p.config.Name,
		RoomID:     p.config.RoomID,
		RoomName:   p.config.RoomName,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
	})

	if err := c.Connect(); err != nil {
		return nil, err
	}
	p.setClient(c)

	hello := c.Hello()
	log.Printf("Joined room %s on %s as %s", hello.RoomID, hello.Name, hello.Role)

	connected := true
	host := hello.Role == "host"
	p.updateTUI(ui.StatusMsg{Connected: &connected, ServerName: hello.Name, Host: &host})

	go p.handleRoomStates(c)
	go p.handleErrors(c)
	go p.reportLoop()
	go p.loadLibrary(c)

	if host {
		p.runStartupCommands(c)
	} else if p.config.Play != "" || len(p.config.Enqueue) > 0 {
		log.Printf("Not the host of room %s; ignoring -play and -enqueue", hello.RoomID)
	}

	return c, nil
}

// Commander sends host commands to the room
type Commander interface {
	Play(trackID string) error
	Enqueue(trackID string) error
}

// runStartupCommands queues and plays the tracks named in the config
func (p *Player) runStartupCommands(c Commander) {
	for _, id := range p.config.Enqueue {
		if err := c.Enqueue(id); err != nil {
			log.Printf("Failed to enqueue %s: %v", id, err)
		}
	}
	if p.config.Play != "" {
		if err := c.Play(p.config.Play); err != nil {
			log.Printf("Failed to play %s: %v", p.config.Play, err)
		}
	}
}

// loadLibrary hands the server's track list to the TUI
func (p *Player) loadLibrary(c *client.Client) {
	tracks, err := c.FetchTracks(p.ctx)
	if err != nil {
		log.Printf("Could not load library: %v", err)
		return
	}
	log.Printf("Server library has %d tracks", len(tracks))
	p.updateTUI(ui.StatusMsg{Library: libraryTracks(tracks)})
}

func libraryTracks(tracks []protocol.Track) []ui.LibraryTrack {
	out := make([]ui.LibraryTrack, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, ui.LibraryTrack{ID: t.ID, Title: t.Title, Artist: t.Artist})
	}
	return out
}

func (p *Player) setClient(c *client.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = c
}

func (p *Player) currentClient() *client.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// handleRoomStates applies each room update to local playback
func (p *Player) handleRoomStates(c *client.Client) {
	for {
		select {
		case state := <-c.RoomStates:
			p.applyRoomState(state)
		case <-c.Done():
			p.output.Stop()
			connected := false
			p.updateTUI(ui.StatusMsg{Connected: &connected})
			p.cancel()
			return
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Player) handleErrors(c *client.Client) {
	for {
		select {
		case serverErr := <-c.Errors:
			p.updateTUI(ui.StatusMsg{Notice: serverErr.Message})
		case <-p.ctx.Done():
			return
		}
	}
}

// reportLoop periodically corrects drift and reports local playback
func (p *Player) reportLoop() {
	ticker := p.clk.Ticker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			state, joined := p.room, p.joined
			p.mu.Unlock()
			if joined {
				p.syncOutput(state)
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// applyRoomState records a room update and brings local audio in line with it
func (p *Player) applyRoomState(state protocol.RoomState) {
	p.mu.Lock()
	p.room = state
	p.joined = true
	p.mu.Unlock()

	p.updateTUI(roomStatus(state, p.clientID()))
	p.syncOutput(state)
}

// syncOutput starts, restarts, or stops audio to match state
func (p *Player) syncOutput(state protocol.RoomState) {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()

	ref := playback.FromUnixMillis(state.ReferenceStart)
	if !state.IsPlaying || ref == nil || state.TrackID == "" {
		p.output.Stop()
		p.reportState()
		return
	}

	target := playback.CurrentOffset(ref, p.clk.Now())
	if state.Track != nil && state.Track.Duration > 0 && target >= state.Track.Duration {
		p.output.Stop()
		p.reportState()
		return
	}

	current, pos, playing := p.output.Position()
	if !needsResync(current, pos, playing, state.TrackID, target) {
		p.reportState()
		return
	}

	path, err := p.tracks.Get(state.TrackID)
	if err != nil {
		log.Printf("Failed to fetch track %s: %v", state.TrackID, err)
		p.updateTUI(ui.StatusMsg{Notice: "Could not fetch track"})
		return
	}

	// The download may have taken a while
	target = playback.CurrentOffset(ref, p.clk.Now())
	if playing && current == state.TrackID {
		log.Printf("Drift %.2fs on %s, resyncing", pos-target, state.TrackID)
	}

	if err := p.output.Play(state.TrackID, path, target); err != nil {
		if errors.Is(err, player.ErrPastEnd) {
			p.output.Stop()
		} else {
			log.Printf("Playback error: %v", err)
		}
	}
	p.reportState()
}

// needsResync reports whether local audio must be (re)started
func needsResync(current string, pos float64, playing bool, trackID string, target float64) bool {
	if !playing || current != trackID {
		return true
	}
	return math.Abs(pos-target) > resyncThreshold
}

// handleControls carries out TUI actions
func (p *Player) handleControls() {
	for {
		select {
		case cmd := <-p.controls.Commands:
			p.handleCommand(cmd)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Player) handleCommand(cmd ui.Command) {
	var err error
	switch cmd.Kind {
	case ui.CommandQuit:
		p.cancel()
		return
	case ui.CommandVolume:
		p.mu.Lock()
		p.volume = cmd.Volume
		p.mu.Unlock()
		p.output.SetVolume(cmd.Volume)
		p.reportState()
		return
	case ui.CommandMute:
		p.mu.Lock()
		p.muted = cmd.Muted
		p.mu.Unlock()
		p.output.SetMuted(cmd.Muted)
		p.reportState()
		return
	}

	c := p.currentClient()
	if c == nil {
		p.updateTUI(ui.StatusMsg{Notice: "Not connected yet"})
		return
	}

	switch cmd.Kind {
	case ui.CommandPlay:
		err = c.Play(cmd.TrackID)
	case ui.CommandEnqueue:
		err = c.Enqueue(cmd.TrackID)
	case ui.CommandPause:
		err = c.Pause()
	case ui.CommandSkip:
		err = c.Skip()
	case ui.CommandSeek:
		err = c.Seek(cmd.Position)
	}
	if err != nil {
		log.Printf("Command failed: %v", err)
	}
}

// reportState sends local playback to the server
func (p *Player) reportState() {
	p.mu.Lock()
	c, volume, muted := p.conn, p.volume, p.muted
	p.mu.Unlock()

	if c == nil || !c.IsConnected() {
		return
	}

	state := protocol.ClientState{State: "stopped", Volume: volume, Muted: muted}
	if id, pos, ok := p.output.Position(); ok {
		state.State = "playing"
		state.TrackID = id
		state.Offset = pos
	}

	if err := c.SendState(state); err != nil {
		log.Printf("Failed to report state: %v", err)
	}
}

func (p *Player) clientID() string {
	c := p.currentClient()
	if c == nil {
		return ""
	}
	return c.ID()
}

// roomStatus converts a room update for display
func roomStatus(state protocol.RoomState, clientID string) ui.StatusMsg {
	status := &ui.RoomStatus{
		TrackID:        state.TrackID,
		IsPlaying:      state.IsPlaying,
		ReferenceStart: playback.FromUnixMillis(state.ReferenceStart),
	}
	if state.Track != nil {
		status.Title = state.Track.Title
		status.Artist = state.Track.Artist
		status.Album = state.Track.Album
		status.Duration = state.Track.Duration
	}
	if status.Title == "" {
		status.Title = state.TrackID
	}
	for _, t := range state.Queue {
		status.Queued = append(status.Queued, t.Title)
	}

	host := clientID != "" && state.HostID == clientID
	return ui.StatusMsg{RoomName: state.Name, Host: &host, Room: status}
}

func (p *Player) updateTUI(msg ui.StatusMsg) {
	if p.tuiProg != nil {
		p.tuiProg.Send(msg)
	}
}

// Stop stops the listener
func (p *Player) Stop() {
	p.cancel()

	if c := p.currentClient(); c != nil {
		c.Close()
	}

	if p.discovery != nil {
		p.discovery.Stop()
	}

	if p.output != nil {
		p.output.Close()
	}

	if p.tuiProg != nil {
		p.tuiProg.Quit()
	}
}
