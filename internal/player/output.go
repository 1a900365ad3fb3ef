// ABOUTME: Audio output for room tracks using go-mp3 and oto
// ABOUTME: Decodes a cached MP3 and plays it from a given offset with volume control
package player

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always decodes to 16-bit stereo
const bytesPerFrame = 4

// ErrPastEnd is returned when the requested offset is beyond the track
var ErrPastEnd = errors.New("offset past end of track")

// Player plays one track at a time
type Player struct {
	mu  sync.Mutex
	clk clock.Clock

	// oto allows one context per process, so the first track's rate sticks
	otoCtx     *oto.Context
	sampleRate int

	player *oto.Player
	file   *os.File

	trackID     string
	startOffset float64
	startedAt   time.Time

	volume int
	muted  bool
}

// New creates a player. A nil clock uses the wall clock.
func New(clk clock.Clock) *Player {
	if clk == nil {
		clk = clock.New()
	}
	return &Player{
		clk:    clk,
		volume: 100,
	}
}

// ByteOffset converts seconds into a frame-aligned PCM byte offset
func ByteOffset(seconds float64, sampleRate int) int64 {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return int64(seconds*float64(sampleRate)) * bytesPerFrame
}

// Play starts trackID from the file at path, offset seconds in. Any
// current track is stopped first.
func (p *Player) Play(trackID, path string, offset float64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open track: %w", err)
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode track: %w", err)
	}

	pos := ByteOffset(offset, dec.SampleRate())
	if pos >= dec.Length() {
		f.Close()
		return ErrPastEnd
	}
	if pos > 0 {
		if _, err := dec.Seek(pos, io.SeekStart); err != nil {
			f.Close()
			return fmt.Errorf("failed to seek: %w", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureContext(dec.SampleRate()); err != nil {
		f.Close()
		return err
	}

	var src io.Reader = dec
	if dec.SampleRate() != p.sampleRate {
		log.Printf("Resampling %dHz -> %dHz", dec.SampleRate(), p.sampleRate)
		src = newResampleReader(dec, dec.SampleRate(), p.sampleRate)
	}

	p.stopLocked()

	p.player = p.otoCtx.NewPlayer(src)
	p.player.SetVolume(getVolumeMultiplier(p.volume, p.muted))
	p.player.Play()
	p.file = f
	p.markStarted(trackID, offset)

	log.Printf("Playing %s from %.2fs", trackID, offset)
	return nil
}

func (p *Player) ensureContext(sampleRate int) error {
	if p.otoCtx != nil {
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	p.otoCtx = ctx
	p.sampleRate = sampleRate
	log.Printf("Audio output initialized: %dHz, 2 channels", sampleRate)
	return nil
}

func (p *Player) markStarted(trackID string, offset float64) {
	p.trackID = trackID
	p.startOffset = offset
	p.startedAt = p.clk.Now()
}

// Stop halts playback
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.player != nil {
		p.player.Pause()
		p.player.Close()
		p.player = nil
	}
	if p.file != nil {
		p.file.Close()
		p.file = nil
	}
	p.trackID = ""
}

// Position returns the playing track and its estimated offset in seconds
func (p *Player) Position() (string, float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.trackID == "" {
		return "", 0, false
	}
	if p.player != nil && !p.player.IsPlaying() {
		return "", 0, false
	}
	return p.trackID, p.startOffset + p.clk.Since(p.startedAt).Seconds(), true
}

// SetVolume sets the volume (0-100)
func (p *Player) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.applyVolume()
	log.Printf("Volume set to %d", volume)
}

// SetMuted sets mute state
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	p.applyVolume()
	log.Printf("Muted: %v", muted)
}

// Volume returns current volume
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// IsMuted returns mute state
func (p *Player) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *Player) applyVolume() {
	if p.player != nil {
		p.player.SetVolume(getVolumeMultiplier(p.volume, p.muted))
	}
}

// Close stops playback and suspends the audio device
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	if p.otoCtx != nil {
		p.otoCtx.Suspend()
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
