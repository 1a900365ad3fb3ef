// ABOUTME: Room playback state and its host-driven transitions
// ABOUTME: Stopped and Playing are implied by IsPlaying and ReferenceStart
package playback

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotPlaying is returned when seeking a stopped playback.
	ErrNotPlaying = errors.New("playback is not running")
	// ErrNoTrack is returned when play is requested without a track.
	ErrNoTrack = errors.New("no track selected")
)

// State is the playback record shared by everyone in a room. Only the host
// mutates it.
type State struct {
	TrackID        string
	IsPlaying      bool
	ReferenceStart *time.Time
}

// Play starts trackID from the beginning at now.
func (s *State) Play(trackID string, now time.Time) error {
	if trackID == "" {
		return ErrNoTrack
	}
	start := time.UnixMilli(now.UnixMilli())
	s.TrackID = trackID
	s.IsPlaying = true
	s.ReferenceStart = &start
	return nil
}

// Pause stops playback and clears the reference start. The track is kept.
func (s *State) Pause() {
	s.IsPlaying = false
	s.ReferenceStart = nil
}

// Seek moves a running playback to seconds at now. Negative values are
// clamped to 0.
func (s *State) Seek(seconds float64, now time.Time) error {
	if !s.IsPlaying {
		return ErrNotPlaying
	}
	if seconds < 0 {
		seconds = 0
	}
	start := ReferenceStartForSeek(seconds, now)
	s.ReferenceStart = &start
	return nil
}

// Offset returns the current offset into the track at now.
func (s State) Offset(now time.Time) float64 {
	if !s.IsPlaying {
		return 0
	}
	return CurrentOffset(s.ReferenceStart, now)
}

// Validate reports a violated invariant, if any.
func (s State) Validate(now time.Time) error {
	switch {
	case s.IsPlaying && s.ReferenceStart == nil:
		return fmt.Errorf("playing without reference start")
	case !s.IsPlaying && s.ReferenceStart != nil:
		return fmt.Errorf("stopped with reference start %d", s.ReferenceStart.UnixMilli())
	case s.IsPlaying && s.ReferenceStart.After(now):
		return fmt.Errorf("reference start %d is in the future", s.ReferenceStart.UnixMilli())
	}
	return nil
}

// String returns "playing" or "stopped".
func (s State) String() string {
	if s.IsPlaying {
		return "playing"
	}
	return "stopped"
}
