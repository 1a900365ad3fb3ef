// ABOUTME: Tests for playback state transitions
// ABOUTME: Checks Stopped/Playing invariants across play, pause, and seek
package playback

import (
	"errors"
	"testing"
	"time"
)

func TestPlayPauseCycle(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	var s State

	if s.Offset(now) != 0 {
		t.Error("expected stopped state to have offset 0")
	}
	if err := s.Validate(now); err != nil {
		t.Errorf("zero state should be valid: %v", err)
	}

	if err := s.Play("track-1", now); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if !s.IsPlaying || s.ReferenceStart == nil || !s.ReferenceStart.Equal(now) {
		t.Fatalf("unexpected state after play: %+v", s)
	}
	if got := s.Offset(now.Add(12 * time.Second)); got != 12 {
		t.Errorf("expected offset 12, got %f", got)
	}

	s.Pause()
	if s.IsPlaying || s.ReferenceStart != nil {
		t.Errorf("expected reference cleared after pause: %+v", s)
	}
	if s.TrackID != "track-1" {
		t.Errorf("pause should keep the track, got %q", s.TrackID)
	}
	if err := s.Validate(now); err != nil {
		t.Errorf("paused state should be valid: %v", err)
	}
}

func TestPlayRequiresTrack(t *testing.T) {
	var s State
	if err := s.Play("", time.Now()); !errors.Is(err, ErrNoTrack) {
		t.Errorf("expected ErrNoTrack, got %v", err)
	}
	if s.IsPlaying {
		t.Error("state should remain stopped")
	}
}

func TestSeek(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	var s State

	if err := s.Seek(10, now); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying when stopped, got %v", err)
	}

	_ = s.Play("track-1", now)
	later := now.Add(7 * time.Second)

	if err := s.Seek(45, later); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if got := s.Offset(later); got != 45 {
		t.Errorf("expected offset 45 after seek, got %f", got)
	}

	if err := s.Seek(-5, later); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if got := s.Offset(later); got != 0 {
		t.Errorf("expected negative seek clamped to 0, got %f", got)
	}
}

func TestValidate(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	future := now.Add(time.Minute)

	tests := []struct {
		name    string
		state   State
		wantErr bool
	}{
		{"stopped", State{}, false},
		{"playing", State{TrackID: "a", IsPlaying: true, ReferenceStart: &now}, false},
		{"playing without reference", State{TrackID: "a", IsPlaying: true}, true},
		{"stopped with reference", State{TrackID: "a", ReferenceStart: &now}, true},
		{"future reference", State{TrackID: "a", IsPlaying: true, ReferenceStart: &future}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate(now)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
