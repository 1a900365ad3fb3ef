// ABOUTME: Playback clock resolver
// ABOUTME: Converts a shared reference start instant into a track offset and back
package playback

import (
	"math"
	"time"
)

// CurrentOffset returns the seconds elapsed into the track at now for a
// playback that started at referenceStart. A nil reference means nothing is
// playing and yields 0. The result is never negative.
func CurrentOffset(referenceStart *time.Time, now time.Time) float64 {
	if referenceStart == nil {
		return 0
	}

	elapsed := now.Sub(*referenceStart).Seconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// ReferenceStartForSeek returns the reference start instant that makes
// CurrentOffset evaluate to seekSeconds at now.
//
// The host's and the listener's clocks are assumed to be close enough; no
// clock offset is negotiated.
func ReferenceStartForSeek(seekSeconds float64, now time.Time) time.Time {
	ms := int64(math.Round(seekSeconds * 1000))
	return time.UnixMilli(now.UnixMilli() - ms)
}

// UnixMillis converts a reference start to its wire form.
func UnixMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// FromUnixMillis converts a wire reference start back to an instant. Absent or
// non-positive values are treated as "not playing".
func FromUnixMillis(ms *int64) *time.Time {
	if ms == nil || *ms <= 0 {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
