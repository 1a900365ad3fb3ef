// ABOUTME: Streaming linear resampler for 16-bit stereo PCM
// ABOUTME: Lets tracks at other sample rates share the single audio context
package player

import (
	"encoding/binary"
	"io"
)

// resampleReader converts 16-bit LE stereo PCM between sample rates
type resampleReader struct {
	src   io.Reader
	ratio float64 // input frames per output frame

	// Output frames are interpolated between prev and next
	pos    float64
	prev   [2]int16
	next   [2]int16
	primed bool
	done   bool

	frame [bytesPerFrame]byte
}

func newResampleReader(src io.Reader, inputRate, outputRate int) *resampleReader {
	return &resampleReader{
		src:   src,
		ratio: float64(inputRate) / float64(outputRate),
	}
}

func (r *resampleReader) readFrame() ([2]int16, bool) {
	if _, err := io.ReadFull(r.src, r.frame[:]); err != nil {
		return [2]int16{}, false
	}
	return [2]int16{
		int16(binary.LittleEndian.Uint16(r.frame[0:])),
		int16(binary.LittleEndian.Uint16(r.frame[2:])),
	}, true
}

func (r *resampleReader) Read(p []byte) (int, error) {
	if !r.primed {
		r.primed = true
		var ok bool
		if r.prev, ok = r.readFrame(); !ok {
			r.done = true
		} else if r.next, ok = r.readFrame(); !ok {
			r.done = true
		}
	}

	n := 0
	for n+bytesPerFrame <= len(p) && !r.done {
		for ch := 0; ch < 2; ch++ {
			v := float64(r.prev[ch])*(1-r.pos) + float64(r.next[ch])*r.pos
			binary.LittleEndian.PutUint16(p[n+ch*2:], uint16(int16(v)))
		}
		n += bytesPerFrame

		r.pos += r.ratio
		for r.pos >= 1 && !r.done {
			r.pos--
			r.prev = r.next
			var ok bool
			if r.next, ok = r.readFrame(); !ok {
				r.done = true
			}
		}
	}

	if n == 0 && r.done {
		return 0, io.EOF
	}
	return n, nil
}
