package sink

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

const tapRingSize = 2048

// Tap captures the most recent samples flowing through the sink so a
// visualizer can read amplitude data. Playback never consumes it.
type Tap struct {
	mu   sync.Mutex
	ring [][2]float64
	pos  int
	full bool
}

func newTap() *Tap {
	return &Tap{ring: make([][2]float64, tapRingSize)}
}

// observe records samples. Called from the speaker goroutine.
func (t *Tap) observe(samples [][2]float64) {
	t.mu.Lock()
	for _, s := range samples {
		t.ring[t.pos] = s
		t.pos++
		if t.pos == len(t.ring) {
			t.pos = 0
			t.full = true
		}
	}
	t.mu.Unlock()
}

// Samples returns the captured window in playback order, oldest first.
func (t *Tap) Samples() [][2]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		out := make([][2]float64, t.pos)
		copy(out, t.ring[:t.pos])
		return out
	}
	out := make([][2]float64, len(t.ring))
	n := copy(out, t.ring[t.pos:])
	copy(out[n:], t.ring[:t.pos])
	return out
}

// tapStreamer forwards samples unchanged and mirrors them into the tap.
type tapStreamer struct {
	s   beep.Streamer
	tap *Tap
}

func (ts tapStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := ts.s.Stream(samples)
	if n > 0 {
		ts.tap.observe(samples[:n])
	}
	return n, ok
}

func (ts tapStreamer) Err() error {
	return ts.s.Err()
}
