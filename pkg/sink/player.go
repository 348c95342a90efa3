package sink

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"

	"sonicdeck/pkg/transport"
)

const (
	speakerSampleRate = beep.SampleRate(44100)
	eventBufferSize   = 32
	timeUpdatePeriod  = 500 * time.Millisecond
)

// Player is the beep-backed media sink: a single mutable playback slot
// holding at most one decoded stream at a time. Locators are fetched over
// HTTP into memory before decoding so the mp3 streamer stays seekable.
type Player struct {
	mu sync.Mutex

	httpc       *http.Client
	initialized bool

	// seq is the current load sequence; every emitted event carries the
	// sequence of the load it belongs to.
	seq      uint64
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	gain     float64
	muted    bool

	tap *Tap

	events    chan transport.Event
	quit      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

var _ transport.Sink = (*Player)(nil)

// NewPlayer creates a sink fetching streams with the given HTTP client
// (http.DefaultClient when nil). The speaker is initialized lazily on the
// first load.
func NewPlayer(httpc *http.Client) *Player {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	p := &Player{
		httpc:  httpc,
		gain:   1,
		events: make(chan transport.Event, eventBufferSize),
		quit:   make(chan struct{}),
		logger: slog.Default().With("component", "sink"),
	}
	go p.timeLoop()
	return p
}

// Close stops playback and the time update loop.
func (p *Player) Close() {
	p.closeOnce.Do(func() { close(p.quit) })
	p.Stop()
}

// Events implements [transport.Sink].
func (p *Player) Events() <-chan transport.Event {
	return p.events
}

// emit sends without blocking: a slow consumer drops events rather than
// stalling the speaker callback path.
func (p *Player) emit(ev transport.Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("event buffer full, dropping event", "kind", ev.Kind)
	}
}

// Load implements [transport.Sink]. The fetch and decode run off the
// caller's goroutine; completion surfaces as a started or failed event
// carrying the returned sequence.
func (p *Player) Load(locator string) uint64 {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.unloadLocked()
	p.mu.Unlock()

	go p.load(seq, locator)
	return seq
}

func (p *Player) load(seq uint64, locator string) {
	data, err := p.fetch(locator)
	if err != nil {
		p.emit(transport.Event{Kind: transport.EventFailed, Seq: seq, Err: err})
		return
	}

	streamer, format, err := mp3.Decode(nopCloser{bytes.NewReader(data)})
	if err != nil {
		p.emit(transport.Event{Kind: transport.EventFailed, Seq: seq, Err: fmt.Errorf("decoding stream: %w", err)})
		return
	}

	p.mu.Lock()
	if seq != p.seq {
		// A newer load superseded this one while we were fetching.
		p.mu.Unlock()
		streamer.Close()
		return
	}

	if err := p.initSpeakerLocked(); err != nil {
		p.mu.Unlock()
		streamer.Close()
		p.emit(transport.Event{Kind: transport.EventFailed, Seq: seq, Err: err})
		return
	}

	p.streamer = streamer
	p.format = format

	var src beep.Streamer = beep.Resample(4, format.SampleRate, speakerSampleRate, streamer)
	if p.tap != nil {
		src = tapStreamer{s: src, tap: p.tap}
	}
	p.volume = &effects.Volume{
		Streamer: src,
		Base:     2,
		Volume:   gainToVolume(p.gain),
		Silent:   p.muted || p.gain <= 0,
	}
	p.ctrl = &beep.Ctrl{Streamer: p.volume}
	duration := p.durationLocked()

	speaker.Play(beep.Seq(p.ctrl, beep.Callback(func() {
		// Finish on a separate goroutine: the callback runs on the speaker
		// goroutine and must not re-enter the speaker lock.
		go p.finished(seq)
	})))

	// Emit before releasing the lock: the time loop cannot observe the new
	// ctrl until the started event is already queued, so a load's time
	// updates never precede its started.
	p.emit(transport.Event{Kind: transport.EventStarted, Seq: seq, Duration: duration})
	p.mu.Unlock()
}

func (p *Player) fetch(locator string) ([]byte, error) {
	resp, err := p.httpc.Get(locator)
	if err != nil {
		return nil, fmt.Errorf("fetching stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching stream: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading stream body: %w", err)
	}
	return data, nil
}

func (p *Player) finished(seq uint64) {
	p.mu.Lock()
	if seq != p.seq || p.streamer == nil {
		p.mu.Unlock()
		return
	}
	err := p.streamer.Err()
	p.streamer.Close()
	p.streamer = nil
	p.ctrl = nil
	p.volume = nil
	p.mu.Unlock()

	if err != nil {
		p.emit(transport.Event{Kind: transport.EventFailed, Seq: seq, Err: err})
		return
	}
	p.emit(transport.Event{Kind: transport.EventEnded, Seq: seq})
}

func (p *Player) initSpeakerLocked() error {
	if p.initialized {
		return nil
	}
	if err := speaker.Init(speakerSampleRate, speakerSampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("initializing speaker: %w", err)
	}
	p.initialized = true
	return nil
}

// Play implements [transport.Sink]: it resumes the loaded stream. A resume
// with no loaded stream is logged and ignored.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		p.logger.Debug("resume requested with no loaded stream")
		return
	}
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
	p.emit(transport.Event{Kind: transport.EventStarted, Seq: p.seq, Position: p.positionLocked(), Duration: p.durationLocked()})
}

// Pause implements [transport.Sink].
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
	p.emit(transport.Event{Kind: transport.EventPaused, Seq: p.seq, Position: p.positionLocked()})
}

// Stop implements [transport.Sink]: it unloads the stream entirely. The
// slot stays empty until the next load.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unloadLocked()
}

func (p *Player) unloadLocked() {
	if p.ctrl != nil {
		speaker.Lock()
		// A Ctrl with no streamer reports done, so the mixer drops the
		// abandoned entry instead of holding the decoded track until
		// shutdown. The completion callback this triggers is discarded by
		// the sequence guard in finished.
		p.ctrl.Streamer = nil
		speaker.Unlock()
		p.emit(transport.Event{Kind: transport.EventPaused, Seq: p.seq})
	}
	if p.streamer != nil {
		p.streamer.Close()
		p.streamer = nil
	}
	p.ctrl = nil
	p.volume = nil
}

// Seek implements [transport.Sink]. The position is clamped to the stream
// bounds; seeking with no loaded stream is a no-op.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return nil
	}
	speaker.Lock()
	defer speaker.Unlock()
	n := p.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if limit := p.streamer.Len(); n > limit {
		n = limit
	}
	return p.streamer.Seek(n)
}

// SetVolume implements [transport.Sink]. v is a linear [0,1] gain.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gain = v
	p.applyVolumeLocked()
}

// SetMuted implements [transport.Sink].
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	p.applyVolumeLocked()
}

func (p *Player) applyVolumeLocked() {
	if p.volume == nil {
		return
	}
	speaker.Lock()
	p.volume.Volume = gainToVolume(p.gain)
	p.volume.Silent = p.muted || p.gain <= 0
	speaker.Unlock()
}

// gainToVolume maps a linear [0,1] gain onto the exponential scale
// effects.Volume expects with Base 2. Zero gain is handled by Silent.
func gainToVolume(gain float64) float64 {
	if gain <= 0 {
		return 0
	}
	return math.Log2(gain)
}

// Position implements [transport.Sink].
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	if p.streamer == nil {
		return 0
	}
	speaker.Lock()
	n := p.streamer.Position()
	speaker.Unlock()
	return p.format.SampleRate.D(n)
}

// Duration implements [transport.Sink]. Zero while no stream is loaded.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durationLocked()
}

func (p *Player) durationLocked() time.Duration {
	if p.streamer == nil {
		return 0
	}
	return p.format.SampleRate.D(p.streamer.Len())
}

// AnalysisTap returns the shared analysis tap, creating it on first use;
// subsequent calls return the same handle. The tap observes samples from
// the next load onward.
func (p *Player) AnalysisTap() *Tap {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tap == nil {
		p.tap = newTap()
	}
	return p.tap
}

// timeLoop emits periodic time updates while a stream is playing.
func (p *Player) timeLoop() {
	ticker := time.NewTicker(timeUpdatePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.ctrl == nil {
				p.mu.Unlock()
				continue
			}
			speaker.Lock()
			paused := p.ctrl.Paused
			speaker.Unlock()
			if paused {
				p.mu.Unlock()
				continue
			}
			ev := transport.Event{
				Kind:     transport.EventTimeUpdated,
				Seq:      p.seq,
				Position: p.positionLocked(),
				Duration: p.durationLocked(),
			}
			p.mu.Unlock()
			p.emit(ev)
		}
	}
}

// nopCloser adapts an in-memory reader to the io.ReadCloser mp3.Decode
// expects.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
