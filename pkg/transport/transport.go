package transport

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"sonicdeck/pkg/queue"
)

// RepeatMode controls the ended-track transition.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

func ParseRepeatMode(s string) (RepeatMode, error) {
	switch s {
	case "off":
		return RepeatOff, nil
	case "one":
		return RepeatOne, nil
	case "all":
		return RepeatAll, nil
	}
	return RepeatOff, fmt.Errorf("unknown repeat mode %q", s)
}

// A deliberate double-press on previous restarts the current track instead
// of jumping back, like most players.
const restartThreshold = 3 * time.Second

// Transport is the playback state machine. It owns the queue and the
// current index into its active ordering, commands the media sink, and
// reacts to the sink's lifecycle events on its own goroutine. Host-facing
// operations may be called from any goroutine.
type Transport struct {
	mu   sync.Mutex
	q    *queue.Queue
	sink Sink

	activeIndex int // -1 when no track is selected
	isPlaying   bool
	repeat      RepeatMode
	volume      float64
	muted       bool

	// loadSeq is the sequence of the most recent sink load. Events carrying
	// an older sequence belong to a superseded load and are dropped.
	loadSeq            uint64
	current            queue.Track
	pendingTrackChange bool

	n notifier

	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// New creates a transport over the given queue and sink and starts
// consuming the sink's events. The queue must only be mutated through the
// transport from then on.
func New(q *queue.Queue, s Sink) *Transport {
	t := &Transport{
		q:           q,
		sink:        s,
		activeIndex: -1,
		volume:      1,
		closed:      make(chan struct{}),
		done:        make(chan struct{}),
		logger:      slog.Default().With("component", "transport"),
	}
	go t.run()
	return t
}

// Close detaches from the sink events and unloads the sink. The transport
// must not be used afterwards.
func (t *Transport) Close() {
	t.closeOnce.Do(func() { close(t.closed) })
	t.sink.Stop()
}

// Done is closed when the event loop has terminated, by Close or by the
// sink closing its event channel.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) run() {
	defer close(t.done)
	for {
		select {
		case <-t.closed:
			return
		case ev, ok := <-t.sink.Events():
			if !ok {
				return
			}
			t.handleEvent(ev)
		}
	}
}

// --- Notification slots ---

func (t *Transport) OnTrackChanged(cb func(queue.Track)) {
	t.mu.Lock()
	t.n.trackChanged = cb
	t.mu.Unlock()
}

func (t *Transport) OnPlayStateChanged(cb func(bool)) {
	t.mu.Lock()
	t.n.playStateChanged = cb
	t.mu.Unlock()
}

func (t *Transport) OnTimeUpdated(cb func(TimeStatus)) {
	t.mu.Lock()
	t.n.timeUpdated = cb
	t.mu.Unlock()
}

func (t *Transport) OnEnded(cb func()) {
	t.mu.Lock()
	t.n.ended = cb
	t.mu.Unlock()
}

func (t *Transport) OnError(cb func(error)) {
	t.mu.Lock()
	t.n.err = cb
	t.mu.Unlock()
}

// --- Queue mutation ---

// SetQueue replaces the queue wholesale, clears the selection and unloads
// the sink.
func (t *Transport) SetQueue(tracks []queue.Track) {
	t.mu.Lock()
	t.q.SetTracks(tracks)
	t.activeIndex = -1
	t.mu.Unlock()
	t.sink.Stop()
}

// AddToQueue appends tracks. The selection is kept.
func (t *Transport) AddToQueue(tracks []queue.Track) {
	t.mu.Lock()
	t.q.Append(tracks)
	t.mu.Unlock()
}

// ClearQueue empties the queue, clears the selection and unloads the sink.
func (t *Transport) ClearQueue() {
	t.mu.Lock()
	t.q.Clear()
	t.activeIndex = -1
	t.mu.Unlock()
	t.sink.Stop()
}

// --- Transport operations ---

// PlayIndex selects the track at the given position of the active ordering
// and starts loading it. Out of range positions are a no-op. The selection
// is applied immediately; whether playback actually starts is reported
// later by the sink, and the selection stands even if the load fails.
func (t *Transport) PlayIndex(i int) {
	t.mu.Lock()
	t.playIndexLocked(i)
	t.mu.Unlock()
}

func (t *Transport) playIndexLocked(i int) {
	tracks := t.q.Active()
	if i < 0 || i >= len(tracks) {
		return
	}
	t.activeIndex = i
	t.current = tracks[i]
	t.pendingTrackChange = true
	t.loadSeq = t.sink.Load(t.current.Locator)
	t.logger.Debug("loading track", "index", i, "track_id", t.current.ID, "seq", t.loadSeq)
}

// Play starts the first track when nothing is selected, otherwise resumes
// the loaded track.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.activeIndex < 0 {
		if t.q.Len() > 0 {
			t.playIndexLocked(0)
		}
		return
	}
	t.sink.Play()
}

// Pause pauses the sink; the play state flips when the sink confirms.
func (t *Transport) Pause() {
	t.sink.Pause()
}

func (t *Transport) TogglePlay() {
	t.mu.Lock()
	playing := t.isPlaying
	t.mu.Unlock()
	if playing {
		t.Pause()
	} else {
		t.Play()
	}
}

// Stop pauses and rewinds to the start. The selection is kept.
func (t *Transport) Stop() {
	t.sink.Pause()
	if err := t.sink.Seek(0); err != nil {
		t.logger.Warn("rewind failed", "error", err)
	}
}

func (t *Transport) HasNext() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasNextLocked()
}

func (t *Transport) HasPrevious() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasPreviousLocked()
}

func (t *Transport) hasNextLocked() bool {
	return t.activeIndex >= 0 && t.activeIndex < len(t.q.Active())-1
}

func (t *Transport) hasPreviousLocked() bool {
	return t.activeIndex > 0
}

func (t *Transport) Next() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasNextLocked() {
		return
	}
	t.playIndexLocked(t.activeIndex + 1)
}

// Previous restarts the current track when more than the restart threshold
// has played, otherwise moves to the prior track if there is one.
func (t *Transport) Previous() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink.Position() > restartThreshold {
		if err := t.sink.Seek(0); err != nil {
			t.logger.Warn("restart failed", "error", err)
		}
		return
	}
	if t.hasPreviousLocked() {
		t.playIndexLocked(t.activeIndex - 1)
	}
}

// Seek moves to an absolute position in the current track. Non-finite
// values are rejected.
func (t *Transport) Seek(seconds float64) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if err := t.sink.Seek(time.Duration(seconds * float64(time.Second))); err != nil {
		t.logger.Warn("seek failed", "seconds", seconds, "error", err)
	}
}

// SeekPercent converts a [0,100] percentage of the current track to an
// absolute position. A no-op while the duration is unknown.
func (t *Transport) SeekPercent(p float64) {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return
	}
	d := t.sink.Duration()
	if d <= 0 {
		return
	}
	p = clamp(p, 0, 100)
	if err := t.sink.Seek(time.Duration(float64(d) * p / 100)); err != nil {
		t.logger.Warn("seek failed", "percent", p, "error", err)
	}
}

// SetVolume clamps v to [0,1] and applies it; the stored value always
// reflects the clamped result.
func (t *Transport) SetVolume(v float64) {
	v = clamp01(v)
	t.mu.Lock()
	t.volume = v
	t.mu.Unlock()
	t.sink.SetVolume(v)
}

// ToggleMute flips the mute flag independently of the volume.
func (t *Transport) ToggleMute() {
	t.mu.Lock()
	t.muted = !t.muted
	muted := t.muted
	t.mu.Unlock()
	t.sink.SetMuted(muted)
}

func (t *Transport) SetRepeat(mode RepeatMode) {
	t.mu.Lock()
	t.repeat = mode
	t.mu.Unlock()
}

// ToggleShuffle flips the active ordering. Enabling regenerates the
// permutation and relocates the selected track to position 0 of it, so the
// switch never jumps to a different track. Disabling finds the selected
// track's canonical position by identity.
func (t *Transport) ToggleShuffle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	hasCurrent := t.activeIndex >= 0 && t.activeIndex < len(t.q.Active())
	var currentID string
	if hasCurrent {
		currentID = t.q.Active()[t.activeIndex].ID
	}

	if !t.q.ShuffleEnabled() {
		t.q.SetShuffleEnabled(true)
		if hasCurrent {
			if pos := queue.IndexByID(t.q.Shuffled(), currentID); pos >= 0 {
				t.q.SwapShuffled(pos, 0)
			}
			t.activeIndex = 0
		}
		return
	}

	t.q.SetShuffleEnabled(false)
	if hasCurrent {
		t.activeIndex = queue.IndexByID(t.q.Canonical(), currentID)
	}
}

// --- State access ---

func (t *Transport) ActiveIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeIndex
}

func (t *Transport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isPlaying
}

// CurrentTrack returns the selected track, if any.
func (t *Transport) CurrentTrack() (queue.Track, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracks := t.q.Active()
	if t.activeIndex < 0 || t.activeIndex >= len(tracks) {
		return queue.Track{}, false
	}
	return tracks[t.activeIndex], true
}

func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		ActiveIndex: t.activeIndex,
		IsPlaying:   t.isPlaying,
		Repeat:      t.repeat,
		Shuffle:     t.q.ShuffleEnabled(),
		Volume:      t.volume,
		Muted:       t.muted,
		QueueLength: t.q.Len(),
		Position:    t.sink.Position(),
		Duration:    t.sink.Duration(),
	}
}

// --- Sink event handling ---

// handleEvent applies one sink event. Notifications are collected under the
// lock and fired after releasing it, so a callback may call back into the
// transport.
func (t *Transport) handleEvent(ev Event) {
	t.mu.Lock()
	if ev.Seq != t.loadSeq {
		current := t.loadSeq
		t.mu.Unlock()
		t.logger.Debug("dropping stale sink event", "kind", ev.Kind, "seq", ev.Seq, "current", current)
		return
	}

	var fire []func()
	switch ev.Kind {
	case EventStarted:
		if !t.isPlaying {
			t.isPlaying = true
			if cb := t.n.playStateChanged; cb != nil {
				fire = append(fire, func() { cb(true) })
			}
		}
		if t.pendingTrackChange {
			t.pendingTrackChange = false
			if cb := t.n.trackChanged; cb != nil {
				tr := t.current
				fire = append(fire, func() { cb(tr) })
			}
		}

	case EventPaused:
		if t.isPlaying {
			t.isPlaying = false
			if cb := t.n.playStateChanged; cb != nil {
				fire = append(fire, func() { cb(false) })
			}
		}

	case EventTimeUpdated:
		if cb := t.n.timeUpdated; cb != nil {
			st := TimeStatus{Position: ev.Position, Duration: ev.Duration}
			fire = append(fire, func() { cb(st) })
		}

	case EventEnded:
		fire = t.handleEndedLocked()

	case EventFailed:
		t.logger.Warn("playback failed", "index", t.activeIndex, "track_id", t.current.ID, "error", ev.Err)
		t.pendingTrackChange = false
		if t.isPlaying {
			t.isPlaying = false
			if cb := t.n.playStateChanged; cb != nil {
				fire = append(fire, func() { cb(false) })
			}
		}
		if cb := t.n.err; cb != nil {
			err := ev.Err
			fire = append(fire, func() { cb(err) })
		}
	}
	t.mu.Unlock()

	for _, f := range fire {
		f()
	}
}

// handleEndedLocked runs the ended-track transition: repeat-one restarts
// the track, otherwise advance, otherwise repeat-all wraps to the start,
// otherwise remain stopped at the end of the queue. Failures never
// auto-advance; only a clean end does.
func (t *Transport) handleEndedLocked() []func() {
	var fire []func()
	if cb := t.n.ended; cb != nil {
		fire = append(fire, cb)
	}

	tracks := t.q.Active()
	switch {
	case t.repeat == RepeatOne && t.activeIndex >= 0 && t.activeIndex < len(tracks):
		t.playIndexLocked(t.activeIndex)
	case t.hasNextLocked():
		t.playIndexLocked(t.activeIndex + 1)
	case t.repeat == RepeatAll && len(tracks) > 0:
		t.playIndexLocked(0)
	default:
		if t.isPlaying {
			t.isPlaying = false
			if cb := t.n.playStateChanged; cb != nil {
				fire = append(fire, func() { cb(false) })
			}
		}
	}
	return fire
}
