package transport

import (
	"time"

	"sonicdeck/pkg/queue"
)

// EventKind identifies a media sink lifecycle notification.
type EventKind int

const (
	EventStarted EventKind = iota
	EventPaused
	EventTimeUpdated
	EventEnded
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventPaused:
		return "paused"
	case EventTimeUpdated:
		return "timeUpdated"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification from the media sink. Seq identifies the
// load it belongs to; the transport drops events whose sequence has been
// superseded by a newer load, so a late completion can never apply stale
// state.
type Event struct {
	Kind     EventKind
	Seq      uint64
	Position time.Duration
	Duration time.Duration
	Err      error
}

// Sink is the single mutable playback slot the transport commands: one
// locator loaded at a time. Load is asynchronous; it returns the sequence
// number of the new load and reports completion through the event channel
// as a started or failed event. The transport is the sole issuer of
// commands and the sink the sole source of lifecycle events.
type Sink interface {
	Load(locator string) uint64
	Play()
	Pause()
	Stop()
	Seek(pos time.Duration) error
	SetVolume(v float64)
	SetMuted(muted bool)
	Position() time.Duration
	Duration() time.Duration
	Events() <-chan Event
}

// TimeStatus is the payload of the time-updated notification.
type TimeStatus struct {
	Position time.Duration
	Duration time.Duration
}

// notifier holds the five host-facing callback slots. Each slot is a single
// subscriber: the last assignment wins.
type notifier struct {
	trackChanged     func(queue.Track)
	playStateChanged func(bool)
	timeUpdated      func(TimeStatus)
	ended            func()
	err              func(error)
}

// Status is a point-in-time snapshot of the transport state for the host.
type Status struct {
	ActiveIndex int // -1 when no track is selected
	IsPlaying   bool
	Repeat      RepeatMode
	Shuffle     bool
	Volume      float64
	Muted       bool
	QueueLength int
	Position    time.Duration
	Duration    time.Duration
}
