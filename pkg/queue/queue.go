package queue

import (
	"math/rand/v2"
	"time"
)

// Track is a single playable entry in the queue. Tracks are immutable once
// queued; identity is the catalog ID, and duplicate IDs occupy distinct
// positions. The locator is opaque to playback logic and handed as-is to
// the media sink.
type Track struct {
	ID              string
	Title           string
	Artist          string
	Album           string
	DurationSeconds int // 0 when unknown
	Locator         string
}

// Queue owns two orderings of the same track set: the canonical insertion
// order, and a shuffled permutation regenerated whenever the set changes or
// shuffle is re-enabled. The shuffled ordering is always a permutation of
// the canonical one.
//
// Queue is not safe for concurrent use; the transport serializes access.
type Queue struct {
	canonical []Track
	shuffled  []Track
	shuffle   bool
	rng       *rand.Rand
}

func New() *Queue {
	seed := uint64(time.Now().UnixNano())
	return NewWithRand(rand.New(rand.NewPCG(seed, seed>>1)))
}

// NewWithRand creates a queue with an injected random source, so tests can
// shuffle deterministically.
func NewWithRand(rng *rand.Rand) *Queue {
	return &Queue{rng: rng}
}

// SetTracks replaces the canonical ordering and regenerates the shuffled
// one. An empty input yields an empty queue.
func (q *Queue) SetTracks(tracks []Track) {
	q.canonical = make([]Track, len(tracks))
	copy(q.canonical, tracks)
	q.Reshuffle()
}

// Append adds tracks at the end of the canonical ordering and regenerates
// the shuffled ordering from the full updated set.
func (q *Queue) Append(tracks []Track) {
	q.canonical = append(q.canonical, tracks...)
	q.Reshuffle()
}

// Clear empties both orderings.
func (q *Queue) Clear() {
	q.canonical = nil
	q.shuffled = nil
}

func (q *Queue) Len() int { return len(q.canonical) }

// Canonical returns the insertion ordering.
func (q *Queue) Canonical() []Track { return q.canonical }

// Shuffled returns the current shuffled permutation.
func (q *Queue) Shuffled() []Track { return q.shuffled }

// Active returns the ordering index-based navigation operates on.
func (q *Queue) Active() []Track {
	if q.shuffle {
		return q.shuffled
	}
	return q.canonical
}

func (q *Queue) ShuffleEnabled() bool { return q.shuffle }

// SetShuffleEnabled selects the active ordering. Enabling regenerates the
// permutation so it carries no memory of prior orderings.
func (q *Queue) SetShuffleEnabled(enabled bool) {
	if enabled && !q.shuffle {
		q.Reshuffle()
	}
	q.shuffle = enabled
}

// Reshuffle regenerates the shuffled ordering as an independent uniform
// permutation of the canonical one (Fisher-Yates).
func (q *Queue) Reshuffle() {
	q.shuffled = make([]Track, len(q.canonical))
	copy(q.shuffled, q.canonical)
	for i := len(q.shuffled) - 1; i >= 1; i-- {
		j := q.rng.IntN(i + 1)
		q.shuffled[i], q.shuffled[j] = q.shuffled[j], q.shuffled[i]
	}
}

// SwapShuffled exchanges two positions of the shuffled ordering. Out of
// range positions are ignored.
func (q *Queue) SwapShuffled(i, j int) {
	if i < 0 || j < 0 || i >= len(q.shuffled) || j >= len(q.shuffled) {
		return
	}
	q.shuffled[i], q.shuffled[j] = q.shuffled[j], q.shuffled[i]
}

// IndexByID returns the first position of the track with the given ID in
// the given ordering, or -1 when absent.
func IndexByID(tracks []Track, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
