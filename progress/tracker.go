// Package progress extends a 32-bit hardware completion semaphore into 64-bit
// submitted and completed counters.
package progress

import (
	"log"
	"sync"
)

// A Tracker pairs the last submitted payload with the last completed one.
// The hardware counter must not wrap more than once between two updates,
// which holds as long as fewer than 2^32 payloads are outstanding.
type Tracker struct {
	lock          sync.Mutex
	lastSubmitted uint64
	lastCompleted uint64
}

// NewTracker creates a tracker with nothing submitted.
func NewTracker() *Tracker {
	return &Tracker{}
}

// NewTrackerAt creates a tracker whose counters both start at v, as if v
// payloads had already completed.
func NewTrackerAt(v uint64) *Tracker {
	return &Tracker{lastSubmitted: v, lastCompleted: v}
}

// NextPayload reserves and returns the next payload number.
func (t *Tracker) NextPayload() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.lastSubmitted++

	return t.lastSubmitted
}

// LastSubmitted returns the latest payload handed out.
func (t *Tracker) LastSubmitted() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.lastSubmitted
}

// LastCompleted returns the latest completed payload known to the tracker.
func (t *Tracker) LastCompleted() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.lastCompleted
}

// Update folds the value read from the hardware semaphore into the completed
// counter and returns it.
func (t *Tracker) Update(hw uint32) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	low := uint32(t.lastCompleted)
	if hw == low {
		return t.lastCompleted
	}

	if hw < low {
		t.lastCompleted += 1 << 32
	}

	t.lastCompleted = t.lastCompleted&^0xFFFFFFFF | uint64(hw)

	if t.lastCompleted > t.lastSubmitted {
		log.Panicf("completed payload %d is ahead of submitted payload %d",
			t.lastCompleted, t.lastSubmitted)
	}

	return t.lastCompleted
}

// IsComplete tells if payload has completed as of the last update.
func (t *Tracker) IsComplete(payload uint64) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return payload <= t.lastCompleted
}

// Outstanding returns the number of submitted payloads not known to be
// completed.
func (t *Tracker) Outstanding() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.lastSubmitted - t.lastCompleted
}
