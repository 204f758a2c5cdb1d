package sim

import (
	"container/heap"
	"log"
	"sync"
)

// SerialEngine handles one event at a time.
//
// Drivers kick the device from their own goroutines while the device clock or
// an interrupt servicing caller runs the queue. Schedule is safe from any
// goroutine. Concurrent Run calls take turns; a Run that got the turn late
// finds the queue already drained and returns.
type SerialEngine struct {
	HookableBase

	mu    sync.Mutex
	now   VTimeInSec
	queue eventHeap
	seq   uint64

	running sync.Mutex
}

// NewSerialEngine creates an engine at time 0 with nothing to do.
func NewSerialEngine() *SerialEngine {
	return &SerialEngine{}
}

// Schedule queues evt. Events at the same time run in the order they were
// scheduled.
func (e *SerialEngine) Schedule(evt Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if evt.Time() < e.now {
		log.Panicf("event scheduled at %.10f, but it is already %.10f",
			evt.Time(), e.now)
	}

	e.seq++
	heap.Push(&e.queue, queuedEvent{evt: evt, seq: e.seq})
}

// Run handles events until the queue is empty.
func (e *SerialEngine) Run() error {
	e.running.Lock()
	defer e.running.Unlock()

	for {
		evt, ok := e.advance()
		if !ok {
			return nil
		}

		ctx := HookCtx{Domain: e, Pos: HookPosBeforeEvent, Item: evt}
		e.InvokeHook(ctx)

		if err := evt.Handler().Handle(evt); err != nil {
			return err
		}

		ctx.Pos = HookPosAfterEvent
		e.InvokeHook(ctx)
	}
}

// advance pops the earliest event and moves the clock to it.
func (e *SerialEngine) advance() (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return nil, false
	}

	evt := heap.Pop(&e.queue).(queuedEvent).evt
	e.now = evt.Time()

	return evt, true
}

// HasPendingEvent tells if any event is queued.
func (e *SerialEngine) HasPendingEvent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.queue) > 0
}

// CurrentTime returns the time of the last event taken from the queue.
func (e *SerialEngine) CurrentTime() VTimeInSec {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.now
}

type queuedEvent struct {
	evt Event
	seq uint64
}

// eventHeap orders events by time, then by scheduling order.
type eventHeap []queuedEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	ti, tj := h[i].evt.Time(), h[j].evt.Time()
	if ti != tj {
		return ti < tj
	}

	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(queuedEvent))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]

	return last
}
