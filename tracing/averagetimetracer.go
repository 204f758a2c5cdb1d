package tracing

import (
	"sync"

	"github.com/sarchlab/copyengine/sim"
)

// AverageTimeTracer measures how long the filtered tasks take on average.
type AverageTimeTracer struct {
	clock  sim.TimeTeller
	filter TaskFilter

	mu       sync.Mutex
	started  map[string]sim.VTimeInSec
	total    sim.VTimeInSec
	finished uint64
}

// NewAverageTimeTracer creates an AverageTimeTracer that reads time from
// clock.
func NewAverageTimeTracer(
	clock sim.TimeTeller,
	filter TaskFilter,
) *AverageTimeTracer {
	return &AverageTimeTracer{
		clock:   clock,
		filter:  filter,
		started: make(map[string]sim.VTimeInSec),
	}
}

// AverageTime returns the mean duration of the finished tasks, or 0 if none
// finished.
func (t *AverageTimeTracer) AverageTime() sim.VTimeInSec {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished == 0 {
		return 0
	}

	return t.total / sim.VTimeInSec(t.finished)
}

// TotalCount returns how many tasks finished.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.finished
}

// StartTask notes when a task started.
func (t *AverageTimeTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	now := t.clock.CurrentTime()

	t.mu.Lock()
	t.started[task.ID] = now
	t.mu.Unlock()
}

// StepTask ignores steps.
func (t *AverageTimeTracer) StepTask(Task) {}

// EndTask adds the duration of a timed task.
func (t *AverageTimeTracer) EndTask(task Task) {
	now := t.clock.CurrentTime()

	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok := t.started[task.ID]
	if !ok {
		return
	}

	delete(t.started, task.ID)
	t.total += now - start
	t.finished++
}
