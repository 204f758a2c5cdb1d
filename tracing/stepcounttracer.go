package tracing

import "sync"

type stepTally struct {
	steps uint64
	tasks uint64
}

// StepCountTracer counts, per step name, how many steps the filtered tasks
// reported and how many tasks reported at least one.
type StepCountTracer struct {
	filter TaskFilter

	mu      sync.Mutex
	order   []string
	tallies map[string]*stepTally
	open    map[string]map[string]struct{}
}

// NewStepCountTracer creates a StepCountTracer.
func NewStepCountTracer(filter TaskFilter) *StepCountTracer {
	return &StepCountTracer{
		filter:  filter,
		tallies: make(map[string]*stepTally),
		open:    make(map[string]map[string]struct{}),
	}
}

// GetStepNames returns the step names in the order they first showed up.
func (t *StepCountTracer) GetStepNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.order...)
}

// GetStepCount returns how many steps had the name.
func (t *StepCountTracer) GetStepCount(stepName string) uint64 {
	return t.tally(stepName).steps
}

// GetTaskCount returns how many tasks had a step with the name.
func (t *StepCountTracer) GetTaskCount(stepName string) uint64 {
	return t.tally(stepName).tasks
}

func (t *StepCountTracer) tally(stepName string) stepTally {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.tallies[stepName]; ok {
		return *s
	}

	return stepTally{}
}

// StartTask begins counting a task if it passes the filter.
func (t *StepCountTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	t.mu.Lock()
	t.open[task.ID] = make(map[string]struct{})
	t.mu.Unlock()
}

// StepTask counts the steps of a counted task.
func (t *StepCountTracer) StepTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen, counted := t.open[task.ID]
	if !counted {
		return
	}

	for _, step := range task.Steps {
		s := t.tallies[step.What]
		if s == nil {
			s = &stepTally{}
			t.tallies[step.What] = s
			t.order = append(t.order, step.What)
		}

		s.steps++
		if _, dup := seen[step.What]; !dup {
			seen[step.What] = struct{}{}
			s.tasks++
		}
	}
}

// EndTask stops counting a task.
func (t *StepCountTracer) EndTask(task Task) {
	t.mu.Lock()
	delete(t.open, task.ID)
	t.mu.Unlock()
}
