package tracing

import (
	"log"
	"sync"

	"github.com/sarchlab/copyengine/datarecording"
	"github.com/sarchlab/copyengine/sim"
)

type taskTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
	NumSteps  int
}

type stepTableEntry struct {
	TaskID string
	Time   float64
	What   string
}

// DBTracer writes finished tasks into the "trace" table and their steps into
// "trace_steps". Tasks that never end are dropped.
type DBTracer struct {
	clock   sim.TimeTeller
	backend datarecording.DataRecorder

	mu   sync.Mutex
	open map[string]*Task
}

// NewDBTracer creates the trace tables in the recorder.
func NewDBTracer(
	clock sim.TimeTeller,
	recorder datarecording.DataRecorder,
) *DBTracer {
	recorder.CreateTable("trace", taskTableEntry{})
	recorder.CreateTable("trace_steps", stepTableEntry{})

	return &DBTracer{
		clock:   clock,
		backend: recorder,
		open:    make(map[string]*Task),
	}
}

// StartTask opens a task.
func (t *DBTracer) StartTask(task Task) {
	if task.Location == "" {
		log.Panic("task location must be set")
	}

	task.StartTime = t.clock.CurrentTime()

	t.mu.Lock()
	t.open[task.ID] = &task
	t.mu.Unlock()
}

// StepTask stamps the steps of an open task with the current time.
func (t *DBTracer) StepTask(task Task) {
	now := t.clock.CurrentTime()

	t.mu.Lock()
	defer t.mu.Unlock()

	if open, ok := t.open[task.ID]; ok {
		for _, s := range task.Steps {
			open.Steps = append(open.Steps, TaskStep{Time: now, What: s.What})
		}
	}
}

// EndTask closes a task and hands its rows to the recorder.
func (t *DBTracer) EndTask(task Task) {
	now := t.clock.CurrentTime()

	t.mu.Lock()
	done, ok := t.open[task.ID]
	delete(t.open, task.ID)
	t.mu.Unlock()

	if !ok {
		return
	}

	t.backend.InsertData("trace", taskTableEntry{
		ID:        done.ID,
		ParentID:  done.ParentID,
		Kind:      done.Kind,
		What:      done.What,
		Location:  done.Location,
		StartTime: float64(done.StartTime),
		EndTime:   float64(now),
		NumSteps:  len(done.Steps),
	})

	for _, s := range done.Steps {
		t.backend.InsertData("trace_steps", stepTableEntry{
			TaskID: done.ID,
			Time:   float64(s.Time),
			What:   s.What,
		})
	}
}

// Terminate drops the open tasks and flushes the recorder.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	clear(t.open)
	t.mu.Unlock()

	t.backend.Flush()
}
