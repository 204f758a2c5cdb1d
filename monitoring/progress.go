package monitoring

import (
	"sync"
	"time"
)

// ProgressBar follows a batch of work, such as the bytes a scrubber was
// asked to clear. Work is first counted in Total, moves to InProgress when
// submitted and to Finished when the hardware is done with it.
type ProgressBar struct {
	mu sync.Mutex

	ID         string
	Name       string
	StartTime  time.Time
	Total      uint64
	Finished   uint64
	InProgress uint64
}

type progressView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// IncrementTotal adds to the expected amount of work.
func (b *ProgressBar) IncrementTotal(amount uint64) {
	b.mu.Lock()
	b.Total += amount
	b.mu.Unlock()
}

// IncrementInProgress adds to the submitted amount of work.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.mu.Lock()
	b.InProgress += amount
	b.mu.Unlock()
}

// MoveInProgressToFinished marks submitted work as finished. It never moves
// more than what is in progress.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	amount = min(amount, b.InProgress)
	b.InProgress -= amount
	b.Finished += amount
}

// Snapshot reads the counters at once.
func (b *ProgressBar) Snapshot() (total, finished, inProgress uint64) {
	v := b.view()
	return v.Total, v.Finished, v.InProgress
}

func (b *ProgressBar) view() progressView {
	b.mu.Lock()
	defer b.mu.Unlock()

	return progressView{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}
