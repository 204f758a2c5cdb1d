package tracing

import (
	"time"

	"github.com/sarchlab/copyengine/sim"
)

// WallClock tells the time elapsed since it was created. Submitters run in
// real time, so their tasks are timed with it.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a clock that starts now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// CurrentTime returns the seconds elapsed since the clock was created.
func (c *WallClock) CurrentTime() sim.VTimeInSec {
	return sim.VTimeInSec(time.Since(c.start).Seconds())
}
