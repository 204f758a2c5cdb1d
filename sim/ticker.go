package sim

import "sync"

// Ticker advances its state by one clock cycle. Tick reports whether
// anything changed.
type Ticker interface {
	Tick() bool
}

type tickEvent struct {
	time    VTimeInSec
	handler Handler
}

func (e tickEvent) Time() VTimeInSec { return e.time }
func (e tickEvent) Handler() Handler { return e.handler }

// TickingComponent calls its Ticker on clock edges for as long as the ticker
// makes progress. Once it stops, something has to call TickLater to wake it
// up again.
type TickingComponent struct {
	*ComponentBase

	engine Engine
	freq   Freq
	ticker Ticker

	mu       sync.Mutex
	nextTick VTimeInSec
}

// NewTickingComponent creates a ticking component clocked at freq.
func NewTickingComponent(
	name string,
	engine Engine,
	freq Freq,
	ticker Ticker,
) *TickingComponent {
	return &TickingComponent{
		ComponentBase: NewComponentBase(name),
		engine:        engine,
		freq:          freq,
		ticker:        ticker,
		nextTick:      -1,
	}
}

// TickLater makes sure the component ticks on the cycle after now.
func (c *TickingComponent) TickLater() {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.freq.NextTick(c.engine.CurrentTime())
	if t <= c.nextTick {
		return
	}

	c.nextTick = t
	c.engine.Schedule(tickEvent{time: t, handler: c})
}

// Handle runs one tick.
func (c *TickingComponent) Handle(_ Event) error {
	if c.ticker.Tick() {
		c.TickLater()
	}

	return nil
}
