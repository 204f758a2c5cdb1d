package gpu

import (
	"sync"

	"github.com/sarchlab/copyengine/channel"
)

// interruptController keeps the nonstall interrupts that are raised but not
// acknowledged yet.
type interruptController struct {
	lock    sync.Mutex
	pending map[channel.Unit]bool
	signal  chan struct{}
}

func newInterruptController() *interruptController {
	return &interruptController{
		pending: make(map[channel.Unit]bool),
		signal:  make(chan struct{}, 1),
	}
}

func (c *interruptController) raise(u channel.Unit) {
	c.lock.Lock()
	c.pending[u] = true
	c.lock.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *interruptController) isPending(u channel.Unit) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.pending[u]
}

// ack clears the pending interrupts of units, or all of them if no unit is
// given, and returns the units that had one.
func (c *interruptController) ack(units ...channel.Unit) []channel.Unit {
	c.lock.Lock()
	defer c.lock.Unlock()

	var acked []channel.Unit

	if len(units) == 0 {
		for u := range c.pending {
			acked = append(acked, u)
		}
	} else {
		for _, u := range units {
			if c.pending[u] {
				acked = append(acked, u)
			}
		}
	}

	for _, u := range acked {
		delete(c.pending, u)
	}

	return acked
}

// PendingInterrupt tells if a unit has an unacknowledged nonstall interrupt.
func (d *Device) PendingInterrupt(u channel.Unit) bool {
	return d.intr.isPending(u)
}
