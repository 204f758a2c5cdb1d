// Package channel manages the command channel of an engine: the pushbuffer,
// the GPFIFO, the consumer index and completion semaphores, and for secure
// channels the two tag rings.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/progress"
	"github.com/sarchlab/copyengine/pushbuffer"
	"github.com/sarchlab/copyengine/ring"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/status"
)

// Channel is a command channel bound to one engine instance. It has a single
// producer: callers serialize their own access.
type Channel struct {
	name    string
	alloc   rm.Allocator
	log     logrus.FieldLogger
	layout  Layout
	mem     *rm.MemDesc
	va      uint64
	handle  rm.Handle
	engine  rm.EngineInstance
	subch   uint32
	lite    bool
	scrub   bool
	timeout time.Duration

	slots    *ring.Producer
	gpfifo   *ring.Producer
	tagRings [2]*ring.Producer

	broken    error
	destroyed bool
}

// Name returns the name of the channel.
func (c *Channel) Name() string {
	return c.name
}

// Layout returns the buffer layout.
func (c *Channel) Layout() Layout {
	return c.layout
}

// Handle returns the resource manager handle of the channel object.
func (c *Channel) Handle() rm.Handle {
	return c.handle
}

// Engine returns the engine instance the channel is bound to.
func (c *Channel) Engine() rm.EngineInstance {
	return c.engine
}

// Timeout returns the deadline applied to every wait.
func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

// Target returns what the encoders need to know about the channel.
func (c *Channel) Target() pushbuffer.Target {
	t := pushbuffer.Target{
		Subch:        c.subch,
		EngineClass:  c.engine.Class,
		FastScrub:    c.scrub,
		HostSemaAddr: c.va + c.layout.HostSemaOffset,
		WorkSemaAddr: c.va + c.layout.WorkSemaOffset,
	}

	if c.layout.Secure {
		t.TagGetSemaAddr = c.va + c.layout.TagGetSemaOffset
	}

	return t
}

// withMapping maps the channel buffer for the duration of f.
func (c *Channel) withMapping(f func(m rm.Mapping) error) (err error) {
	if c.destroyed {
		return fmt.Errorf("channel %s: %w", c.name, status.ErrInvalidState)
	}

	m, err := c.alloc.Map(c.mem)
	if err != nil {
		return err
	}

	defer func() {
		unmapErr := c.alloc.Unmap(m)
		if err == nil {
			err = unmapErr
		}
	}()

	return f(m)
}

func (c *Channel) readWord(offset uint64) (v uint32, err error) {
	err = c.withMapping(func(m rm.Mapping) error {
		v, err = rm.ReadUint32(m, offset)
		return err
	})

	return v, err
}

// ReadHostSemaphore returns the index of the slot consumed last.
func (c *Channel) ReadHostSemaphore() (uint32, error) {
	return c.readWord(c.layout.HostSemaOffset)
}

// ReadWorkSemaphore returns the low 32 bits of the payload completed last.
func (c *Channel) ReadWorkSemaphore() (uint32, error) {
	return c.readWord(c.layout.WorkSemaOffset)
}

// Faulted tells if the front-end has put the channel in an error state.
func (c *Channel) Faulted() (bool, error) {
	v, err := c.readWord(c.layout.USERDOffset + USERDError)
	return v != 0, err
}

// wait is Wait with the channel's timeout. A timeout on a faulted channel
// also matches status.ErrChannelError.
func (c *Channel) wait(
	ctx context.Context,
	sched SchedulingContext,
	cond func() (bool, error),
) error {
	err := Wait(ctx, sched, c.timeout, cond)
	if !errors.Is(err, status.ErrTimeout) {
		return err
	}

	if faulted, _ := c.Faulted(); faulted {
		return fmt.Errorf("channel %s: %w: %w",
			c.name, status.ErrTimeout, status.ErrChannelError)
	}

	return fmt.Errorf("channel %s: %w", c.name, status.ErrTimeout)
}

// WaitForFreeSlot waits until the slot after the last submitted one has been
// consumed and returns it.
func (c *Channel) WaitForFreeSlot(
	ctx context.Context,
	sched SchedulingContext,
) (uint32, error) {
	err := c.wait(ctx, sched, func() (bool, error) {
		get, err := c.ReadHostSemaphore()
		if err != nil {
			return false, err
		}

		return c.slots.HasRoom(get), nil
	})
	if err != nil {
		c.log.WithField("slot", c.slots.Next()).
			Warn("no free pushbuffer slot")

		return 0, err
	}

	return c.slots.Next(), nil
}

// WriteSlot copies an encoded stream into a pushbuffer block.
func (c *Channel) WriteSlot(slot uint32, words []uint32) error {
	if uint64(len(words))*4 > c.layout.BlockSize {
		log.Panicf("channel %s: %d words overrun the %d byte block",
			c.name, len(words), c.layout.BlockSize)
	}

	return c.withMapping(func(m rm.Mapping) error {
		return rm.WriteWords(m, c.layout.SlotOffset(slot), words)
	})
}

// FillDescriptor points the next GPFIFO entry at slot, publishes it and rings
// the doorbell. slot must be the one returned by WaitForFreeSlot.
func (c *Channel) FillDescriptor(slot uint32, byteLen uint32) error {
	if slot != c.slots.Next() {
		log.Panicf("channel %s: submitting slot %d, expecting %d",
			c.name, slot, c.slots.Next())
	}

	entry := c.gpfifo.Next()
	gp := methods.GPEntry{
		Addr:   c.va + c.layout.SlotOffset(slot),
		Length: byteLen,
	}
	e0, e1 := gp.Encode()
	gpPut := (entry + 1) % c.gpfifo.Size()

	err := c.withMapping(func(m rm.Mapping) error {
		if err := rm.WriteWords(m, c.layout.GPEntryOffset(entry),
			[]uint32{e0, e1}); err != nil {
			return err
		}

		m.FlushWriteCombine()

		if err := rm.WriteUint32(m, c.layout.USERDOffset+USERDGPPut,
			gpPut); err != nil {
			return err
		}

		m.FlushWriteCombine()

		return nil
	})
	if err != nil {
		return err
	}

	c.slots.Advance()
	c.gpfifo.Advance()

	if c.lite {
		return c.alloc.KickChannel(c.handle)
	}

	return c.alloc.RingDoorbell(c.handle)
}

// Submit waits for a free slot, encodes desc into it and kicks it off.
// The slot number is filled into desc by the caller through slotted.
func (c *Channel) Submit(
	ctx context.Context,
	sched SchedulingContext,
	enc pushbuffer.Encoder,
	slotted func(slot uint32) pushbuffer.WorkDescriptor,
) (uint32, error) {
	if c.broken != nil {
		return 0, fmt.Errorf("channel %s: %w", c.name, c.broken)
	}

	slot, err := c.WaitForFreeSlot(ctx, sched)
	if err != nil {
		return 0, err
	}

	words, err := enc.Encode(ctx, slotted(slot), c.Target())
	if err != nil {
		if errors.Is(err, status.ErrChannelError) {
			c.breakDown(err)
		}

		return 0, err
	}

	if err := c.WriteSlot(slot, words); err != nil {
		c.breakDownIfSecure(err)
		return 0, err
	}

	if err := c.FillDescriptor(slot, uint32(len(words)*4)); err != nil {
		c.breakDownIfSecure(err)
		return 0, err
	}

	return slot, nil
}

// A signed stream that never reaches the engine leaves the signing session
// one step ahead of the engine's. Every later stream would fail to verify,
// so the channel refuses further submissions and has to be rebuilt.
func (c *Channel) breakDownIfSecure(err error) {
	if c.layout.Secure {
		c.breakDown(err)
	}
}

func (c *Channel) breakDown(err error) {
	c.broken = fmt.Errorf("%w: %w", status.ErrChannelError, err)
	c.log.WithError(err).Error("channel must be rebuilt")
}

// Broken tells if a failed submission left the channel unusable.
func (c *Channel) Broken() bool {
	return c.broken != nil
}

// WaitForPayload waits until the completion semaphore reaches target.
func (c *Channel) WaitForPayload(
	ctx context.Context,
	sched SchedulingContext,
	target uint64,
	tracker *progress.Tracker,
) error {
	err := c.wait(ctx, sched, func() (bool, error) {
		hw, err := c.ReadWorkSemaphore()
		if err != nil {
			return false, err
		}

		return tracker.Update(hw) >= target, nil
	})
	if err != nil {
		c.log.WithField("payload", target).Warn("payload did not complete")
	}

	return err
}

// Destroy frees the channel object and its buffer. The channel cannot be used
// afterwards.
func (c *Channel) Destroy() error {
	if c.destroyed {
		return nil
	}

	c.destroyed = true

	chErr := c.alloc.FreeChannel(c.handle)
	memErr := c.alloc.FreeMemory(c.mem)

	if chErr != nil {
		return chErr
	}

	return memErr
}
