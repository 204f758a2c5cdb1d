package channel

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/ring"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/status"
)

// Builder can build channels.
type Builder struct {
	alloc     rm.Allocator
	log       logrus.FieldLogger
	engine    rm.EngineInstance
	slots     uint32
	tagSlots  uint32
	secure    bool
	blockSize uint64
	aperture  rm.Aperture
	lite      bool
	timeout   time.Duration
	subch     uint32
	fastScrub bool
	payload   uint32
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		log:       logrus.StandardLogger(),
		slots:     128,
		tagSlots:  64,
		blockSize: 0x80,
		aperture:  rm.ApertureSysmem,
		timeout:   4 * time.Second,
		subch:     4,
	}
}

// WithAllocator sets the resource manager.
func (b Builder) WithAllocator(a rm.Allocator) Builder {
	b.alloc = a
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.log = l
	return b
}

// WithEngine sets the engine instance the channel is bound to.
func (b Builder) WithEngine(e rm.EngineInstance) Builder {
	b.engine = e
	return b
}

// WithSlots sets the number of pushbuffer slots.
func (b Builder) WithSlots(n uint32) Builder {
	b.slots = n
	return b
}

// WithSecure makes the channel a secure channel with tagSlots slots per tag
// ring.
func (b Builder) WithSecure(tagSlots uint32) Builder {
	b.secure = true
	b.tagSlots = tagSlots

	return b
}

// WithBlockSize sets the number of bytes per pushbuffer slot.
func (b Builder) WithBlockSize(n uint64) Builder {
	b.blockSize = n
	return b
}

// WithAperture sets where the channel buffer is allocated.
func (b Builder) WithAperture(a rm.Aperture) Builder {
	b.aperture = a
	return b
}

// WithLiteMode lets the resource manager ring doorbells for the channel.
func (b Builder) WithLiteMode(lite bool) Builder {
	b.lite = lite
	return b
}

// WithTimeout sets the deadline of every wait.
func (b Builder) WithTimeout(d time.Duration) Builder {
	b.timeout = d
	return b
}

// WithFastScrub lets memsets that qualify take the memory scrub path. The
// engine class must support it.
func (b Builder) WithFastScrub(fastScrub bool) Builder {
	b.fastScrub = fastScrub
	return b
}

// WithInitialPayload sets the value the work semaphore starts at. A channel
// that takes over from another one continues its payload sequence.
func (b Builder) WithInitialPayload(v uint32) Builder {
	b.payload = v
	return b
}

// WithSubchannel sets the subchannel the engine object is bound to.
func (b Builder) WithSubchannel(s uint32) Builder {
	b.subch = s
	return b
}

// Build allocates the channel buffer and the channel object.
func (b Builder) Build(name string) (*Channel, error) {
	if b.alloc == nil {
		return nil, fmt.Errorf("channel %s: no allocator: %w",
			name, status.ErrInvalidArgument)
	}

	if b.slots < 2 || (b.secure && b.tagSlots < 2) ||
		b.subch > methods.MaxSubchannel {
		return nil, fmt.Errorf("channel %s: %w", name, status.ErrInvalidArgument)
	}

	if b.fastScrub && !methods.SupportsFastScrub(b.engine.Class) {
		return nil, fmt.Errorf("channel %s: fast scrub on class 0x%x: %w",
			name, b.engine.Class, status.ErrNotSupported)
	}

	c := &Channel{
		name:    name,
		alloc:   b.alloc,
		engine:  b.engine,
		subch:   b.subch,
		lite:    b.lite,
		timeout: b.timeout,
		scrub:   b.fastScrub,
		layout:  NewLayout(b.blockSize, b.slots, b.secure, b.tagSlots),
		slots:   ring.NewProducer(b.slots),
		gpfifo:  ring.NewProducer(b.slots),
	}

	c.log = b.log.WithFields(logrus.Fields{
		"channel": name,
		"engine":  b.engine.ID,
	})

	if b.secure {
		c.tagRings[TagRingAuth] = ring.NewProducer(b.tagSlots)
		c.tagRings[TagRingDigest] = ring.NewProducer(b.tagSlots)
	}

	mem, err := b.alloc.AllocMemory(c.layout.Size, b.aperture, true)
	if err != nil {
		return nil, fmt.Errorf("channel %s: alloc buffer: %w", name, err)
	}

	c.mem = mem
	c.va = rm.IdentityVA(mem.Aperture, mem.Base)

	if err := c.initBuffer(b.payload); err != nil {
		_ = b.alloc.FreeMemory(mem)
		return nil, err
	}

	params := rm.ChannelAllocParams{
		ChannelClass:  methods.ChannelClass,
		EngineClass:   b.engine.Class,
		Engine:        b.engine.ID,
		Buffer:        mem,
		GPFIFOOffset:  c.layout.GPFIFOOffset,
		GPFIFOEntries: b.slots,
		USERDOffset:   c.layout.USERDOffset,
		Secure:        b.secure,
	}

	if methods.IsCEClass(b.engine.Class) {
		params.CE = methods.CEAllocParams(b.engine.ID)
	}

	h, err := b.alloc.AllocChannel(params)
	if err != nil {
		_ = b.alloc.FreeMemory(mem)
		return nil, fmt.Errorf("channel %s: alloc channel: %w", name, err)
	}

	c.handle = h

	c.log.WithFields(logrus.Fields{
		"slots":  b.slots,
		"secure": b.secure,
		"size":   c.layout.Size,
	}).Debug("channel created")

	return c, nil
}

// initBuffer clears the semaphores and marks slot 0 as consumed, so that the
// first submission goes to slot 1. The work semaphore starts at payload.
func (c *Channel) initBuffer(payload uint32) error {
	return c.withMapping(func(m rm.Mapping) error {
		zero := make([]byte, c.layout.GPFIFOOffset-c.layout.HostSemaOffset)
		if err := m.Write(c.layout.HostSemaOffset, zero); err != nil {
			return err
		}

		err := rm.WriteUint32(m, c.layout.WorkSemaOffset, payload)
		if err != nil {
			return err
		}

		err = rm.WriteWords(m, c.layout.USERDOffset+USERDGPGet,
			[]uint32{1, 1, 0})
		if err != nil {
			return err
		}

		m.FlushWriteCombine()

		return nil
	})
}
