package gpu

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gvisor.dev/gvisor/pkg/abi/nvgpu"

	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/memory"
	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/ring"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/sim"
)

// Builder can build devices.
type Builder struct {
	engine     sim.Engine
	freq       sim.Freq
	log        logrus.FieldLogger
	fbSize     uint64
	sysmemSize uint64
	ceClass    uint32
	numCE      int
	partitions uint32
	stubbed    map[uint32]bool
	secret     []byte
	fragment   bool
	vaSpace    bool
	queueSize  int
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:       1 * sim.GHz,
		log:        logrus.StandardLogger(),
		fbSize:     256 * memory.MB,
		sysmemSize: 64 * memory.MB,
		ceClass:    nvgpu.HOPPER_DMA_COPY_A,
		numCE:      4,
		partitions: 1,
		vaSpace:    true,
		queueSize:  4,
	}
}

// WithEngine sets the simulation engine. By default each device gets its own
// serial engine.
func (b Builder) WithEngine(e sim.Engine) Builder {
	b.engine = e
	return b
}

// WithFreq sets the frequency of the front-end and the engines.
func (b Builder) WithFreq(f sim.Freq) Builder {
	b.freq = f
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.log = l
	return b
}

// WithFBSize sets the size of the frame buffer.
func (b Builder) WithFBSize(n uint64) Builder {
	b.fbSize = n
	return b
}

// WithSysmemSize sets the size of system memory.
func (b Builder) WithSysmemSize(n uint64) Builder {
	b.sysmemSize = n
	return b
}

// WithCopyEngines sets the number and the class of the copy engines.
func (b Builder) WithCopyEngines(n int, class uint32) Builder {
	b.numCE = n
	b.ceClass = class

	return b
}

// WithPartitions spreads the copy engines over n partitions, round robin.
func (b Builder) WithPartitions(n uint32) Builder {
	b.partitions = n
	return b
}

// WithStubbedCE marks a copy engine as present but not to be selected
// automatically.
func (b Builder) WithStubbedCE(id uint32) Builder {
	stubbed := make(map[uint32]bool, len(b.stubbed)+1)
	for k, v := range b.stubbed {
		stubbed[k] = v
	}

	stubbed[id] = true
	b.stubbed = stubbed

	return b
}

// WithConfidentialCompute turns on confidential computing. Secure channels
// derive their keys from secret, and the device gets a SEC2 engine.
func (b Builder) WithConfidentialCompute(secret []byte) Builder {
	b.secret = secret
	return b
}

// WithFragmentation makes non-contiguous allocations never use two adjacent
// pages.
func (b Builder) WithFragmentation(fragment bool) Builder {
	b.fragment = fragment
	return b
}

// WithoutVASpace makes the device report that client memory is not reachable
// through virtual addresses.
func (b Builder) WithoutVASpace() Builder {
	b.vaSpace = false
	return b
}

// WithQueueSize sets how many fetched segments an engine can hold.
func (b Builder) WithQueueSize(n int) Builder {
	b.queueSize = n
	return b
}

// Build creates a device.
func (b Builder) Build(name string) *Device {
	sim.NameMustBeValid(name)

	d := &Device{
		name:     name,
		log:      b.log.WithField("device", name),
		engine:   b.engine,
		fb:       memory.NewStorage(b.fbSize),
		sysmem:   memory.NewStorage(b.sysmemSize),
		vaSpace:  b.vaSpace,
		secret:   b.secret,
		vidPages: newPageAllocator(b.fbSize, rm.PageSize, b.fragment),
		sysPages: newPageAllocator(b.sysmemSize, rm.PageSize, b.fragment),
		memDescs: make(map[rm.Handle]*rm.MemDesc),
		channels: make(map[rm.Handle]*channelState),
		intr:     newInterruptController(),
		wake:     make(chan struct{}, 1),
	}

	if d.engine == nil {
		d.engine = sim.NewSerialEngine()
	}

	d.frontEnd = &FrontEnd{dev: d}
	d.frontEnd.TickingComponent = sim.NewTickingComponent(
		name+".FrontEnd", d.engine, b.freq, d.frontEnd)

	for i := 0; i < b.numCE; i++ {
		id := uint32(i)
		ce := &CopyEngine{}
		ce.engineBase = b.buildEngineBase(
			d, fmt.Sprintf("%s.CE[%d]", name, i), b.ceClass,
			rm.EngineInstance{
				ID:        id,
				Class:     b.ceClass,
				Partition: id % b.partitions,
				Stubbed:   b.stubbed[id],
			},
			channel.Unit{Kind: channel.UnitCE, Instance: id},
		)
		ce.method = ce.ceMethod
		d.ces = append(d.ces, ce)
	}

	if b.secret != nil {
		s := &Sec2{}
		s.engineBase = b.buildEngineBase(
			d, name+".SEC2", methods.HOPPER_SEC2_WORK_LAUNCH_A,
			rm.EngineInstance{Class: methods.HOPPER_SEC2_WORK_LAUNCH_A},
			channel.Unit{Kind: channel.UnitSec2},
		)
		s.method = s.sec2Method
		d.sec2 = s
	}

	return d
}

func (b Builder) buildEngineBase(
	d *Device,
	name string,
	class uint32,
	instance rm.EngineInstance,
	unit channel.Unit,
) *engineBase {
	e := &engineBase{
		dev:      d,
		class:    class,
		instance: instance,
		unit:     unit,
		queue:    ring.NewRing[segment](name+".Queue", b.queueSize),
	}
	e.TickingComponent = sim.NewTickingComponent(name, d.engine, b.freq, e)

	return e
}
