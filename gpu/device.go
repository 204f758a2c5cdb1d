// Package gpu models the parts of a GPU that channel submission talks to: the
// resource manager, the host front-end that consumes GPFIFOs, the copy
// engines, the SEC2 engine and their nonstall interrupts.
//
// The model runs on a sim.Engine. Work only moves while the engine runs, which
// happens on the clock goroutine started by Start, or synchronously inside
// ServiceInterrupts.
package gpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/memory"
	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/sim"
	"github.com/sarchlab/copyengine/status"
)

// HookPosLaunch is triggered when an engine has carried out an operation. The
// hook item is a LaunchInfo.
var HookPosLaunch = &sim.HookPos{Name: "Launch"}

// LaunchInfo describes an operation an engine has carried out.
type LaunchInfo struct {
	Channel rm.Handle
	Kind    string
	Bytes   uint64
}

// A Device is a simulated GPU. It is the resource manager of its own memory,
// channels and engines.
type Device struct {
	name   string
	log    logrus.FieldLogger
	engine sim.Engine

	// lock is the device-wide lock. The interrupt handler needs it.
	lock sync.Mutex

	fb     *memory.Storage
	sysmem *memory.Storage

	vaSpace bool
	secret  []byte

	stateLock  sync.Mutex
	nextHandle rm.Handle
	vidPages   *pageAllocator
	sysPages   *pageAllocator
	memDescs   map[rm.Handle]*rm.MemDesc
	channels   map[rm.Handle]*channelState

	frontEnd *FrontEnd
	ces      []*CopyEngine
	sec2     *Sec2
	intr     *interruptController
	wake     chan struct{}
}

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

// Engine returns the simulation engine that drives the device.
func (d *Device) Engine() sim.Engine {
	return d.engine
}

// Lock acquires the device-wide lock.
func (d *Device) Lock() {
	d.lock.Lock()
}

// Unlock releases the device-wide lock.
func (d *Device) Unlock() {
	d.lock.Unlock()
}

// Storage returns the backing storage of an aperture.
func (d *Device) Storage(a rm.Aperture) *memory.Storage {
	if a == rm.ApertureSysmem {
		return d.sysmem
	}

	return d.fb
}

// FrontEnd returns the host front-end.
func (d *Device) FrontEnd() *FrontEnd {
	return d.frontEnd
}

// CopyEngines returns the copy engines, indexed by instance ID.
func (d *Device) CopyEngines() []*CopyEngine {
	return d.ces
}

// Sec2 returns the SEC2 engine. It is nil if the device is not in
// confidential computing mode.
func (d *Device) Sec2() *Sec2 {
	return d.sec2
}

// Components returns all the simulated components.
func (d *Device) Components() []sim.Component {
	comps := []sim.Component{d.frontEnd}
	for _, ce := range d.ces {
		comps = append(comps, ce)
	}

	if d.sec2 != nil {
		comps = append(comps, d.sec2)
	}

	return comps
}

func (d *Device) allocHandle() rm.Handle {
	d.nextHandle++
	return d.nextHandle
}

func (d *Device) pagesOf(a rm.Aperture) *pageAllocator {
	if a == rm.ApertureSysmem {
		return d.sysPages
	}

	return d.vidPages
}

// AllocMemory allocates size bytes in an aperture.
func (d *Device) AllocMemory(
	size uint64,
	aperture rm.Aperture,
	contiguous bool,
) (*rm.MemDesc, error) {
	if size == 0 {
		return nil, fmt.Errorf("%s: empty allocation: %w",
			d.name, status.ErrInvalidArgument)
	}

	d.stateLock.Lock()
	defer d.stateLock.Unlock()

	pages := d.pagesOf(aperture)

	var m *rm.MemDesc

	if contiguous {
		base, ok := pages.allocContiguous(size)
		if !ok {
			return nil, fmt.Errorf("%s: %s: %w",
				d.name, aperture, status.ErrInsufficientResources)
		}

		m = rm.NewContiguousMemDesc(aperture, base, size)
	} else {
		bases, ok := pages.allocPages(size)
		if !ok {
			return nil, fmt.Errorf("%s: %s: %w",
				d.name, aperture, status.ErrInsufficientResources)
		}

		m = rm.NewPagedMemDesc(aperture, bases, rm.PageSize)
		m.Size = size
	}

	m.Handle = d.allocHandle()
	d.memDescs[m.Handle] = m

	return m, nil
}

// FreeMemory releases an allocation.
func (d *Device) FreeMemory(m *rm.MemDesc) error {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()

	if d.memDescs[m.Handle] != m {
		return fmt.Errorf("%s: unknown memory handle %d: %w",
			d.name, m.Handle, status.ErrInvalidArgument)
	}

	delete(d.memDescs, m.Handle)
	d.pagesOf(m.Aperture).free(m)

	return nil
}

// FreePages returns the number of unallocated pages of an aperture.
func (d *Device) FreePages(a rm.Aperture) int {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()

	return d.pagesOf(a).freePages()
}

// Map creates a CPU mapping of an allocation.
func (d *Device) Map(m *rm.MemDesc) (rm.Mapping, error) {
	return &mapping{storage: d.Storage(m.Aperture), desc: m}, nil
}

// Unmap releases a mapping.
func (d *Device) Unmap(mp rm.Mapping) error {
	if _, ok := mp.(*mapping); !ok {
		return fmt.Errorf("%s: foreign mapping: %w",
			d.name, status.ErrInvalidArgument)
	}

	return nil
}

// HasVASpace tells if client memory is reachable through the identity
// mapping.
func (d *Device) HasVASpace() bool {
	return d.vaSpace
}

// EngineInstances lists the engines of a class.
func (d *Device) EngineInstances(class uint32) []rm.EngineInstance {
	var out []rm.EngineInstance

	for _, ce := range d.ces {
		if ce.class == class {
			out = append(out, ce.instance)
		}
	}

	if d.sec2 != nil && class == methods.HOPPER_SEC2_WORK_LAUNCH_A {
		out = append(out, d.sec2.instance)
	}

	return out
}

func (d *Device) findEngine(params rm.ChannelAllocParams) (engine, error) {
	if params.EngineClass == methods.HOPPER_SEC2_WORK_LAUNCH_A {
		if d.sec2 == nil {
			return nil, status.ErrNotSupported
		}

		if !params.Secure {
			return nil, fmt.Errorf("sec2 channels must be secure: %w",
				status.ErrInvalidArgument)
		}

		return d.sec2, nil
	}

	if params.Engine >= uint32(len(d.ces)) ||
		d.ces[params.Engine].class != params.EngineClass {
		return nil, fmt.Errorf("no engine %d of class 0x%x: %w",
			params.Engine, params.EngineClass, status.ErrInvalidArgument)
	}

	if params.CE == nil ||
		params.CE.Version != methods.NVB0B5AllocParamsVersion1 ||
		params.CE.EngineType != params.Engine {
		return nil, fmt.Errorf("bad copy engine allocation parameters: %w",
			status.ErrInvalidArgument)
	}

	return d.ces[params.Engine], nil
}

// AllocChannel creates a channel bound to an engine.
func (d *Device) AllocChannel(params rm.ChannelAllocParams) (rm.Handle, error) {
	if params.ChannelClass != methods.ChannelClass ||
		params.Buffer == nil || !params.Buffer.Contiguous ||
		params.GPFIFOEntries < 2 {
		return 0, fmt.Errorf("%s: bad channel parameters: %w",
			d.name, status.ErrInvalidArgument)
	}

	if params.Secure && d.secret == nil {
		return 0, fmt.Errorf("%s: not in confidential computing mode: %w",
			d.name, status.ErrNotSupported)
	}

	e, err := d.findEngine(params)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", d.name, err)
	}

	d.stateLock.Lock()
	defer d.stateLock.Unlock()

	ch := &channelState{
		handle:  d.allocHandle(),
		params:  params,
		storage: d.Storage(params.Buffer.Aperture),
		engine:  e,
	}

	if params.Secure {
		ch.session, err = ccsl.NewSession(d.secret, uint32(ch.handle))
		if err != nil {
			return 0, err
		}
	}

	d.channels[ch.handle] = ch

	d.log.WithFields(logrus.Fields{
		"channel": ch.handle,
		"engine":  e.Name(),
	}).Debug("channel allocated")

	return ch.handle, nil
}

func (d *Device) channel(h rm.Handle) (*channelState, error) {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()

	ch, ok := d.channels[h]
	if !ok {
		return nil, fmt.Errorf("%s: unknown channel %d: %w",
			d.name, h, status.ErrInvalidArgument)
	}

	return ch, nil
}

// FreeChannel destroys a channel. Work of the channel that the front-end has
// already fetched is dropped.
func (d *Device) FreeChannel(h rm.Handle) error {
	ch, err := d.channel(h)
	if err != nil {
		return err
	}

	ch.freed.Store(true)

	d.stateLock.Lock()
	delete(d.channels, h)
	d.stateLock.Unlock()

	return nil
}

// RingDoorbell tells the front-end that a channel has new GPFIFO entries.
func (d *Device) RingDoorbell(h rm.Handle) error {
	if _, err := d.channel(h); err != nil {
		return err
	}

	d.frontEnd.TickLater()
	d.kick()

	return nil
}

// KickChannel rings the doorbell of a channel on the driver's behalf.
func (d *Device) KickChannel(h rm.Handle) error {
	return d.RingDoorbell(h)
}

// OpenSecureSession returns the driver end of the secure session of a
// channel. It must be opened once per channel.
func (d *Device) OpenSecureSession(h rm.Handle) (*ccsl.Session, error) {
	ch, err := d.channel(h)
	if err != nil {
		return nil, err
	}

	if ch.session == nil {
		return nil, fmt.Errorf("%s: channel %d is not secure: %w",
			d.name, h, status.ErrNotSupported)
	}

	return ccsl.NewSession(d.secret, uint32(h))
}

// activeChannels returns the channels in handle order.
func (d *Device) activeChannels() []*channelState {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()

	out := make([]*channelState, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, ch)
	}

	slices.SortFunc(out, func(a, b *channelState) int {
		return int(a.handle) - int(b.handle)
	})

	return out
}

// fault puts a channel into the error state. The front-end stops fetching
// from it and the driver sees the error in USERD.
func (d *Device) fault(ch *channelState, err error) {
	if ch.faulted {
		return
	}

	ch.faulted = true

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], 1)
	_ = ch.storage.Write(ch.bufferAddr(ch.params.USERDOffset+channel.USERDError),
		buf[:])

	d.log.WithFields(logrus.Fields{
		"channel": ch.handle,
		"engine":  ch.engine.Name(),
	}).WithError(err).Warn("channel faulted")
}

// virtual resolves an address of the identity mapped virtual address space.
func (d *Device) virtual(va uint64) location {
	a, pa := rm.IdentityPA(va)
	return location{storage: d.Storage(a), addr: pa}
}

// physical resolves a physical address of a copy engine target.
func (d *Device) physical(t methods.Target, pa uint64) location {
	if t == methods.TargetLocalFB {
		return location{storage: d.fb, addr: pa}
	}

	return location{storage: d.sysmem, addr: pa}
}

func (d *Device) kick() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run processes the events scheduled so far.
func (d *Device) run() {
	if err := d.engine.Run(); err != nil {
		d.log.WithError(err).Error("device simulation failed")
	}
}

// ServiceInterrupts lets the device make progress and acknowledges the
// pending interrupts of units, or of every unit if none is given, until
// nothing is left to do. Callers that hold the device lock use it instead of
// waiting for the interrupt handler.
func (d *Device) ServiceInterrupts(units ...channel.Unit) {
	for {
		d.run()

		acked := d.intr.ack(units...)
		if len(acked) == 0 {
			return
		}

		d.resume(acked)
	}
}

// resume wakes up the engines whose interrupts were acknowledged.
func (d *Device) resume(units []channel.Unit) {
	for _, u := range units {
		switch u.Kind {
		case channel.UnitCE:
			if int(u.Instance) < len(d.ces) {
				d.ces[u.Instance].TickLater()
			}
		case channel.UnitSec2:
			if d.sec2 != nil {
				d.sec2.TickLater()
			}
		case channel.UnitHost:
			d.frontEnd.TickLater()
		}
	}

	d.kick()
}

// Start runs the device clock and the interrupt handler until ctx is done.
func (d *Device) Start(ctx context.Context) {
	go d.runClock(ctx)
	go d.runISR(ctx)

	d.kick()
}

func (d *Device) runClock(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}

		d.run()
	}
}

func (d *Device) runISR(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.intr.signal:
		}

		d.lock.Lock()
		acked := d.intr.ack()
		d.lock.Unlock()

		d.resume(acked)
	}
}
