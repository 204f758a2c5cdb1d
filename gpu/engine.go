package gpu

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/ring"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/sim"
)

// engine is what the front-end sees of the engine a channel is bound to.
type engine interface {
	sim.Component

	Class() uint32
	Unit() channel.Unit
	TickLater()

	canAccept() bool
	accept(seg segment)
}

// engineBase holds what copy engines and SEC2 have in common: the queue of
// fetched segments, interrupt stalls and the host methods.
type engineBase struct {
	*sim.TickingComponent

	dev      *Device
	class    uint32
	instance rm.EngineInstance
	unit     channel.Unit
	queue    *ring.Ring[segment]

	// method executes an engine method.
	method func(ch *channelState, m methods.Method) error
}

// Class returns the class of the engine object.
func (e *engineBase) Class() uint32 {
	return e.class
}

// Unit returns the interrupt unit of the engine.
func (e *engineBase) Unit() channel.Unit {
	return e.unit
}

// Instance returns the engine instance as enumerated by the resource
// manager.
func (e *engineBase) Instance() rm.EngineInstance {
	return e.instance
}

// Stalled tells if the engine waits for its interrupt to be serviced.
func (e *engineBase) Stalled() bool {
	return e.dev.intr.isPending(e.unit)
}

// QueueSize returns the number of fetched segments waiting for the engine.
func (e *engineBase) QueueSize() int {
	return e.queue.Size()
}

func (e *engineBase) canAccept() bool {
	return !e.queue.IsFull()
}

func (e *engineBase) accept(seg segment) {
	e.queue.Push(seg)
	e.TickLater()
}

// Tick runs the next segment. An engine with a pending nonstall interrupt
// does not start new work.
func (e *engineBase) Tick() bool {
	if e.Stalled() {
		return false
	}

	seg, ok := e.queue.TryPop()
	if !ok {
		return false
	}

	e.dev.frontEnd.TickLater()

	if seg.ch.freed.Load() || seg.ch.faulted {
		return true
	}

	for _, m := range seg.methods {
		var err error
		if m.Addr < methods.HostMethodLimit {
			err = e.hostMethod(seg.ch, m)
		} else {
			err = e.method(seg.ch, m)
		}

		if err != nil {
			e.dev.fault(seg.ch, fmt.Errorf("%s: %w", e.Name(), err))
			break
		}
	}

	return true
}

func (e *engineBase) hostMethod(ch *channelState, m methods.Method) error {
	s := &ch.sem

	switch m.Addr {
	case methods.SetObject:
		if m.Data != e.class {
			return fmt.Errorf("object class 0x%x on a 0x%x engine",
				m.Data, e.class)
		}
	case methods.SemAddrLo:
		s.addrLo = m.Data
	case methods.SemAddrHi:
		s.addrHi = m.Data
	case methods.SemPayloadLo:
		s.payloadLo = m.Data
	case methods.SemPayloadHi:
		s.payloadHi = m.Data
	case methods.SemExecute:
		return e.semExecute(ch, methods.DecodeSemExecute(m.Data))
	case methods.NonStallInterrupt:
		e.dev.intr.raise(channel.Unit{Kind: channel.UnitHost})
	}

	return nil
}

func (e *engineBase) semExecute(
	ch *channelState,
	f methods.SemExecuteFields,
) error {
	s := &ch.sem

	if f.Operation != methods.SemOperationRelease {
		return fmt.Errorf("unsupported semaphore operation %d", f.Operation)
	}

	dst := e.dev.virtual(methods.Join(s.addrHi, s.addrLo))

	if f.Payload64 {
		var buf [8]byte
		binary.LittleEndian.PutUint32(buf[0:], s.payloadLo)
		binary.LittleEndian.PutUint32(buf[4:], s.payloadHi)

		return dst.write(buf[:])
	}

	return dst.writeUint32(s.payloadLo)
}

func (e *engineBase) launched(ch *channelState, kind string, bytes uint64) {
	e.InvokeHook(sim.HookCtx{
		Domain: e,
		Pos:    HookPosLaunch,
		Item: LaunchInfo{
			Channel: ch.handle,
			Kind:    kind,
			Bytes:   bytes,
		},
	})
}
