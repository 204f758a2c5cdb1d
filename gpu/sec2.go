package gpu

import (
	"fmt"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/methods"
)

// sec2State is the method state SEC2 keeps per channel. The methods received
// since the last EXECUTE are kept in order, as they are what was signed.
type sec2State struct {
	signed []methods.Method
	regs   map[uint32]uint32
}

func (s *sec2State) set(m methods.Method) {
	if s.regs == nil {
		s.regs = make(map[uint32]uint32)
	}

	s.signed = append(s.signed, m)
	s.regs[m.Addr] = m.Data
}

func (s *sec2State) addr(hi, lo uint32) uint64 {
	return methods.Join(s.regs[hi], s.regs[lo])
}

func (s *sec2State) reset() {
	s.signed = nil
	s.regs = nil
}

// Sec2 runs signed memsets and copies. It only executes a method stream
// whose signature matches the tag the driver placed in the authentication
// tag ring, and leaves an execution digest in the digest ring.
type Sec2 struct {
	*engineBase
}

func (e *Sec2) sec2Method(ch *channelState, m methods.Method) error {
	switch {
	case m.Addr == methods.Sec2Execute:
		defer ch.sec2.reset()
		return e.execute(ch, methods.DecodeSec2Execute(m.Data))
	case m.Addr >= methods.Sec2SrcAddrHi &&
		m.Addr <= methods.Sec2SetSemaphorePayload:
		ch.sec2.set(m)
		return nil
	default:
		return fmt.Errorf("unknown method 0x%x", m.Addr)
	}
}

func (e *Sec2) execute(ch *channelState, f methods.Sec2ExecuteFields) error {
	s := &ch.sec2
	buf := methods.SignedBytes(s.signed)

	tag, err := e.dev.virtual(
		s.addr(methods.Sec2AuthTagAddrHi, methods.Sec2AuthTagAddrLo),
	).read(ccsl.TagSize)
	if err != nil {
		return err
	}

	if err := ch.session.Verify(buf, tag); err != nil {
		return fmt.Errorf("method stream signature: %w", err)
	}

	size := uint64(s.regs[methods.Sec2Size])
	dst := e.dev.virtual(s.addr(methods.Sec2DstAddrHi, methods.Sec2DstAddrLo))

	switch f.Op {
	case methods.Sec2OpMemset:
		err = dst.storage.Fill(dst.addr, size, s.regs[methods.Sec2Pattern])
		e.launched(ch, "memset", size)
	case methods.Sec2OpCopy:
		var data []byte

		data, err = e.dev.virtual(
			s.addr(methods.Sec2SrcAddrHi, methods.Sec2SrcAddrLo),
		).read(size)
		if err == nil {
			err = dst.write(data)
		}

		e.launched(ch, "copy", size)
	default:
		err = fmt.Errorf("unknown operation %d", f.Op)
	}

	if err != nil {
		return err
	}

	digest := e.dev.virtual(
		s.addr(methods.Sec2DigestAddrHi, methods.Sec2DigestAddrLo))
	if err := digest.write(ch.session.Digest(buf)); err != nil {
		return err
	}

	if f.Notify {
		sem := e.dev.virtual(
			s.addr(methods.Sec2SetSemaphoreA, methods.Sec2SetSemaphoreB))
		if err := sem.writeUint32(s.regs[methods.Sec2SetSemaphorePayload]); err != nil {
			return err
		}
	}

	if f.Interrupt {
		e.dev.intr.raise(e.unit)
	}

	return nil
}
