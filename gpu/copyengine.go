package gpu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/pushbuffer"
)

// ceState is the method state a copy engine keeps per channel.
type ceState struct {
	semA, semB, semPayload uint32
	srcPhys, dstPhys       methods.PhysMode

	offsetInUpper, offsetInLower   uint32
	offsetOutUpper, offsetOutLower uint32
	lineLength                     uint32

	secureMode           methods.SecureCopyMode
	iv                   [3]uint32
	authUpper, authLower uint32

	remapA, remapB uint32
	remap          methods.RemapComponents
}

// A CopyEngine executes LAUNCH_DMA: copies, constant fills, memory scrubs and
// encrypted copies.
type CopyEngine struct {
	*engineBase
}

func (ce *CopyEngine) ceMethod(ch *channelState, m methods.Method) error {
	s := &ch.ce

	switch m.Addr {
	case methods.CESetSemaphoreA:
		s.semA = m.Data
	case methods.CESetSemaphoreB:
		s.semB = m.Data
	case methods.CESetSemaphorePayload:
		s.semPayload = m.Data
	case methods.CESetSrcPhysMode:
		s.srcPhys = methods.DecodePhysMode(m.Data)
	case methods.CESetDstPhysMode:
		s.dstPhys = methods.DecodePhysMode(m.Data)
	case methods.CEOffsetInUpper:
		s.offsetInUpper = m.Data
	case methods.CEOffsetInLower:
		s.offsetInLower = m.Data
	case methods.CEOffsetOutUpper:
		s.offsetOutUpper = m.Data
	case methods.CEOffsetOutLower:
		s.offsetOutLower = m.Data
	case methods.CEPitchIn, methods.CEPitchOut, methods.CELineCount:
	case methods.CELineLengthIn:
		s.lineLength = m.Data
	case methods.CESetSecureCopyMode:
		s.secureMode = methods.DecodeSecureCopyMode(m.Data)
	case methods.CESetIV0, methods.CESetIV1, methods.CESetIV2:
		s.iv[(m.Addr-methods.CESetIV0)/4] = m.Data
	case methods.CESetAuthTagAddrUpper:
		s.authUpper = m.Data
	case methods.CESetAuthTagAddrLower:
		s.authLower = m.Data
	case methods.CESetMemoryScrubParams:
	case methods.CESetRemapConstA:
		s.remapA = m.Data
	case methods.CESetRemapConstB:
		s.remapB = m.Data
	case methods.CESetRemapComponents:
		s.remap = methods.DecodeRemapComponents(m.Data)
	case methods.CELaunchDMA:
		return ce.launch(ch, methods.DecodeLaunchDMA(m.Data))
	default:
		return fmt.Errorf("unknown method 0x%x", m.Addr)
	}

	return nil
}

func (ce *CopyEngine) src(s *ceState, l methods.LaunchDMA) location {
	addr := methods.Join(s.offsetInUpper, s.offsetInLower)
	if l.SrcPhysical {
		return ce.dev.physical(s.srcPhys.Target, addr)
	}

	return ce.dev.virtual(addr)
}

func (ce *CopyEngine) dst(s *ceState, l methods.LaunchDMA) location {
	addr := methods.Join(s.offsetOutUpper, s.offsetOutLower)
	if l.DstPhysical {
		return ce.dev.physical(s.dstPhys.Target, addr)
	}

	return ce.dev.virtual(addr)
}

func (ce *CopyEngine) launch(ch *channelState, l methods.LaunchDMA) error {
	s := &ch.ce

	var (
		kind  string
		bytes uint64
		err   error
	)

	switch {
	case l.MemoryScrub:
		if !methods.SupportsFastScrub(ce.class) {
			return errors.New("memory scrub is not supported")
		}

		kind, bytes = "scrub", uint64(s.lineLength)
		dst := ce.dst(s, l)
		err = dst.storage.Zero(dst.addr, bytes)
	case l.Remap:
		kind = "memset"
		bytes, err = ce.fill(s, l)
	case l.Copy == methods.CopySecure:
		kind, bytes = "secure-copy", uint64(s.lineLength)
		err = ce.secureCopy(ch, l)
	default:
		kind, bytes = "copy", uint64(s.lineLength)
		err = ce.copy(s, l)
	}

	if err != nil {
		return err
	}

	ce.launched(ch, kind, bytes)

	if l.Semaphore == methods.SemaphoreReleaseOneWord {
		sem := ce.dev.virtual(methods.Join(s.semA, s.semB))
		if err := sem.writeUint32(s.semPayload); err != nil {
			return err
		}
	}

	if l.Interrupt == methods.InterruptNonBlocking {
		ce.dev.intr.raise(ce.unit)
	}

	return nil
}

func (ce *CopyEngine) fill(s *ceState, l methods.LaunchDMA) (uint64, error) {
	if s.remap.DstX != methods.RemapConstA &&
		s.remap.DstX != methods.RemapConstB {
		return 0, fmt.Errorf("unsupported remap source %d", s.remap.DstX)
	}

	pattern := s.remapA
	if s.remap.DstX == methods.RemapConstB {
		pattern = s.remapB
	}

	if s.remap.ComponentSize == methods.ComponentSizeOne {
		pattern = (pattern & 0xFF) * 0x01010101
	}

	bytes := uint64(s.lineLength) * s.remap.ComponentSize.Bytes() *
		uint64(s.remap.NumDstComponents)
	dst := ce.dst(s, l)

	return bytes, dst.storage.Fill(dst.addr, bytes, pattern)
}

func (ce *CopyEngine) copy(s *ceState, l methods.LaunchDMA) error {
	data, err := ce.src(s, l).read(uint64(s.lineLength))
	if err != nil {
		return err
	}

	return ce.dst(s, l).write(data)
}

func (ce *CopyEngine) secureCopy(ch *channelState, l methods.LaunchDMA) error {
	s := &ch.ce

	if !methods.SupportsSecureCopy(ce.class) {
		return errors.New("secure copy is not supported")
	}

	if ch.session == nil {
		return errors.New("secure copy on a channel without a session")
	}

	iv := pushbuffer.IVFromWords(s.iv[0], s.iv[1], s.iv[2])
	tagLoc := ce.dev.virtual(methods.Join(s.authUpper, s.authLower))

	in, err := ce.src(s, l).read(uint64(s.lineLength))
	if err != nil {
		return err
	}

	if !s.secureMode.Decrypt {
		ct, tag := ch.session.Seal(iv, in)
		if err := ce.dst(s, l).write(ct); err != nil {
			return err
		}

		return tagLoc.write(tag)
	}

	tag, err := tagLoc.read(ccsl.TagSize)
	if err != nil {
		return err
	}

	pt, err := ch.session.Open(iv, in, tag)
	if err != nil {
		return err
	}

	return ce.dst(s, l).write(pt)
}
