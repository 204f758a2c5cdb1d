package pushbuffer

import (
	"context"
	"log"

	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/status"
)

// Bytes of pushbuffer reserved per slot.
const (
	CEMethodSizePerBlock           = 0x80
	FastScrubberMethodSizePerBlock = 0x78
	Sec2MethodSizePerBlock         = 0x90
)

// An Encoder serializes a work descriptor into a method stream.
type Encoder interface {
	Encode(ctx context.Context, desc WorkDescriptor, t Target) ([]uint32, error)
}

// CEEncoder encodes for copy engine channels.
type CEEncoder struct{}

// Encode returns the stream of one sub-operation.
func (CEEncoder) Encode(
	_ context.Context,
	desc WorkDescriptor,
	t Target,
) ([]uint32, error) {
	if UseFastScrub(desc, t) {
		return encodeFastScrub(desc.(Memset), t), nil
	}

	var s methods.Stream

	s.Inc(t.Subch, methods.SetObject, t.EngineClass)

	launch := methods.LaunchDMA{
		SrcPitch: true,
		DstPitch: true,
	}

	switch d := desc.(type) {
	case Memset:
		encodeMemset(&s, d, t, &launch)
	case Copy:
		encodeCopy(&s, d.Src, d.Dst, d.Length, t, &launch)
	case SecureCopy:
		if !methods.SupportsSecureCopy(t.EngineClass) {
			return nil, status.ErrNotSupported
		}

		encodeSecureCopy(&s, d, t, &launch)
	default:
		log.Panicf("unknown work descriptor %T", desc)
	}

	encodeTail(&s, desc.Common(), t, &launch)
	mustFit(s, CEMethodSizePerBlock)

	return s.Words(), nil
}

func physMode(a rm.Aperture) uint32 {
	target := methods.TargetLocalFB
	if a == rm.ApertureSysmem {
		target = methods.TargetCoherentSysmem
	}

	return methods.PhysMode{Target: target}.Encode()
}

// MemsetByteFill tells if a memset of length bytes at offset has to store
// its pattern byte by byte.
func MemsetByteFill(offset, length uint64) bool {
	return offset%4 != 0 || length%4 != 0
}

func memsetComponentSize(d Memset) methods.ComponentSize {
	if d.ByteFill {
		return methods.ComponentSizeOne
	}

	if MemsetByteFill(d.Dst.Addr, d.Length) {
		log.Panicf("word memset of 0x%x bytes at 0x%x is not word aligned",
			d.Length, d.Dst.Addr)
	}

	return methods.ComponentSizeFour
}

func encodeMemset(
	s *methods.Stream,
	d Memset,
	t Target,
	launch *methods.LaunchDMA,
) {
	if d.Dst.Physical {
		s.Inc(t.Subch, methods.CESetDstPhysMode, physMode(d.Dst.Aperture))
	}

	size := memsetComponentSize(d)
	s.Inc(t.Subch, methods.CESetRemapConstA,
		d.Pattern,
		d.Pattern,
		methods.RemapComponents{
			DstX:             methods.RemapConstA,
			ComponentSize:    size,
			NumDstComponents: 1,
		}.Encode(),
	)

	s.Inc(t.Subch, methods.CEOffsetOutUpper,
		methods.Upper(d.Dst.Addr), methods.Lower(d.Dst.Addr))
	s.Inc(t.Subch, methods.CELineLengthIn, uint32(d.Length/size.Bytes()))

	launch.Remap = true
	launch.DstPhysical = d.Dst.Physical
}

func encodeCopy(
	s *methods.Stream,
	src, dst Addr,
	length uint64,
	t Target,
	launch *methods.LaunchDMA,
) {
	if src.Physical || dst.Physical {
		s.Inc(t.Subch, methods.CESetSrcPhysMode,
			physMode(src.Aperture), physMode(dst.Aperture))
	}

	s.Inc(t.Subch, methods.CEOffsetInUpper,
		methods.Upper(src.Addr), methods.Lower(src.Addr),
		methods.Upper(dst.Addr), methods.Lower(dst.Addr))
	s.Inc(t.Subch, methods.CELineLengthIn, uint32(length))

	launch.SrcPhysical = src.Physical
	launch.DstPhysical = dst.Physical
}

func encodeSecureCopy(
	s *methods.Stream,
	d SecureCopy,
	t Target,
	launch *methods.LaunchDMA,
) {
	iv := ivWords(d.IV)
	s.Inc(t.Subch, methods.CESetSecureCopyMode,
		methods.SecureCopyMode{Decrypt: d.Decrypt}.Encode(),
		iv[0], iv[1], iv[2],
		methods.Upper(d.AuthTagAddr), methods.Lower(d.AuthTagAddr))

	encodeCopy(s, d.Src, d.Dst, d.Length, t, launch)

	launch.Copy = methods.CopySecure
}

func encodeFastScrub(d Memset, t Target) []uint32 {
	var s methods.Stream

	s.Inc(t.Subch, methods.SetObject, t.EngineClass)
	s.Inc(t.Subch, methods.CESetDstPhysMode, physMode(d.Dst.Aperture))
	s.Inc(t.Subch, methods.CEOffsetOutUpper,
		methods.Upper(d.Dst.Addr), methods.Lower(d.Dst.Addr))
	s.Inc(t.Subch, methods.CELineLengthIn, uint32(d.Length))
	s.Inc(t.Subch, methods.CESetMemoryScrubParams,
		methods.MemoryScrubParams{}.Encode())

	launch := methods.LaunchDMA{
		DstPitch:    true,
		DstPhysical: true,
		MemoryScrub: true,
	}

	encodeTail(&s, d.Sub, t, &launch)
	mustFit(s, FastScrubberMethodSizePerBlock)

	return s.Words()
}

// encodeTail emits the completion semaphore of final sub-operations, the
// launch and the slot release.
func encodeTail(
	s *methods.Stream,
	sub Sub,
	t Target,
	launch *methods.LaunchDMA,
) {
	launch.Transfer = methods.TransferNonPipelined
	if sub.Pipelined {
		launch.Transfer = methods.TransferPipelined
	}

	if sub.Final {
		s.Inc(t.Subch, methods.CESetSemaphoreA,
			methods.Upper(t.WorkSemaAddr),
			methods.Lower(t.WorkSemaAddr),
			uint32(sub.Payload))

		launch.Flush = true
		launch.Semaphore = methods.SemaphoreReleaseOneWord
		launch.Interrupt = methods.InterruptNonBlocking
	}

	s.Inc(t.Subch, methods.CELaunchDMA, launch.Encode())

	methods.HostSemaphoreRelease{
		Addr:    t.HostSemaAddr,
		Payload: uint64(sub.Slot),
	}.Emit(s, t.Subch)
}

func mustFit(s methods.Stream, limit int) {
	if s.Len()*4 > limit {
		log.Panicf("method stream of %d bytes overruns the %d byte block",
			s.Len()*4, limit)
	}
}
