package pushbuffer

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/status"
)

// Sec2MaxSignedMethods is the capacity of the signed method array.
const Sec2MaxSignedMethods = 16

// TagRing selects one of the two tag rings of a secure channel.
type TagRing int

// Tag rings.
const (
	// TagRingAuth holds the authentication tags of method streams.
	TagRingAuth TagRing = iota

	// TagRingDigest holds the execution digests written by the engine.
	TagRingDigest
)

// A TagReserver hands out tag slots of a secure channel.
type TagReserver interface {
	// ReserveTag waits until the next slot of the ring is free and returns
	// its index and address.
	ReserveTag(ctx context.Context, ring TagRing) (slot uint32, addr uint64, err error)

	// WriteTag stores a tag at addr.
	WriteTag(addr uint64, tag []byte) error
}

// A Signer signs method streams.
type Signer interface {
	Sign(buf []byte) []byte
}

// Sec2Encoder encodes for SEC2 channels. The engine only runs method streams
// whose signature is found in the authentication tag ring.
type Sec2Encoder struct {
	Tags   TagReserver
	Signer Signer
}

type signedArray struct {
	methods []methods.Method
}

func (a *signedArray) add(method, data uint32) {
	if len(a.methods) == Sec2MaxSignedMethods {
		log.Panicf("signed method array overflow")
	}

	a.methods = append(a.methods, methods.Method{Addr: method, Data: data})
}

func (a *signedArray) addAddr(hi, lo uint32, addr uint64) {
	a.add(hi, methods.Upper(addr))
	a.add(lo, methods.Lower(addr))
}

// Encode returns the stream of one sub-operation. It blocks while the tag
// rings have no free slot. Once the stream is signed, a failure wraps
// status.ErrChannelError: the engine will reject every later stream of the
// session, and the channel has to be rebuilt.
func (e Sec2Encoder) Encode(
	ctx context.Context,
	desc WorkDescriptor,
	t Target,
) ([]uint32, error) {
	arr := signedArray{
		methods: make([]methods.Method, 0, Sec2MaxSignedMethods),
	}

	var op methods.Sec2Op

	switch d := desc.(type) {
	case Memset:
		op = methods.Sec2OpMemset
		arr.addAddr(methods.Sec2DstAddrHi, methods.Sec2DstAddrLo, d.Dst.Addr)
		arr.add(methods.Sec2Size, uint32(d.Length))
		arr.add(methods.Sec2Pattern, d.Pattern)
	case Copy:
		op = methods.Sec2OpCopy
		arr.addAddr(methods.Sec2SrcAddrHi, methods.Sec2SrcAddrLo, d.Src.Addr)
		arr.addAddr(methods.Sec2DstAddrHi, methods.Sec2DstAddrLo, d.Dst.Addr)
		arr.add(methods.Sec2Size, uint32(d.Length))
	default:
		return nil, fmt.Errorf("sec2 %T: %w", desc, status.ErrNotSupported)
	}

	tagSlot, tagAddr, err := e.Tags.ReserveTag(ctx, TagRingAuth)
	if err != nil {
		return nil, err
	}

	digestSlot, digestAddr, err := e.Tags.ReserveTag(ctx, TagRingDigest)
	if err != nil {
		return nil, err
	}

	arr.addAddr(methods.Sec2AuthTagAddrHi, methods.Sec2AuthTagAddrLo, tagAddr)
	arr.addAddr(methods.Sec2DigestAddrHi, methods.Sec2DigestAddrLo, digestAddr)

	sub := desc.Common()
	if sub.Final {
		arr.addAddr(methods.Sec2SetSemaphoreA, methods.Sec2SetSemaphoreB,
			t.WorkSemaAddr)
		arr.add(methods.Sec2SetSemaphorePayload, uint32(sub.Payload))
	}

	var s methods.Stream

	s.Inc(t.Subch, methods.SetObject, t.EngineClass)
	s.Methods(t.Subch, arr.methods)
	s.Inc(t.Subch, methods.Sec2Execute, methods.Sec2ExecuteFields{
		Op:          op,
		Notify:      sub.Final,
		NotifyOnEnd: sub.Final,
		Interrupt:   sub.Final,
	}.Encode())

	methods.HostSemaphoreRelease{
		Addr:      t.TagGetSemaAddr,
		Payload:   uint64(digestSlot)<<32 | uint64(tagSlot),
		Payload64: true,
	}.Emit(&s, t.Subch)

	methods.HostSemaphoreRelease{
		Addr:    t.HostSemaAddr,
		Payload: uint64(sub.Slot),
	}.Emit(&s, t.Subch)

	mustFit(s, Sec2MethodSizePerBlock)

	// Signing advances the session, so nothing may fail before the tag is
	// stored except storing it.
	tag := e.Signer.Sign(methods.SignedBytes(arr.methods))
	if err := e.Tags.WriteTag(tagAddr, tag); err != nil {
		return nil, fmt.Errorf("sec2 tag at 0x%x: %w: %w",
			tagAddr, status.ErrChannelError, err)
	}

	return s.Words(), nil
}

func ivWords(iv ccsl.IV) [3]uint32 {
	return [3]uint32{
		binary.LittleEndian.Uint32(iv[0:]),
		binary.LittleEndian.Uint32(iv[4:]),
		binary.LittleEndian.Uint32(iv[8:]),
	}
}

// IVFromWords reassembles an IV written with SET_IV0..2.
func IVFromWords(w0, w1, w2 uint32) ccsl.IV {
	var iv ccsl.IV
	binary.LittleEndian.PutUint32(iv[0:], w0)
	binary.LittleEndian.PutUint32(iv[4:], w1)
	binary.LittleEndian.PutUint32(iv[8:], w2)

	return iv
}
