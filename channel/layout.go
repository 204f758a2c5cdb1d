package channel

import (
	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/methods"
)

// USERD field offsets.
const (
	USERDGPGet = 0x88
	USERDGPPut = 0x8c

	// USERDError is set by the front-end when the channel has faulted.
	USERDError = 0x90

	USERDSize = 0x200
)

const (
	semaphoreAlign = 16
	layoutAlign    = 4096
)

// Layout gives the offsets of every structure in the channel buffer.
//
//	pushbuffer | host sema | work sema | tag get semas | auth tags | digests |
//	GPFIFO | USERD
type Layout struct {
	BlockSize uint64
	Slots     uint32
	Secure    bool
	TagSlots  uint32

	PushbufferOffset uint64
	HostSemaOffset   uint64
	WorkSemaOffset   uint64
	TagGetSemaOffset uint64
	AuthTagOffset    uint64
	DigestOffset     uint64
	GPFIFOOffset     uint64
	USERDOffset      uint64
	Size             uint64
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

// NewLayout computes the layout of a channel with slots pushbuffer blocks of
// blockSize bytes. Secure channels also get two rings of tagSlots tag slots.
func NewLayout(blockSize uint64, slots uint32, secure bool, tagSlots uint32) Layout {
	l := Layout{
		BlockSize: blockSize,
		Slots:     slots,
		Secure:    secure,
	}

	off := uint64(slots) * blockSize

	off = alignUp(off, semaphoreAlign)
	l.HostSemaOffset = off
	off += semaphoreAlign

	l.WorkSemaOffset = off
	off += semaphoreAlign

	if secure {
		l.TagSlots = tagSlots

		l.TagGetSemaOffset = off
		off += semaphoreAlign

		l.AuthTagOffset = off
		off += uint64(tagSlots) * ccsl.TagSize

		off = alignUp(off, semaphoreAlign)
		l.DigestOffset = off
		off += uint64(tagSlots) * ccsl.DigestSize
	}

	off = alignUp(off, methods.GPEntrySize)
	l.GPFIFOOffset = off
	off += uint64(slots) * methods.GPEntrySize

	off = alignUp(off, USERDSize)
	l.USERDOffset = off
	off += USERDSize

	l.Size = alignUp(off, layoutAlign)

	return l
}

// SlotOffset returns the offset of a pushbuffer block.
func (l Layout) SlotOffset(slot uint32) uint64 {
	return l.PushbufferOffset + uint64(slot)*l.BlockSize
}

// GPEntryOffset returns the offset of a GPFIFO entry.
func (l Layout) GPEntryOffset(entry uint32) uint64 {
	return l.GPFIFOOffset + uint64(entry)*methods.GPEntrySize
}

// TagOffset returns the offset of a tag slot.
func (l Layout) TagOffset(ring TagRing, slot uint32) uint64 {
	if ring == TagRingDigest {
		return l.DigestOffset + uint64(slot)*ccsl.DigestSize
	}

	return l.AuthTagOffset + uint64(slot)*ccsl.TagSize
}

// TagGetSemaOffsetOf returns the offset of the get semaphore of a tag ring.
func (l Layout) TagGetSemaOffsetOf(ring TagRing) uint64 {
	return l.TagGetSemaOffset + 4*uint64(ring)
}
