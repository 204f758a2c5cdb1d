// Package pushbuffer turns work descriptors into method streams for copy
// engine and SEC2 channels.
package pushbuffer

import (
	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/rm"
)

// Addr is an address as seen by an engine.
type Addr struct {
	Addr     uint64
	Aperture rm.Aperture

	// Physical addresses select their memory through Aperture. Virtual
	// addresses go through the identity mapping.
	Physical bool
}

// Sub holds what every sub-operation carries regardless of its kind.
type Sub struct {
	// Payload is the number of the logical request the sub-operation
	// belongs to.
	Payload uint64

	// Final marks the last sub-operation of a logical request. Only final
	// sub-operations release the completion semaphore.
	Final bool

	// Pipelined lets the sub-operation overlap with the previous one.
	Pipelined bool

	// Slot is the pushbuffer slot the stream is written to.
	Slot uint32
}

// A WorkDescriptor describes one hardware operation. It is one of Memset,
// Copy and SecureCopy.
type WorkDescriptor interface {
	Common() Sub
	Bytes() uint64

	isWorkDescriptor()
}

// Memset fills Length bytes at Dst with Pattern. With ByteFill, only the low
// byte of Pattern is stored. Otherwise Dst and Length must be word aligned.
// All the sub-operations of one request agree on ByteFill.
type Memset struct {
	Sub

	Dst      Addr
	Length   uint64
	Pattern  uint32
	ByteFill bool
}

// Copy moves Length bytes from Src to Dst.
type Copy struct {
	Sub

	Src    Addr
	Dst    Addr
	Length uint64
}

// SecureCopy moves Length bytes from Src to Dst, encrypting or decrypting on
// the way. The authentication tag is written to, or compared against, the
// 16 bytes at AuthTagAddr.
type SecureCopy struct {
	Sub

	Src         Addr
	Dst         Addr
	Length      uint64
	Decrypt     bool
	IV          ccsl.IV
	AuthTagAddr uint64
}

// Common returns the shared part.
func (d Memset) Common() Sub { return d.Sub }

// Bytes returns the number of bytes written.
func (d Memset) Bytes() uint64 { return d.Length }

func (Memset) isWorkDescriptor() {}

// Common returns the shared part.
func (d Copy) Common() Sub { return d.Sub }

// Bytes returns the number of bytes copied.
func (d Copy) Bytes() uint64 { return d.Length }

func (Copy) isWorkDescriptor() {}

// Common returns the shared part.
func (d SecureCopy) Common() Sub { return d.Sub }

// Bytes returns the number of bytes copied.
func (d SecureCopy) Bytes() uint64 { return d.Length }

func (SecureCopy) isWorkDescriptor() {}

// Target describes the channel an encoder writes for.
type Target struct {
	Subch       uint32
	EngineClass uint32
	FastScrub   bool

	// HostSemaAddr is where the consumed slot index is released.
	HostSemaAddr uint64

	// WorkSemaAddr is where completed payloads are released.
	WorkSemaAddr uint64

	// TagGetSemaAddr is where the consumed tag slots are released, the
	// authentication tag ring in the low word and the digest ring in the
	// high word. Secure channels only.
	TagGetSemaAddr uint64
}

// UseFastScrub tells if a descriptor can take the memory scrub path.
func UseFastScrub(desc WorkDescriptor, t Target) bool {
	m, ok := desc.(Memset)
	if !ok || !t.FastScrub {
		return false
	}

	const align = 4096

	return m.Pattern == 0 &&
		m.Dst.Aperture == rm.ApertureVidmem &&
		m.Dst.Physical &&
		m.Dst.Addr%align == 0 &&
		m.Length%align == 0
}
