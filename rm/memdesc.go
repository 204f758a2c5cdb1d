// Package rm defines what channel submission needs from the resource manager:
// memory descriptors and CPU mappings, channel and engine objects, engine
// instance enumeration and doorbells.
package rm

import (
	"encoding/binary"
	"fmt"
	"log"
)

// PageSize is the granularity of non-contiguous allocations.
const PageSize uint64 = 4096

// Aperture names the memory a descriptor lives in.
type Aperture int

// Known apertures.
const (
	ApertureVidmem Aperture = iota
	ApertureSysmem
)

func (a Aperture) String() string {
	switch a {
	case ApertureVidmem:
		return "vidmem"
	case ApertureSysmem:
		return "sysmem"
	default:
		return fmt.Sprintf("aperture(%d)", int(a))
	}
}

// Handle identifies an object owned by the resource manager.
type Handle uint32

// MemDesc describes an allocation. A contiguous allocation starts at Base. A
// non-contiguous one is made of pages of PageSize bytes whose physical bases
// are listed in Pages.
type MemDesc struct {
	Handle     Handle
	Aperture   Aperture
	Size       uint64
	Contiguous bool
	Base       uint64
	Pages      []uint64
	PageSize   uint64
}

// NewContiguousMemDesc describes size bytes starting at base.
func NewContiguousMemDesc(
	aperture Aperture,
	base, size uint64,
) *MemDesc {
	return &MemDesc{
		Aperture:   aperture,
		Size:       size,
		Contiguous: true,
		Base:       base,
		PageSize:   PageSize,
	}
}

// NewPagedMemDesc describes an allocation made of the given pages.
func NewPagedMemDesc(
	aperture Aperture,
	pages []uint64,
	pageSize uint64,
) *MemDesc {
	return &MemDesc{
		Aperture: aperture,
		Size:     uint64(len(pages)) * pageSize,
		Pages:    pages,
		PageSize: pageSize,
	}
}

// PhysAddr returns the physical address of the byte at offset.
func (m *MemDesc) PhysAddr(offset uint64) uint64 {
	if offset >= m.Size {
		log.Panicf("offset 0x%x out of memdesc of size 0x%x", offset, m.Size)
	}

	if m.Contiguous {
		return m.Base + offset
	}

	return m.Pages[offset/m.PageSize] + offset%m.PageSize
}

// ContiguousRun returns the number of bytes starting at offset that are known
// to be physically contiguous. For non-contiguous allocations the run never
// crosses a page boundary, even if the next page happens to follow.
func (m *MemDesc) ContiguousRun(offset uint64) uint64 {
	if offset >= m.Size {
		return 0
	}

	if m.Contiguous {
		return m.Size - offset
	}

	addr := m.PhysAddr(offset)

	return min(m.PageSize-addr%m.PageSize, m.Size-offset)
}

// Mapping is a CPU view of an allocation.
type Mapping interface {
	// Read fills p with the bytes at offset.
	Read(offset uint64, p []byte) error

	// Write stores p at offset.
	Write(offset uint64, p []byte) error

	// FlushWriteCombine makes previous writes visible to the device.
	FlushWriteCombine()
}

// ReadUint32 reads a little endian word through a mapping.
func ReadUint32(m Mapping, offset uint64) (uint32, error) {
	var buf [4]byte
	if err := m.Read(offset, buf[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes a little endian word through a mapping.
func WriteUint32(m Mapping, offset uint64, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)

	return m.Write(offset, buf[:])
}

// WriteWords writes consecutive little endian words through a mapping.
func WriteWords(m Mapping, offset uint64, words []uint32) error {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}

	return m.Write(offset, buf)
}

// SysmemVABase is where system memory appears in the identity mapped virtual
// address space. Video memory is mapped at its physical address. The base
// keeps every address within the 40 bits a GPFIFO entry can hold.
const SysmemVABase uint64 = 1 << 39

// IdentityVA returns the virtual address of a physical address under the
// identity mapping.
func IdentityVA(aperture Aperture, pa uint64) uint64 {
	if aperture == ApertureSysmem {
		return SysmemVABase | pa
	}

	return pa
}

// IdentityPA reverses IdentityVA.
func IdentityPA(va uint64) (Aperture, uint64) {
	if va&SysmemVABase != 0 {
		return ApertureSysmem, va &^ SysmemVABase
	}

	return ApertureVidmem, va
}
