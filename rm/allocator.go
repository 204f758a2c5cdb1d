package rm

import (
	"gvisor.dev/gvisor/pkg/abi/nvgpu"

	"github.com/sarchlab/copyengine/ccsl"
)

// EngineInstance describes one engine the resource manager can bind a channel
// to.
type EngineInstance struct {
	ID        uint32
	Class     uint32
	Partition uint32

	// Stubbed instances exist but must not be selected automatically.
	Stubbed bool
}

// ChannelAllocParams describes a channel to allocate. The buffer holds the
// GPFIFO and USERD at the given offsets.
type ChannelAllocParams struct {
	ChannelClass  uint32
	EngineClass   uint32
	Engine        uint32
	Buffer        *MemDesc
	GPFIFOOffset  uint64
	GPFIFOEntries uint32
	USERDOffset   uint64
	Secure        bool

	// CE is set for copy engine channels.
	CE *nvgpu.NVB0B5_ALLOCATION_PARAMETERS
}

// Allocator is the resource manager as seen by channel submission.
type Allocator interface {
	// AllocMemory allocates size bytes in the aperture.
	AllocMemory(size uint64, aperture Aperture, contiguous bool) (*MemDesc, error)

	// FreeMemory releases an allocation.
	FreeMemory(m *MemDesc) error

	// Map creates a CPU mapping of an allocation.
	Map(m *MemDesc) (Mapping, error)

	// Unmap releases a mapping.
	Unmap(mp Mapping) error

	// HasVASpace tells if the device has the identity mapped virtual
	// address space set up for client memory.
	HasVASpace() bool

	// EngineInstances enumerates the engines of a class.
	EngineInstances(class uint32) []EngineInstance

	// AllocChannel creates a channel bound to an engine.
	AllocChannel(params ChannelAllocParams) (Handle, error)

	// FreeChannel destroys a channel.
	FreeChannel(h Handle) error

	// RingDoorbell notifies the host front-end of new GPFIFO entries.
	RingDoorbell(h Handle) error

	// KickChannel asks the resource manager to ring the doorbell on the
	// driver's behalf. Used in lite mode.
	KickChannel(h Handle) error
}

// SecureAllocator is an Allocator that supports confidential computing.
type SecureAllocator interface {
	Allocator

	// OpenSecureSession establishes the secure session of a channel.
	OpenSecureSession(h Handle) (*ccsl.Session, error)
}
