package methods

// Copy engine methods.
const (
	CESetSemaphoreA        = 0x0240
	CESetSemaphoreB        = 0x0244
	CESetSemaphorePayload  = 0x0248
	CESetSrcPhysMode       = 0x0260
	CESetDstPhysMode       = 0x0264
	CELaunchDMA            = 0x0300
	CEOffsetInUpper        = 0x0400
	CEOffsetInLower        = 0x0404
	CEOffsetOutUpper       = 0x0408
	CEOffsetOutLower       = 0x040c
	CEPitchIn              = 0x0410
	CEPitchOut             = 0x0414
	CELineLengthIn         = 0x0418
	CELineCount            = 0x041c
	CESetSecureCopyMode    = 0x0500
	CESetIV0               = 0x0504
	CESetIV1               = 0x0508
	CESetIV2               = 0x050c
	CESetAuthTagAddrUpper  = 0x0510
	CESetAuthTagAddrLower  = 0x0514
	CESetMemoryScrubParams = 0x06fc
	CESetRemapConstA       = 0x0700
	CESetRemapConstB       = 0x0704
	CESetRemapComponents   = 0x0708
)

// TransferType is the DATA_TRANSFER_TYPE field of LAUNCH_DMA.
type TransferType uint32

// Transfer types.
const (
	TransferNone         TransferType = 0
	TransferPipelined    TransferType = 1
	TransferNonPipelined TransferType = 2
)

// SemaphoreType is the SEMAPHORE_TYPE field of LAUNCH_DMA.
type SemaphoreType uint32

// Semaphore types.
const (
	SemaphoreNone            SemaphoreType = 0
	SemaphoreReleaseOneWord  SemaphoreType = 1
	SemaphoreReleaseFourWord SemaphoreType = 2
)

// InterruptType is the INTERRUPT_TYPE field of LAUNCH_DMA.
type InterruptType uint32

// Interrupt types.
const (
	InterruptNone        InterruptType = 0
	InterruptBlocking    InterruptType = 1
	InterruptNonBlocking InterruptType = 2
)

// CopyType is the COPY_TYPE field of LAUNCH_DMA.
type CopyType uint32

// Copy types.
const (
	CopyProtected CopyType = 0
	CopySecure    CopyType = 1
)

// LaunchDMA is the data of LAUNCH_DMA.
type LaunchDMA struct {
	Transfer    TransferType
	Flush       bool
	Semaphore   SemaphoreType
	Interrupt   InterruptType
	SrcPitch    bool
	DstPitch    bool
	Remap       bool
	SrcPhysical bool
	DstPhysical bool
	Copy        CopyType
	MemoryScrub bool
}

func bit(b bool, shift uint) uint32 {
	if b {
		return 1 << shift
	}

	return 0
}

// Encode packs the fields.
func (l LaunchDMA) Encode() uint32 {
	return uint32(l.Transfer)&0x3 |
		bit(l.Flush, 2) |
		(uint32(l.Semaphore)&0x3)<<3 |
		(uint32(l.Interrupt)&0x3)<<5 |
		bit(l.SrcPitch, 7) |
		bit(l.DstPitch, 8) |
		bit(l.Remap, 10) |
		bit(l.SrcPhysical, 12) |
		bit(l.DstPhysical, 13) |
		(uint32(l.Copy)&0x3)<<20 |
		bit(l.MemoryScrub, 23)
}

// DecodeLaunchDMA unpacks LAUNCH_DMA data.
func DecodeLaunchDMA(w uint32) LaunchDMA {
	return LaunchDMA{
		Transfer:    TransferType(w & 0x3),
		Flush:       w&(1<<2) != 0,
		Semaphore:   SemaphoreType(w >> 3 & 0x3),
		Interrupt:   InterruptType(w >> 5 & 0x3),
		SrcPitch:    w&(1<<7) != 0,
		DstPitch:    w&(1<<8) != 0,
		Remap:       w&(1<<10) != 0,
		SrcPhysical: w&(1<<12) != 0,
		DstPhysical: w&(1<<13) != 0,
		Copy:        CopyType(w >> 20 & 0x3),
		MemoryScrub: w&(1<<23) != 0,
	}
}

// Target is the memory a physical address refers to.
type Target uint32

// Physical targets.
const (
	TargetLocalFB           Target = 0
	TargetCoherentSysmem    Target = 1
	TargetNonCoherentSysmem Target = 2
)

// PhysMode is the data of SET_SRC_PHYS_MODE and SET_DST_PHYS_MODE.
type PhysMode struct {
	Target Target
}

// Encode packs the fields.
func (p PhysMode) Encode() uint32 {
	return uint32(p.Target) & 0x3
}

// DecodePhysMode unpacks a phys mode word.
func DecodePhysMode(w uint32) PhysMode {
	return PhysMode{Target: Target(w & 0x3)}
}

// RemapSource selects what a destination component is filled with.
type RemapSource uint32

// Remap sources.
const (
	RemapSrcX    RemapSource = 0
	RemapConstA  RemapSource = 4
	RemapConstB  RemapSource = 5
	RemapNoWrite RemapSource = 6
)

// ComponentSize is the size of one remap component.
type ComponentSize uint32

// Component sizes.
const (
	ComponentSizeOne  ComponentSize = 0
	ComponentSizeFour ComponentSize = 3
)

// Bytes returns the size in bytes.
func (c ComponentSize) Bytes() uint64 {
	return uint64(c) + 1
}

// RemapComponents is the data of SET_REMAP_COMPONENTS.
type RemapComponents struct {
	DstX             RemapSource
	ComponentSize    ComponentSize
	NumDstComponents uint32
}

// Encode packs the fields. NumDstComponents is between 1 and 4.
func (r RemapComponents) Encode() uint32 {
	return uint32(r.DstX)&0x7 |
		(uint32(r.ComponentSize)&0x3)<<16 |
		((r.NumDstComponents-1)&0x3)<<24
}

// DecodeRemapComponents unpacks SET_REMAP_COMPONENTS data.
func DecodeRemapComponents(w uint32) RemapComponents {
	return RemapComponents{
		DstX:             RemapSource(w & 0x7),
		ComponentSize:    ComponentSize(w >> 16 & 0x3),
		NumDstComponents: (w>>24)&0x3 + 1,
	}
}

// SecureCopyMode is the data of SET_SECURE_COPY_MODE.
type SecureCopyMode struct {
	Decrypt bool
}

// Encode packs the fields.
func (m SecureCopyMode) Encode() uint32 {
	return bit(m.Decrypt, 0)
}

// DecodeSecureCopyMode unpacks SET_SECURE_COPY_MODE data.
func DecodeSecureCopyMode(w uint32) SecureCopyMode {
	return SecureCopyMode{Decrypt: w&1 != 0}
}

// MemoryScrubParams is the data of SET_MEMORY_SCRUB_PARAMETERS.
type MemoryScrubParams struct {
	Discard bool
}

// Encode packs the fields.
func (p MemoryScrubParams) Encode() uint32 {
	return bit(p.Discard, 0)
}

// DecodeMemoryScrubParams unpacks SET_MEMORY_SCRUB_PARAMETERS data.
func DecodeMemoryScrubParams(w uint32) MemoryScrubParams {
	return MemoryScrubParams{Discard: w&1 != 0}
}
