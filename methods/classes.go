package methods

import "gvisor.dev/gvisor/pkg/abi/nvgpu"

// HOPPER_SEC2_WORK_LAUNCH_A is the class of the SEC2 work launch object.
const HOPPER_SEC2_WORK_LAUNCH_A = 0x0000cba2 //nolint:revive

// NVB0B5AllocParamsVersion1 is the only version of the copy engine allocation
// parameters.
const NVB0B5AllocParamsVersion1 = 1

// CEClasses lists the supported copy engine classes, oldest first.
var CEClasses = []uint32{
	nvgpu.VOLTA_DMA_COPY_A,
	nvgpu.TURING_DMA_COPY_A,
	nvgpu.AMPERE_DMA_COPY_A,
	nvgpu.AMPERE_DMA_COPY_B,
	nvgpu.HOPPER_DMA_COPY_A,
}

// IsCEClass tells if class is a copy engine class.
func IsCEClass(class uint32) bool {
	for _, c := range CEClasses {
		if c == class {
			return true
		}
	}

	return false
}

// SupportsFastScrub tells if a copy engine class has the memory scrub
// launch mode.
func SupportsFastScrub(class uint32) bool {
	return class == nvgpu.HOPPER_DMA_COPY_A
}

// SupportsSecureCopy tells if a copy engine class can encrypt and decrypt.
func SupportsSecureCopy(class uint32) bool {
	return class == nvgpu.HOPPER_DMA_COPY_A
}

// CEAllocParams returns the allocation parameters of a copy engine object.
func CEAllocParams(engineType uint32) *nvgpu.NVB0B5_ALLOCATION_PARAMETERS {
	return &nvgpu.NVB0B5_ALLOCATION_PARAMETERS{
		Version:    NVB0B5AllocParamsVersion1,
		EngineType: engineType,
	}
}

// ChannelClass is the GPFIFO channel class used for all channels.
const ChannelClass = nvgpu.AMPERE_CHANNEL_GPFIFO_A
