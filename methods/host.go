package methods

// Host methods. They are executed by the host front-end on any subchannel.
const (
	SetObject         = 0x0000
	SemAddrLo         = 0x005c
	SemAddrHi         = 0x0060
	SemPayloadLo      = 0x0064
	SemPayloadHi      = 0x0068
	SemExecute        = 0x006c
	NonStallInterrupt = 0x0020

	// HostMethodLimit separates host methods from engine methods.
	HostMethodLimit = 0x0100
)

// SemOperation is the operation of SEM_EXECUTE.
type SemOperation uint32

// Semaphore operations.
const (
	SemOperationAcquire SemOperation = 0
	SemOperationRelease SemOperation = 1
)

// SemExecuteFields is the data of SEM_EXECUTE.
type SemExecuteFields struct {
	Operation  SemOperation
	ReleaseWFI bool
	Payload64  bool
}

// Encode packs the fields.
func (f SemExecuteFields) Encode() uint32 {
	w := uint32(f.Operation) & 0x7
	if f.ReleaseWFI {
		w |= 1 << 20
	}

	if f.Payload64 {
		w |= 1 << 24
	}

	return w
}

// DecodeSemExecute unpacks SEM_EXECUTE data.
func DecodeSemExecute(w uint32) SemExecuteFields {
	return SemExecuteFields{
		Operation:  SemOperation(w & 0x7),
		ReleaseWFI: w&(1<<20) != 0,
		Payload64:  w&(1<<24) != 0,
	}
}

// HostSemaphoreRelease is a host semaphore release record.
type HostSemaphoreRelease struct {
	Addr      uint64
	Payload   uint64
	Payload64 bool
}

// Emit appends the release to a stream.
func (r HostSemaphoreRelease) Emit(s *Stream, subch uint32) {
	s.Inc(subch, SemAddrLo,
		Lower(r.Addr),
		Upper(r.Addr),
		uint32(r.Payload),
		uint32(r.Payload>>32),
		SemExecuteFields{
			Operation:  SemOperationRelease,
			ReleaseWFI: true,
			Payload64:  r.Payload64,
		}.Encode(),
	)
}

// HostSemaphoreReleaseWords is the number of words Emit appends.
const HostSemaphoreReleaseWords = 6
