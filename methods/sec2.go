package methods

import "encoding/binary"

// SEC2 work launch methods.
const (
	Sec2Execute             = 0x0300
	Sec2SrcAddrHi           = 0x0400
	Sec2SrcAddrLo           = 0x0404
	Sec2DstAddrHi           = 0x0408
	Sec2DstAddrLo           = 0x040c
	Sec2Size                = 0x0410
	Sec2Pattern             = 0x0414
	Sec2AuthTagAddrHi       = 0x0420
	Sec2AuthTagAddrLo       = 0x0424
	Sec2DigestAddrHi        = 0x0428
	Sec2DigestAddrLo        = 0x042c
	Sec2SetSemaphoreA       = 0x0440
	Sec2SetSemaphoreB       = 0x0444
	Sec2SetSemaphorePayload = 0x0448
)

// Sec2Op is the operation started by EXECUTE.
type Sec2Op uint32

// SEC2 operations.
const (
	Sec2OpMemset Sec2Op = 1
	Sec2OpCopy   Sec2Op = 2
)

// Sec2ExecuteFields is the data of EXECUTE.
type Sec2ExecuteFields struct {
	Op          Sec2Op
	Notify      bool
	NotifyOnEnd bool
	Interrupt   bool
}

// Encode packs the fields.
func (e Sec2ExecuteFields) Encode() uint32 {
	return bit(e.Notify, 0) |
		bit(e.NotifyOnEnd, 1) |
		bit(e.Interrupt, 2) |
		(uint32(e.Op)&0xF)<<4
}

// DecodeSec2Execute unpacks EXECUTE data.
func DecodeSec2Execute(w uint32) Sec2ExecuteFields {
	return Sec2ExecuteFields{
		Notify:      w&1 != 0,
		NotifyOnEnd: w&2 != 0,
		Interrupt:   w&4 != 0,
		Op:          Sec2Op(w >> 4 & 0xF),
	}
}

// SignedBytes serializes SEC2 methods the way they are signed: one little
// endian (offset, data) word pair per method, in stream order.
func SignedBytes(ms []Method) []byte {
	buf := make([]byte, 0, 8*len(ms))
	for _, m := range ms {
		buf = binary.LittleEndian.AppendUint32(buf, m.Addr)
		buf = binary.LittleEndian.AppendUint32(buf, m.Data)
	}

	return buf
}
