// Package methods holds the hardware formats of the command stream: method
// headers, host, copy engine and SEC2 method offsets and fields, and GPFIFO
// entries. Every bit-level layout lives here; callers work with the records.
package methods

import (
	"errors"
	"fmt"
	"log"
)

// SecOp is the kind of a method header.
type SecOp uint32

// Method header kinds.
const (
	SecOpIncMethod    SecOp = 1
	SecOpNonIncMethod SecOp = 3
	SecOpImmdData     SecOp = 4
)

const (
	headerSecOpShift = 29
	headerCountShift = 16
	headerCountMask  = 0x1FFF
	headerSubchShift = 13
	headerSubchMask  = 0x7
	headerAddrMask   = 0xFFF
)

// MaxSubchannel is the largest subchannel number.
const MaxSubchannel = headerSubchMask

// Header is a decoded method header.
type Header struct {
	SecOp  SecOp
	Count  uint32
	Subch  uint32
	Method uint32
}

// Encode packs the header. Method is a byte offset and must be word aligned.
func (h Header) Encode() uint32 {
	if h.Method%4 != 0 || h.Method>>2 > headerAddrMask {
		log.Panicf("invalid method offset 0x%x", h.Method)
	}

	if h.Count > headerCountMask || h.Subch > headerSubchMask {
		log.Panicf("invalid header count %d subch %d", h.Count, h.Subch)
	}

	return uint32(h.SecOp)<<headerSecOpShift |
		h.Count<<headerCountShift |
		h.Subch<<headerSubchShift |
		h.Method>>2
}

// DecodeHeader unpacks a header word.
func DecodeHeader(w uint32) Header {
	return Header{
		SecOp:  SecOp(w >> headerSecOpShift),
		Count:  (w >> headerCountShift) & headerCountMask,
		Subch:  (w >> headerSubchShift) & headerSubchMask,
		Method: (w & headerAddrMask) << 2,
	}
}

// Method is one method write as seen by an engine.
type Method struct {
	Subch uint32
	Addr  uint32
	Data  uint32
}

// A Stream accumulates method writes.
type Stream struct {
	words []uint32
}

// Inc appends an incrementing method group starting at method.
func (s *Stream) Inc(subch, method uint32, data ...uint32) {
	s.words = append(s.words, Header{
		SecOp:  SecOpIncMethod,
		Count:  uint32(len(data)),
		Subch:  subch,
		Method: method,
	}.Encode())
	s.words = append(s.words, data...)
}

// Methods appends the given method writes, grouping consecutive offsets under
// one incrementing header.
func (s *Stream) Methods(subch uint32, ms []Method) {
	for i := 0; i < len(ms); {
		j := i + 1
		for j < len(ms) && ms[j].Addr == ms[j-1].Addr+4 {
			j++
		}

		data := make([]uint32, 0, j-i)
		for _, m := range ms[i:j] {
			data = append(data, m.Data)
		}

		s.Inc(subch, ms[i].Addr, data...)
		i = j
	}
}

// Words returns the encoded words.
func (s *Stream) Words() []uint32 {
	return s.words
}

// Len returns the number of encoded words.
func (s *Stream) Len() int {
	return len(s.words)
}

// ErrTruncated is returned when a stream ends in the middle of a group.
var ErrTruncated = errors.New("truncated method stream")

// Decode expands a stream into individual method writes.
func Decode(words []uint32) ([]Method, error) {
	var out []Method

	for i := 0; i < len(words); {
		h := DecodeHeader(words[i])
		i++

		switch h.SecOp {
		case SecOpImmdData:
			out = append(out, Method{Subch: h.Subch, Addr: h.Method, Data: h.Count})
		case SecOpIncMethod, SecOpNonIncMethod:
			if i+int(h.Count) > len(words) {
				return out, ErrTruncated
			}

			for k := uint32(0); k < h.Count; k++ {
				addr := h.Method
				if h.SecOp == SecOpIncMethod {
					addr += 4 * k
				}

				out = append(out, Method{Subch: h.Subch, Addr: addr, Data: words[i]})
				i++
			}
		default:
			return out, fmt.Errorf("unsupported method header 0x%08x", words[i-1])
		}
	}

	return out, nil
}

// Upper returns the upper address bits as written to *_UPPER methods.
func Upper(addr uint64) uint32 {
	return uint32(addr>>32) & 0x01FFFFFF
}

// Lower returns the lower 32 address bits.
func Lower(addr uint64) uint32 {
	return uint32(addr)
}

// Join reassembles an address from its upper and lower parts.
func Join(upper, lower uint32) uint64 {
	return uint64(upper&0x01FFFFFF)<<32 | uint64(lower)
}
