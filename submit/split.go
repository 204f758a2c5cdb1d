package submit

import (
	"log"

	"github.com/sarchlab/copyengine/pushbuffer"
	"github.com/sarchlab/copyengine/rm"
)

// Chunk is one sub-operation of a split request.
type Chunk struct {
	SrcOffset uint64
	DstOffset uint64
	Length    uint64
}

// Split cuts length bytes at dstOffset of dst into runs that are physically
// contiguous in dst and, if src is not nil, at srcOffset of src. No run is
// longer than maxLine. The runs cover the range once, in increasing order.
func Split(
	src *rm.MemDesc,
	srcOffset uint64,
	dst *rm.MemDesc,
	dstOffset uint64,
	length uint64,
	maxLine uint64,
) []Chunk {
	var chunks []Chunk

	for length > 0 {
		n := min(length, maxLine, dst.ContiguousRun(dstOffset))
		if src != nil {
			n = min(n, src.ContiguousRun(srcOffset))
		}

		if n == 0 {
			log.Panicf("split ran out of memory with 0x%x bytes left", length)
		}

		chunks = append(chunks, Chunk{
			SrcOffset: srcOffset,
			DstOffset: dstOffset,
			Length:    n,
		})

		srcOffset += n
		dstOffset += n
		length -= n
	}

	return chunks
}

// Pipelining tells, for each of n sub-operations of a request, whether it
// may overlap with the one before. The first one only does if the caller
// vouches for it. After maxRun pipelined sub-operations in a row the next
// one is not pipelined. A maxRun of zero means no limit.
func Pipelining(n int, first bool, maxRun int) []bool {
	out := make([]bool, n)
	run := 0

	for i := range out {
		if (i > 0 || first) && (maxRun == 0 || run < maxRun) {
			out[i] = true
			run++

			continue
		}

		run = 0
	}

	return out
}

// Addr returns how an engine addresses the byte at offset of m.
func Addr(m *rm.MemDesc, offset uint64, virtual bool) pushbuffer.Addr {
	pa := m.PhysAddr(offset)

	if virtual {
		return pushbuffer.Addr{
			Addr:     rm.IdentityVA(m.Aperture, pa),
			Aperture: m.Aperture,
		}
	}

	return pushbuffer.Addr{Addr: pa, Aperture: m.Aperture, Physical: true}
}
