package submit

import (
	"context"
	"fmt"

	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/pushbuffer"
	"github.com/sarchlab/copyengine/rm"
)

// MemsetRequest fills Length bytes at Offset of Dst with Pattern. Pattern is
// a 32-bit word when the range is word aligned. Otherwise its low byte is
// repeated.
type MemsetRequest struct {
	Dst     *rm.MemDesc
	Offset  uint64
	Length  uint64
	Pattern uint32
	Flags   Flags
}

// MemcopyRequest copies Length bytes from SrcOffset of Src to DstOffset of
// Dst. Both allocations belong to the device the submitter drives.
type MemcopyRequest struct {
	Src       *rm.MemDesc
	SrcOffset uint64
	Dst       *rm.MemDesc
	DstOffset uint64
	Length    uint64
	Flags     Flags
}

// Virtual tells if a request with flags addresses memory virtually.
func (s *Submitter) Virtual(flags Flags) bool {
	return s.virtual || flags.Has(FlagVirtual)
}

// Memset splits a memset into sub-operations and submits them.
func (s *Submitter) Memset(
	ctx context.Context,
	sched channel.SchedulingContext,
	req MemsetRequest,
) (uint64, error) {
	if err := ValidateRange(req.Dst, req.Offset, req.Length); err != nil {
		return 0, fmt.Errorf("%s: memset: %w", s.name, err)
	}

	virtual := s.Virtual(req.Flags)
	if virtual {
		if err := s.CheckVirtual(FlagVirtual); err != nil {
			return 0, err
		}
	}

	byteFill := pushbuffer.MemsetByteFill(req.Offset, req.Length)
	chunks := Split(nil, 0, req.Dst, req.Offset, req.Length, s.maxLine)
	subs := make([]SubOp, len(chunks))

	for i, c := range chunks {
		subs[i] = func(sub pushbuffer.Sub) pushbuffer.WorkDescriptor {
			return pushbuffer.Memset{
				Sub:      sub,
				Dst:      Addr(req.Dst, c.DstOffset, virtual),
				Length:   c.Length,
				Pattern:  req.Pattern,
				ByteFill: byteFill,
			}
		}
	}

	return s.Submit(ctx, sched, Request{
		Kind:  "memset",
		What:  req.Dst.Aperture.String(),
		Flags: req.Flags,
		Subs:  subs,
	})
}

// Memcopy splits a copy into sub-operations and submits them. A sub-operation
// never crosses a discontinuity of either side.
func (s *Submitter) Memcopy(
	ctx context.Context,
	sched channel.SchedulingContext,
	req MemcopyRequest,
) (uint64, error) {
	chunks, virtual, err := s.splitCopy(req)
	if err != nil {
		return 0, err
	}

	subs := make([]SubOp, len(chunks))

	for i, c := range chunks {
		subs[i] = func(sub pushbuffer.Sub) pushbuffer.WorkDescriptor {
			return pushbuffer.Copy{
				Sub:    sub,
				Src:    Addr(req.Src, c.SrcOffset, virtual),
				Dst:    Addr(req.Dst, c.DstOffset, virtual),
				Length: c.Length,
			}
		}
	}

	return s.Submit(ctx, sched, Request{
		Kind:  "memcopy",
		What:  req.Src.Aperture.String() + "->" + req.Dst.Aperture.String(),
		Flags: req.Flags,
		Subs:  subs,
	})
}

func (s *Submitter) splitCopy(req MemcopyRequest) ([]Chunk, bool, error) {
	if err := ValidateRange(req.Src, req.SrcOffset, req.Length); err != nil {
		return nil, false, fmt.Errorf("%s: memcopy source: %w", s.name, err)
	}

	if err := ValidateRange(req.Dst, req.DstOffset, req.Length); err != nil {
		return nil, false, fmt.Errorf("%s: memcopy destination: %w",
			s.name, err)
	}

	virtual := s.Virtual(req.Flags)
	if virtual {
		if err := s.CheckVirtual(FlagVirtual); err != nil {
			return nil, false, err
		}
	}

	chunks := Split(req.Src, req.SrcOffset, req.Dst, req.DstOffset,
		req.Length, s.maxLine)

	return chunks, virtual, nil
}

// SplitCopy validates a copy and returns its sub-operations and whether it
// is addressed virtually.
func (s *Submitter) SplitCopy(req MemcopyRequest) ([]Chunk, bool, error) {
	return s.splitCopy(req)
}
