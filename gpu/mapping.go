package gpu

import (
	"fmt"
	"sync/atomic"

	"github.com/sarchlab/copyengine/memory"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/status"
)

// mapping is a CPU view of an allocation. Accesses go straight to the
// backing storage, page run by page run.
type mapping struct {
	storage *memory.Storage
	desc    *rm.MemDesc
	flushes atomic.Uint64
}

func (m *mapping) walk(
	offset uint64,
	n int,
	f func(pa uint64, lo, hi int) error,
) error {
	if offset+uint64(n) > m.desc.Size {
		return fmt.Errorf("mapping of 0x%x bytes, access [0x%x, 0x%x): %w",
			m.desc.Size, offset, offset+uint64(n), status.ErrInvalidArgument)
	}

	done := 0
	for done < n {
		curr := offset + uint64(done)
		run := int(min(m.desc.ContiguousRun(curr), uint64(n-done)))

		if err := f(m.desc.PhysAddr(curr), done, done+run); err != nil {
			return err
		}

		done += run
	}

	return nil
}

func (m *mapping) Read(offset uint64, p []byte) error {
	return m.walk(offset, len(p), func(pa uint64, lo, hi int) error {
		data, err := m.storage.Read(pa, uint64(hi-lo))
		if err != nil {
			return err
		}

		copy(p[lo:hi], data)

		return nil
	})
}

func (m *mapping) Write(offset uint64, p []byte) error {
	return m.walk(offset, len(p), func(pa uint64, lo, hi int) error {
		return m.storage.Write(pa, p[lo:hi])
	})
}

// FlushWriteCombine has nothing to flush, the storage is written through. The
// flushes are counted.
func (m *mapping) FlushWriteCombine() {
	m.flushes.Add(1)
}
