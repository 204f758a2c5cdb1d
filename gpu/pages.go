package gpu

import (
	"github.com/sarchlab/copyengine/rm"
)

// pageAllocator hands out the pages of one aperture. The first page is never
// allocated so that no allocation starts at physical address 0.
type pageAllocator struct {
	pageSize uint64
	used     []bool

	// fragment makes non-contiguous allocations skip a page after every
	// page they take, so that no two pages of an allocation are adjacent.
	fragment bool
}

func newPageAllocator(capacity, pageSize uint64, fragment bool) *pageAllocator {
	a := &pageAllocator{
		pageSize: pageSize,
		used:     make([]bool, capacity/pageSize),
		fragment: fragment,
	}

	if len(a.used) > 0 {
		a.used[0] = true
	}

	return a
}

func (a *pageAllocator) numPages(size uint64) int {
	return int((size + a.pageSize - 1) / a.pageSize)
}

// allocContiguous returns the base of n consecutive free pages.
func (a *pageAllocator) allocContiguous(size uint64) (uint64, bool) {
	n := a.numPages(size)
	run := 0

	for i, used := range a.used {
		if used {
			run = 0
			continue
		}

		run++
		if run == n {
			first := i - n + 1
			for j := first; j <= i; j++ {
				a.used[j] = true
			}

			return uint64(first) * a.pageSize, true
		}
	}

	return 0, false
}

// allocPages returns the bases of enough free pages to hold size bytes.
func (a *pageAllocator) allocPages(size uint64) ([]uint64, bool) {
	n := a.numPages(size)
	picked := make([]int, 0, n)

	for i := 0; i < len(a.used) && len(picked) < n; i++ {
		if a.used[i] {
			continue
		}

		picked = append(picked, i)

		if a.fragment {
			i++
		}
	}

	if len(picked) < n {
		return nil, false
	}

	pages := make([]uint64, 0, n)
	for _, i := range picked {
		a.used[i] = true
		pages = append(pages, uint64(i)*a.pageSize)
	}

	return pages, true
}

func (a *pageAllocator) free(m *rm.MemDesc) {
	if m.Contiguous {
		first := m.Base / a.pageSize
		for i := 0; i < a.numPages(m.Size); i++ {
			a.used[first+uint64(i)] = false
		}

		return
	}

	for _, p := range m.Pages {
		a.used[p/a.pageSize] = false
	}
}

// freePages returns the number of pages that are not allocated.
func (a *pageAllocator) freePages() int {
	n := 0

	for _, used := range a.used {
		if !used {
			n++
		}
	}

	return n
}
