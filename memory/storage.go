// Package memory provides the backing store of the simulated frame buffer and
// system memory.
package memory

import (
	"errors"
	"sync"
)

// Units of storage capacity.
const (
	KB uint64 = 1 << 10
	MB uint64 = 1 << 20
	GB uint64 = 1 << 30
)

// ErrOutOfRange is returned when an access goes beyond the capacity.
var ErrOutOfRange = errors.New("accessing address beyond the storage capacity")

// A Storage keeps the data of a simulated memory.
//
// The storage is managed in units, similar to pages. Units that are never
// touched by Read or Write do not consume host memory and read as zeros.
// The device model and the driver access the same storage from different
// goroutines, so all accesses are serialized.
type Storage struct {
	sync.Mutex

	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity.
func NewStorage(capacity uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = 4 * KB
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of bytes that the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) checkRange(address, length uint64) error {
	if address+length > s.capacity || address+length < address {
		return ErrOutOfRange
	}

	return nil
}

func (s *Storage) createOrGetStorageUnit(address uint64) []byte {
	baseAddr, _ := s.parseAddress(address)

	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

// Read returns a copy of length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkRange(address, length); err != nil {
		return nil, err
	}

	res := make([]byte, length)
	s.walk(address, length, func(unit []byte, inUnit, offset, n uint64) {
		copy(res[offset:offset+n], unit[inUnit:inUnit+n])
	})

	return res, nil
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	s.Lock()
	defer s.Unlock()

	length := uint64(len(data))
	if err := s.checkRange(address, length); err != nil {
		return err
	}

	s.walk(address, length, func(unit []byte, inUnit, offset, n uint64) {
		copy(unit[inUnit:inUnit+n], data[offset:offset+n])
	})

	return nil
}

// Fill repeats the 4-byte pattern over length bytes starting at address. The
// pattern is stored little endian, as the copy engine remap unit does.
func (s *Storage) Fill(address, length uint64, pattern uint32) error {
	s.Lock()
	defer s.Unlock()

	if err := s.checkRange(address, length); err != nil {
		return err
	}

	p := [4]byte{
		byte(pattern), byte(pattern >> 8),
		byte(pattern >> 16), byte(pattern >> 24),
	}

	s.walk(address, length, func(unit []byte, inUnit, offset, n uint64) {
		for i := uint64(0); i < n; i++ {
			unit[inUnit+i] = p[(offset+i)%4]
		}
	})

	return nil
}

// Zero clears length bytes starting at address. Whole units are released
// instead of being overwritten.
func (s *Storage) Zero(address, length uint64) error {
	s.Lock()
	defer s.Unlock()

	if err := s.checkRange(address, length); err != nil {
		return err
	}

	curr := address
	end := address + length

	for curr < end {
		base, inUnit := s.parseAddress(curr)
		n := min(s.unitSize-inUnit, end-curr)

		if inUnit == 0 && n == s.unitSize {
			delete(s.data, base)
		} else if unit, ok := s.data[base]; ok {
			clear(unit[inUnit : inUnit+n])
		}

		curr += n
	}

	return nil
}

func (s *Storage) walk(
	address, length uint64,
	f func(unit []byte, inUnit, offset, n uint64),
) {
	offset := uint64(0)
	for offset < length {
		curr := address + offset
		unit := s.createOrGetStorageUnit(curr)
		_, inUnit := s.parseAddress(curr)
		n := min(s.unitSize-inUnit, length-offset)

		f(unit, inUnit, offset, n)

		offset += n
	}
}
