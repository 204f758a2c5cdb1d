package gpu

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/memory"
	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/rm"
)

// location is a resolved address.
type location struct {
	storage *memory.Storage
	addr    uint64
}

func (l location) read(n uint64) ([]byte, error) {
	return l.storage.Read(l.addr, n)
}

func (l location) write(data []byte) error {
	return l.storage.Write(l.addr, data)
}

func (l location) readUint32() (uint32, error) {
	data, err := l.read(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(data), nil
}

func (l location) writeUint32(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)

	return l.write(buf[:])
}

// hostSemaphore is the state of the host semaphore methods.
type hostSemaphore struct {
	addrLo, addrHi       uint32
	payloadLo, payloadHi uint32
}

// channelState is the device side of a channel: where its buffer is, the
// engine it is bound to and the method state the engine keeps per channel.
type channelState struct {
	handle  rm.Handle
	params  rm.ChannelAllocParams
	storage *memory.Storage
	engine  engine
	session *ccsl.Session

	faulted bool
	freed   atomic.Bool

	sem  hostSemaphore
	ce   ceState
	sec2 sec2State
}

// bufferAddr returns the physical address of an offset in the channel buffer.
func (c *channelState) bufferAddr(offset uint64) uint64 {
	return c.params.Buffer.PhysAddr(offset)
}

func (c *channelState) buffer(offset uint64) location {
	return location{storage: c.storage, addr: c.bufferAddr(offset)}
}

// A segment is the decoded content of one GPFIFO entry.
type segment struct {
	ch      *channelState
	methods []methods.Method
}
