package gpu

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/sim"
)

// FrontEnd is the host front-end. It walks the GPFIFO of every channel from
// GP_GET to GP_PUT, fetches and decodes the pushbuffer segments and hands
// them to the engines the channels are bound to.
type FrontEnd struct {
	*sim.TickingComponent

	dev *Device
}

// Tick fetches at most one GPFIFO entry per channel.
func (f *FrontEnd) Tick() bool {
	madeProgress := false

	for _, ch := range f.dev.activeChannels() {
		madeProgress = f.fetch(ch) || madeProgress
	}

	return madeProgress
}

func (f *FrontEnd) fetch(ch *channelState) bool {
	if ch.faulted || !ch.engine.canAccept() {
		return false
	}

	userd := ch.params.USERDOffset

	get, err := ch.buffer(userd + channel.USERDGPGet).readUint32()
	if err != nil {
		f.dev.fault(ch, err)
		return false
	}

	put, err := ch.buffer(userd + channel.USERDGPPut).readUint32()
	if err != nil {
		f.dev.fault(ch, err)
		return false
	}

	if get == put {
		return false
	}

	if get >= ch.params.GPFIFOEntries || put >= ch.params.GPFIFOEntries {
		f.dev.fault(ch, fmt.Errorf("%s: GP_GET %d GP_PUT %d out of %d entries",
			f.Name(), get, put, ch.params.GPFIFOEntries))
		return true
	}

	seg, err := f.readSegment(ch, get)
	if err != nil {
		f.dev.fault(ch, fmt.Errorf("%s: %w", f.Name(), err))
		return true
	}

	ch.engine.accept(seg)

	next := (get + 1) % ch.params.GPFIFOEntries
	if err := ch.buffer(userd + channel.USERDGPGet).writeUint32(next); err != nil {
		f.dev.fault(ch, err)
	}

	return true
}

func (f *FrontEnd) readSegment(ch *channelState, entry uint32) (segment, error) {
	gpOffset := ch.params.GPFIFOOffset + uint64(entry)*methods.GPEntrySize

	raw, err := ch.buffer(gpOffset).read(methods.GPEntrySize)
	if err != nil {
		return segment{}, err
	}

	gp := methods.DecodeGPEntry(
		binary.LittleEndian.Uint32(raw[0:]),
		binary.LittleEndian.Uint32(raw[4:]),
	)

	data, err := f.dev.virtual(gp.Addr).read(uint64(gp.Length))
	if err != nil {
		return segment{}, err
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[4*i:])
	}

	ms, err := methods.Decode(words)
	if err != nil {
		return segment{}, err
	}

	return segment{ch: ch, methods: ms}, nil
}
