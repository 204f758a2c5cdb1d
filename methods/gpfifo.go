package methods

// GPEntrySize is the size of one GPFIFO entry in bytes.
const GPEntrySize = 8

// GPEntry points the host front-end at a segment of the pushbuffer.
type GPEntry struct {
	// Addr is the virtual address of the segment. It must be word aligned.
	Addr uint64

	// Length is the segment length in bytes. It must be a multiple of 4.
	Length uint32
}

// Encode packs the entry into its two words.
//
//	entry0: 31:2 address bits 31:2
//	entry1:  7:0 address bits 39:32, 30:10 length in words
func (e GPEntry) Encode() (entry0, entry1 uint32) {
	entry0 = uint32(e.Addr) &^ 0x3
	entry1 = uint32(e.Addr>>32)&0xFF | (e.Length/4&0x1FFFFF)<<10

	return entry0, entry1
}

// DecodeGPEntry unpacks the two words of an entry.
func DecodeGPEntry(entry0, entry1 uint32) GPEntry {
	return GPEntry{
		Addr:   uint64(entry1&0xFF)<<32 | uint64(entry0&^0x3),
		Length: (entry1 >> 10 & 0x1FFFFF) * 4,
	}
}
