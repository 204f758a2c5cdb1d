package ring

import "log"

// Producer tracks the put side of a ring of slots whose consumer is the
// hardware. The consumer publishes the index of the slot it consumed last
// (the get index). One slot is always left empty so that a full ring can be
// told apart from an empty one, so at most Size()-1 slots are outstanding.
type Producer struct {
	size uint32
	put  uint32
}

// NewProducer creates a producer over size slots. Both the put index and the
// initial get index are 0.
func NewProducer(size uint32) *Producer {
	if size < 2 {
		log.Panicf("a ring of %d slots cannot hold any outstanding slot", size)
	}

	return &Producer{size: size}
}

// Size returns the number of slots.
func (p *Producer) Size() uint32 {
	return p.size
}

// Put returns the index of the slot written last.
func (p *Producer) Put() uint32 {
	return p.put
}

// Next returns the index of the slot that will be written next.
func (p *Producer) Next() uint32 {
	return (p.put + 1) % p.size
}

// HasRoom tells if the next slot can be written given the consumer's get
// index.
func (p *Producer) HasRoom(get uint32) bool {
	return p.Next() != get%p.size
}

// Outstanding returns the number of written slots not yet consumed.
func (p *Producer) Outstanding(get uint32) uint32 {
	return (p.put + p.size - get%p.size) % p.size
}

// Advance marks the next slot as written and returns its index.
func (p *Producer) Advance() uint32 {
	p.put = p.Next()
	return p.put
}

// Reset moves the put index back to 0.
func (p *Producer) Reset() {
	p.put = 0
}
