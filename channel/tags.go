package channel

import (
	"context"
	"fmt"
	"log"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/pushbuffer"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/status"
)

// TagRing selects one of the tag rings of a secure channel.
type TagRing = pushbuffer.TagRing

// Tag rings.
const (
	TagRingAuth   = pushbuffer.TagRingAuth
	TagRingDigest = pushbuffer.TagRingDigest
)

func tagSize(r TagRing) int {
	if r == TagRingDigest {
		return ccsl.DigestSize
	}

	return ccsl.TagSize
}

// ReadTagGet returns the index of the tag slot consumed last.
func (c *Channel) ReadTagGet(r TagRing) (uint32, error) {
	c.mustBeSecure()
	return c.readWord(c.layout.TagGetSemaOffsetOf(r))
}

func (c *Channel) mustBeSecure() {
	if !c.layout.Secure {
		log.Panicf("channel %s has no tag rings", c.name)
	}
}

// ReserveTag waits until the next slot of a tag ring is free, takes it and
// returns its index and address.
func (c *Channel) ReserveTag(
	ctx context.Context,
	sched SchedulingContext,
	r TagRing,
) (uint32, uint64, error) {
	c.mustBeSecure()

	p := c.tagRings[r]

	err := c.wait(ctx, sched, func() (bool, error) {
		get, err := c.ReadTagGet(r)
		if err != nil {
			return false, err
		}

		return p.HasRoom(get), nil
	})
	if err != nil {
		c.log.WithField("ring", int(r)).Warn("no free tag slot")
		return 0, 0, err
	}

	slot := p.Advance()

	return slot, c.va + c.layout.TagOffset(r, slot), nil
}

func (c *Channel) tagOffsetOf(addr uint64, r TagRing) (uint64, error) {
	off := addr - c.va
	base := c.layout.TagOffset(r, 0)
	end := c.layout.TagOffset(r, c.layout.TagSlots)

	if addr < c.va || off < base || off >= end {
		return 0, fmt.Errorf("address 0x%x outside tag ring: %w",
			addr, status.ErrInvalidArgument)
	}

	return off, nil
}

// WriteTag stores an authentication tag at addr.
func (c *Channel) WriteTag(addr uint64, tag []byte) error {
	off, err := c.tagOffsetOf(addr, TagRingAuth)
	if err != nil {
		return err
	}

	return c.withMapping(func(m rm.Mapping) error {
		return m.Write(off, tag)
	})
}

// ReadTag returns the content of a tag slot.
func (c *Channel) ReadTag(r TagRing, slot uint32) ([]byte, error) {
	c.mustBeSecure()

	buf := make([]byte, tagSize(r))
	err := c.withMapping(func(m rm.Mapping) error {
		return m.Read(c.layout.TagOffset(r, slot), buf)
	})

	return buf, err
}

// Tags returns a tag reserver whose waits use sched.
func (c *Channel) Tags(sched SchedulingContext) pushbuffer.TagReserver {
	return tagReserver{c: c, sched: sched}
}

type tagReserver struct {
	c     *Channel
	sched SchedulingContext
}

func (t tagReserver) ReserveTag(
	ctx context.Context,
	r pushbuffer.TagRing,
) (uint32, uint64, error) {
	return t.c.ReserveTag(ctx, t.sched, r)
}

func (t tagReserver) WriteTag(addr uint64, tag []byte) error {
	return t.c.WriteTag(addr, tag)
}
