// Package ring provides the bounded rings shared by the channel, the tag
// buffers and the scrubber.
package ring

import (
	"log"

	"github.com/sarchlab/copyengine/sim"
)

// HookPosRingPush marks when an element is pushed into a ring.
var HookPosRingPush = &sim.HookPos{Name: "Ring Push"}

// HookPosRingPop marks when an element is popped from a ring.
var HookPosRingPop = &sim.HookPos{Name: "Ring Pop"}

// Ring is a fixed capacity FIFO.
type Ring[T any] struct {
	sim.HookableBase

	name     string
	elements []T
	head     int
	count    int
}

// NewRing creates a ring that holds at most capacity elements.
func NewRing[T any](name string, capacity int) *Ring[T] {
	sim.NameMustBeValid(name)

	if capacity <= 0 {
		log.Panicf("ring %s: capacity must be positive", name)
	}

	return &Ring[T]{
		name:     name,
		elements: make([]T, capacity),
	}
}

// Name returns the name of the ring.
func (r *Ring[T]) Name() string {
	return r.name
}

// Capacity returns the maximum number of elements.
func (r *Ring[T]) Capacity() int {
	return len(r.elements)
}

// Size returns the current number of elements.
func (r *Ring[T]) Size() int {
	return r.count
}

// IsFull tells if no more element can be pushed.
func (r *Ring[T]) IsFull() bool {
	return r.count == len(r.elements)
}

// IsEmpty tells if the ring holds no element.
func (r *Ring[T]) IsEmpty() bool {
	return r.count == 0
}

// Push appends an element at the tail. Pushing into a full ring panics;
// callers check IsFull first.
func (r *Ring[T]) Push(e T) {
	if r.IsFull() {
		log.Panicf("ring %s overflow", r.name)
	}

	r.elements[(r.head+r.count)%len(r.elements)] = e
	r.count++

	if r.NumHooks() > 0 {
		r.InvokeHook(sim.HookCtx{
			Domain: r,
			Pos:    HookPosRingPush,
			Item:   e,
		})
	}
}

// Peek returns the element at the head without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}

	return r.elements[r.head], true
}

// TryPop removes and returns the element at the head. The second return value
// is false if the ring is empty.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}

	e := r.elements[r.head]
	r.elements[r.head] = zero
	r.head = (r.head + 1) % len(r.elements)
	r.count--

	if r.NumHooks() > 0 {
		r.InvokeHook(sim.HookCtx{
			Domain: r,
			Pos:    HookPosRingPop,
			Item:   e,
		})
	}

	return e, true
}

// At returns the i-th element counted from the head.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		log.Panicf("ring %s: index %d out of range [0, %d)", r.name, i, r.count)
	}

	return r.elements[(r.head+i)%len(r.elements)]
}

// Clear removes all elements.
func (r *Ring[T]) Clear() {
	clear(r.elements)
	r.head = 0
	r.count = 0
}
