// Package sim is the clock that drives the device model. Components schedule
// events on an Engine, and the engine hands each event back to its handler in
// time order.
package sim

import (
	"log"
	"strings"
)

// VTimeInSec is a point on the device clock, in seconds.
type VTimeInSec float64

// Event is something a handler asked to happen at a given time.
type Event interface {
	Time() VTimeInSec
	Handler() Handler
}

// Handler reacts to the events it scheduled.
type Handler interface {
	Handle(e Event) error
}

// TimeTeller can tell the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// Engine orders events and runs them.
type Engine interface {
	Hookable
	TimeTeller

	// Schedule queues an event. The event must not be in the past.
	Schedule(e Event)

	// Run handles events until the queue drains or a handler fails.
	Run() error

	// HasPendingEvent tells if Run would have anything to do.
	HasPendingEvent() bool
}

// Named objects have a name.
type Named interface {
	Name() string
}

// Component is a named, hookable event handler.
type Component interface {
	Named
	Handler
	Hookable
}

// ComponentBase carries the name and the hooks of a component.
type ComponentBase struct {
	HookableBase

	name string
}

// NewComponentBase checks the name and creates a ComponentBase.
func NewComponentBase(name string) *ComponentBase {
	NameMustBeValid(name)

	return &ComponentBase{name: name}
}

// Name returns the component name.
func (c *ComponentBase) Name() string {
	return c.name
}

// NameMustBeValid panics on names that are empty or have white spaces in
// them. Names are dot separated paths like "GPU[0].CE[2]".
func NameMustBeValid(name string) {
	switch {
	case name == "":
		log.Panic("name must not be empty")
	case strings.ContainsAny(name, " \t\n"):
		log.Panicf("name %q must not contain white spaces", name)
	}
}
