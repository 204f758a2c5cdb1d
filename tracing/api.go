package tracing

import (
	"log"

	"github.com/sarchlab/copyengine/sim"
)

// NamedHookable is a domain that tasks can be reported on.
type NamedHookable interface {
	sim.Named
	sim.Hookable
}

// Hook positions of task reports.
var (
	HookPosTaskStart = &sim.HookPos{Name: "HookPosTaskStart"}
	HookPosTaskStep  = &sim.HookPos{Name: "HookPosTaskStep"}
	HookPosTaskEnd   = &sim.HookPos{Name: "HookPosTaskEnd"}
)

// StartTask reports that the domain started working on a task. Nothing is
// built when no hook listens.
func StartTask(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	detail interface{},
) {
	if domain == nil {
		log.Panic("domain must not be nil")
	}

	if domain.NumHooks() == 0 {
		return
	}

	for field, v := range map[string]string{"id": id, "kind": kind, "what": what} {
		if v == "" {
			log.Panicf("task %s must not be empty", field)
		}
	}

	location := domain.Name()
	if location == "" {
		log.Panic("domain must have a name")
	}

	report(domain, HookPosTaskStart, Task{
		ID:       id,
		ParentID: parentID,
		Kind:     kind,
		What:     what,
		Location: location,
		Detail:   detail,
	})
}

// AddTaskStep reports a milestone of a task.
func AddTaskStep(id string, domain NamedHookable, what string) {
	report(domain, HookPosTaskStep, Task{
		ID:    id,
		Steps: []TaskStep{{What: what}},
	})
}

// EndTask reports that a task is done.
func EndTask(id string, domain NamedHookable) {
	report(domain, HookPosTaskEnd, Task{ID: id})
}

func report(domain NamedHookable, pos *sim.HookPos, task Task) {
	if domain.NumHooks() == 0 {
		return
	}

	domain.InvokeHook(sim.HookCtx{Domain: domain, Pos: pos, Item: task})
}
