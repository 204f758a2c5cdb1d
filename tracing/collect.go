package tracing

import "github.com/sarchlab/copyengine/sim"

// Tracer receives the tasks reported by the domains it is attached to.
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}

// CollectTrace attaches tracer to domain.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	domain.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
		task, ok := ctx.Item.(Task)
		if !ok {
			return
		}

		switch ctx.Pos {
		case HookPosTaskStart:
			tracer.StartTask(task)
		case HookPosTaskStep:
			tracer.StepTask(task)
		case HookPosTaskEnd:
			tracer.EndTask(task)
		}
	}))
}
