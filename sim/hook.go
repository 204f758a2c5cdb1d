package sim

import "sync"

// HookPos names a place where hooks fire.
type HookPos struct {
	Name string
}

// Hook positions of engines.
var (
	HookPosBeforeEvent = &HookPos{Name: "BeforeEvent"}
	HookPosAfterEvent  = &HookPos{Name: "AfterEvent"}
)

// HookCtx tells a hook where it fired and what it is about.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hook observes a Hookable.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc turns a function into a Hook.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// Hookable objects accept hooks and invoke them.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	InvokeHook(ctx HookCtx)
}

// HookableBase implements Hookable. Hooks may be added while others are
// being invoked; an invocation sees the hooks present when it started.
type HookableBase struct {
	mu    sync.Mutex
	hooks []Hook
}

// AcceptHook adds a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hooks := make([]Hook, len(h.hooks), len(h.hooks)+1)
	copy(hooks, h.hooks)
	h.hooks = append(hooks, hook)
}

// NumHooks returns how many hooks are attached.
func (h *HookableBase) NumHooks() int {
	return len(h.snapshot())
}

// InvokeHook calls every hook with ctx.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.snapshot() {
		hook.Func(ctx)
	}
}

func (h *HookableBase) snapshot() []Hook {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.hooks
}
