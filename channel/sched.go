package channel

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/sarchlab/copyengine/status"
)

// UnitKind is a kind of device unit that raises interrupts.
type UnitKind int

// Unit kinds.
const (
	UnitHost UnitKind = iota
	UnitCE
	UnitSec2
)

// Unit is a device unit that raises interrupts.
type Unit struct {
	Kind     UnitKind
	Instance uint32
}

// An InterruptServicer services the pending interrupts of device units on
// behalf of a caller that holds the device lock.
type InterruptServicer interface {
	ServiceInterrupts(units ...Unit)
}

// A SchedulingContext decides what a wait does between two checks of its
// condition. Callers holding the device lock must use
// ServiceInterruptsStrategy, since the interrupt handler that would otherwise
// let the engine continue cannot run.
type SchedulingContext interface {
	// Poll runs after a failed check.
	Poll()

	// BackOff returns the delay policy between checks.
	BackOff() backoff.BackOff
}

// ServiceInterruptsStrategy services interrupts directly between checks and
// never yields.
type ServiceInterruptsStrategy struct {
	Servicer InterruptServicer
	Units    []Unit
}

// Poll services the interrupts of the units.
func (s ServiceInterruptsStrategy) Poll() {
	s.Servicer.ServiceInterrupts(s.Units...)
}

// BackOff checks again immediately.
func (s ServiceInterruptsStrategy) BackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// CooperativeYieldStrategy yields the processor between checks.
type CooperativeYieldStrategy struct {
	Interval time.Duration
}

// Poll yields.
func (s CooperativeYieldStrategy) Poll() {
	runtime.Gosched()
}

// BackOff waits Interval between checks.
func (s CooperativeYieldStrategy) BackOff() backoff.BackOff {
	if s.Interval <= 0 {
		return &backoff.ZeroBackOff{}
	}

	return backoff.NewConstantBackOff(s.Interval)
}

var errNotYet = errors.New("condition not met")

// Wait checks cond until it holds, the timeout expires or ctx is done. A
// timeout is reported as status.ErrTimeout. Errors returned by cond end the
// wait.
func Wait(
	ctx context.Context,
	sched SchedulingContext,
	timeout time.Duration,
	cond func() (bool, error),
) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	op := func() error {
		done, err := cond()
		if err != nil {
			return backoff.Permanent(err)
		}

		if done {
			return nil
		}

		sched.Poll()

		return errNotYet
	}

	err := backoff.Retry(op, backoff.WithContext(sched.BackOff(), waitCtx))
	if !errors.Is(err, errNotYet) {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return status.ErrTimeout
}
