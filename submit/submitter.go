// Package submit issues logical requests as sequences of sub-operations over a
// channel and tracks their completion. The copy engine and SEC2 utilities are
// thin layers over it.
package submit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/progress"
	"github.com/sarchlab/copyengine/pushbuffer"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/sim"
	"github.com/sarchlab/copyengine/status"
	"github.com/sarchlab/copyengine/tracing"
)

// Flags modify how a request is issued.
type Flags uint32

const (
	// FlagAsync returns as soon as the request is submitted.
	FlagAsync Flags = 1 << iota

	// FlagVirtual addresses memory through the identity mapping.
	FlagVirtual

	// FlagPipelined lets the first sub-operation overlap with the previous
	// request. The caller asserts there is no hazard between them.
	FlagPipelined
)

// Has tells if all of the given flags are set.
func (f Flags) Has(flags Flags) bool {
	return f&flags == flags
}

// SubOp fills a sub-operation in. The submitter decides the common part.
type SubOp func(sub pushbuffer.Sub) pushbuffer.WorkDescriptor

// A Request is a logical request split into sub-operations.
type Request struct {
	Kind  string
	What  string
	Flags Flags
	Subs  []SubOp
}

type asyncTask struct {
	payload uint64
	id      string
}

// Submitter owns a channel and issues requests on it. Its methods may be
// called from several goroutines; requests are issued one at a time.
type Submitter struct {
	sim.HookableBase

	name        string
	log         logrus.FieldLogger
	alloc       rm.Allocator
	secureAlloc rm.SecureAllocator
	servicer    channel.InterruptServicer
	channels    channel.Builder
	encoder     EncoderFactory

	maxLine      uint64
	maxPipelined int
	virtual      bool
	defaultSched channel.SchedulingContext

	engine atomic.Pointer[rm.EngineInstance]

	lock       sync.Mutex
	ch         *channel.Channel
	session    *ccsl.Session
	tracker    *progress.Tracker
	asyncTasks []asyncTask
	paused     int
	destroyed  bool
}

// Name returns the name of the submitter.
func (s *Submitter) Name() string {
	return s.name
}

// Channel returns the channel requests are issued on.
func (s *Submitter) Channel() *channel.Channel {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.ch
}

// Engine returns the engine instance the submitter issues to.
func (s *Submitter) Engine() rm.EngineInstance {
	return *s.engine.Load()
}

// Session returns the secure session of the channel, nil if the channel is
// not secure.
func (s *Submitter) Session() *ccsl.Session {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.session
}

// MaxLineLength returns the maximum bytes of one sub-operation.
func (s *Submitter) MaxLineLength() uint64 {
	return s.maxLine
}

// MaxPipelinedOps returns how many sub-operations in a row may be pipelined.
func (s *Submitter) MaxPipelinedOps() int {
	return s.maxPipelined
}

// LastSubmitted returns the work ID of the latest request.
func (s *Submitter) LastSubmitted() uint64 {
	return s.tracker.LastSubmitted()
}

// attach builds a channel on engine whose payload sequence starts at
// payload.
func (s *Submitter) attach(engine rm.EngineInstance, payload uint64) error {
	ch, err := s.channels.
		WithEngine(engine).
		WithInitialPayload(uint32(payload)).
		Build(fmt.Sprintf("%s.Channel", s.name))
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}

	var session *ccsl.Session
	if s.secureAlloc != nil {
		session, err = s.secureAlloc.OpenSecureSession(ch.Handle())
		if err != nil {
			_ = ch.Destroy()
			return fmt.Errorf("%s: open secure session: %w", s.name, err)
		}
	}

	s.ch = ch
	s.session = session
	s.engine.Store(&engine)

	return nil
}

func (s *Submitter) schedOrDefault(
	sched channel.SchedulingContext,
) channel.SchedulingContext {
	if sched == nil {
		return s.defaultSched
	}

	return sched
}

func (s *Submitter) mustBeUsable() error {
	if s.destroyed {
		return fmt.Errorf("%s: destroyed: %w", s.name, status.ErrInvalidState)
	}

	return nil
}

// ValidateRange rejects ranges that are empty or do not fit in m.
func ValidateRange(m *rm.MemDesc, offset, length uint64) error {
	if m == nil {
		return fmt.Errorf("no memory: %w", status.ErrInvalidArgument)
	}

	if offset >= m.Size || length == 0 || length > m.Size-offset {
		return fmt.Errorf("range [0x%x, +0x%x) of 0x%x bytes: %w",
			offset, length, m.Size, status.ErrInvalidArgument)
	}

	return nil
}

// CheckVirtual rejects virtual addressing when the device has no VA space.
func (s *Submitter) CheckVirtual(flags Flags) error {
	if flags.Has(FlagVirtual) && !s.alloc.HasVASpace() {
		return fmt.Errorf("%s: virtual addressing: %w",
			s.name, status.ErrNotSupported)
	}

	return nil
}

// Submit issues the sub-operations of a request in order. Only the last one
// releases the completion semaphore, and the request counts as submitted once
// that one is issued. Unless the request is asynchronous,
// Submit returns once it has completed. A nil sched uses cooperative waits.
func (s *Submitter) Submit(
	ctx context.Context,
	sched channel.SchedulingContext,
	req Request,
) (uint64, error) {
	if len(req.Subs) == 0 {
		log.Panicf("%s: %s request without sub-operations", s.name, req.Kind)
	}

	sched = s.schedOrDefault(sched)

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.mustBeUsable(); err != nil {
		return 0, err
	}

	if s.paused > 0 {
		return 0, fmt.Errorf("%s: submission paused: %w",
			s.name, status.ErrBusyRetry)
	}

	// The payload is taken only once the final sub-operation is issued.
	// Earlier sub-operations never release the semaphore, so a request that
	// fails part way leaves its number to the next one.
	payload := s.tracker.LastSubmitted() + 1
	taskID := sim.GetIDGenerator().Generate()
	tracing.StartTask(taskID, "", s, req.Kind, req.What, req)

	enc := s.encoder(s.ch, s.session, sched)
	pipelined := Pipelining(len(req.Subs), req.Flags.Has(FlagPipelined),
		s.maxPipelined)
	last := len(req.Subs) - 1

	for i, mk := range req.Subs {
		sub := pushbuffer.Sub{
			Payload:   payload,
			Final:     i == last,
			Pipelined: pipelined[i],
		}

		slot, err := s.ch.Submit(ctx, sched, enc,
			func(slot uint32) pushbuffer.WorkDescriptor {
				sub.Slot = slot
				return mk(sub)
			})
		if err != nil {
			tracing.EndTask(taskID, s)
			s.log.WithFields(logrus.Fields{
				"workID": payload,
				"subOp":  i,
			}).WithError(err).Warn("submission failed")

			return 0, err
		}

		tracing.AddTaskStep(taskID, s, "sub-op")
		s.log.WithFields(logrus.Fields{
			"workID": payload,
			"slot":   slot,
		}).Trace("sub-operation submitted")
	}

	if got := s.tracker.NextPayload(); got != payload {
		log.Panicf("%s: payload %d taken while submitting payload %d",
			s.name, got, payload)
	}

	if req.Flags.Has(FlagAsync) {
		s.asyncTasks = append(s.asyncTasks, asyncTask{payload, taskID})
		return payload, nil
	}

	err := s.ch.WaitForPayload(ctx, sched, payload, s.tracker)
	tracing.EndTask(taskID, s)

	if err != nil {
		return 0, err
	}

	s.endAsyncTasks()

	return payload, nil
}

func (s *Submitter) endAsyncTasks() {
	done := 0
	for _, t := range s.asyncTasks {
		if !s.tracker.IsComplete(t.payload) {
			break
		}

		tracing.EndTask(t.id, s)
		done++
	}

	s.asyncTasks = s.asyncTasks[done:]
}

// UpdateProgress reads the completion semaphore and returns the work ID of
// the latest completed request.
func (s *Submitter) UpdateProgress() (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.updateProgress()
}

func (s *Submitter) updateProgress() (uint64, error) {
	if err := s.mustBeUsable(); err != nil {
		return 0, err
	}

	hw, err := s.ch.ReadWorkSemaphore()
	if err != nil {
		return 0, err
	}

	completed := s.tracker.Update(hw)
	s.endAsyncTasks()

	return completed, nil
}

// CheckProgress tells if a request has completed.
func (s *Submitter) CheckProgress(workID uint64) (bool, error) {
	completed, err := s.UpdateProgress()
	if err != nil {
		return false, err
	}

	return workID <= completed, nil
}

// WaitForWork waits until a request has completed.
func (s *Submitter) WaitForWork(
	ctx context.Context,
	sched channel.SchedulingContext,
	workID uint64,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.waitForWork(ctx, s.schedOrDefault(sched), workID)
}

func (s *Submitter) waitForWork(
	ctx context.Context,
	sched channel.SchedulingContext,
	workID uint64,
) error {
	if err := s.mustBeUsable(); err != nil {
		return err
	}

	if workID > s.tracker.LastSubmitted() {
		return fmt.Errorf("%s: work %d was never submitted: %w",
			s.name, workID, status.ErrInvalidArgument)
	}

	err := s.ch.WaitForPayload(ctx, sched, workID, s.tracker)
	if err == nil {
		s.endAsyncTasks()
	}

	return err
}

// Units returns the device units whose interrupts the submitter's requests
// depend on.
func (s *Submitter) Units() []channel.Unit {
	engine := s.Engine()
	unit := channel.Unit{Kind: channel.UnitCE, Instance: engine.ID}

	if engine.Class == methods.HOPPER_SEC2_WORK_LAUNCH_A {
		unit = channel.Unit{Kind: channel.UnitSec2}
	}

	return []channel.Unit{unit, {Kind: channel.UnitHost}}
}

// ServiceInterrupts services the interrupts of the engine and the host
// directly. Callers that hold the device lock use it to make progress.
func (s *Submitter) ServiceInterrupts() {
	if s.servicer == nil {
		return
	}

	s.servicer.ServiceInterrupts(s.Units()...)
}

// InterruptStrategy returns the scheduling context of callers that hold the
// device lock. Without an interrupt servicer it falls back to cooperative
// waits.
func (s *Submitter) InterruptStrategy() channel.SchedulingContext {
	if s.servicer == nil {
		return s.defaultSched
	}

	return channel.ServiceInterruptsStrategy{
		Servicer: s.servicer,
		Units:    s.Units(),
	}
}

// PauseSubmission stops new requests from being issued until a matching
// ResumeSubmission. With waitForDrain, it also waits for the requests
// already issued.
func (s *Submitter) PauseSubmission(
	ctx context.Context,
	sched channel.SchedulingContext,
	waitForDrain bool,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.mustBeUsable(); err != nil {
		return err
	}

	s.paused++

	if !waitForDrain {
		return nil
	}

	err := s.ch.WaitForPayload(ctx, s.schedOrDefault(sched),
		s.tracker.LastSubmitted(), s.tracker)
	if err == nil {
		s.endAsyncTasks()
	}

	return err
}

// ResumeSubmission undoes one PauseSubmission.
func (s *Submitter) ResumeSubmission() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.paused == 0 {
		log.Panicf("%s: resuming submission that is not paused", s.name)
	}

	s.paused--
}

// Paused tells if submission is paused.
func (s *Submitter) Paused() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.paused > 0
}

// SetEngineInstance moves the submitter to another engine instance of the
// same class. Submission must be paused and every request completed.
func (s *Submitter) SetEngineInstance(id uint32) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.mustBeUsable(); err != nil {
		return err
	}

	if s.paused == 0 {
		return fmt.Errorf("%s: switching engine while submitting: %w",
			s.name, status.ErrInvalidState)
	}

	if _, err := s.updateProgress(); err != nil {
		return err
	}

	if s.tracker.Outstanding() > 0 {
		return fmt.Errorf("%s: %d requests outstanding: %w",
			s.name, s.tracker.Outstanding(), status.ErrInvalidState)
	}

	current := s.ch.Engine()

	var next *rm.EngineInstance

	for _, e := range s.alloc.EngineInstances(current.Class) {
		if e.ID == id {
			next = &e
			break
		}
	}

	if next == nil {
		return fmt.Errorf("%s: no engine %d of class 0x%x: %w",
			s.name, id, current.Class, status.ErrInvalidArgument)
	}

	if next.ID == current.ID {
		return nil
	}

	old := s.ch
	if err := s.attach(*next, s.tracker.LastCompleted()); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"from": current.ID,
		"to":   next.ID,
	}).Info("engine switched")

	return old.Destroy()
}

// Destroy frees the channel. The submitter cannot be used afterwards.
// Requests still in flight are abandoned.
func (s *Submitter) Destroy() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.destroyed {
		return nil
	}

	s.destroyed = true

	if n := s.tracker.Outstanding(); n > 0 {
		s.log.WithField("outstanding", n).Warn("destroyed with work in flight")
	}

	return s.ch.Destroy()
}
