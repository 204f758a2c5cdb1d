// Package scrub zero-fills freed pages in the background. Work is tracked in
// a bounded ring of work items that callers harvest once the engine has
// completed them.
package scrub

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/copyengine/ceutils"
	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/config"
	"github.com/sarchlab/copyengine/monitoring"
	"github.com/sarchlab/copyengine/ring"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/sec2utils"
	"github.com/sarchlab/copyengine/status"
	"github.com/sarchlab/copyengine/submit"
)

// MaxScrubItems is the number of work items that can be pending at once.
const MaxScrubItems = 4096

// A WorkItem is a region being scrubbed. It completes once the engine has
// completed the work with the same ID.
type WorkItem struct {
	ID   uint64
	Base uint64
	Size uint64
}

// End returns the address after the region.
func (w WorkItem) End() uint64 {
	return w.Base + w.Size
}

// Submitter is what the scrubber needs from the copy engine or the SEC2
// utilities.
type Submitter interface {
	Name() string
	Memset(
		ctx context.Context,
		sched channel.SchedulingContext,
		req submit.MemsetRequest,
	) (uint64, error)
	UpdateProgress() (uint64, error)
	WaitForWork(
		ctx context.Context,
		sched channel.SchedulingContext,
		workID uint64,
	) error
	InterruptStrategy() channel.SchedulingContext
	Destroy() error
}

// Scrubber zero-fills video memory pages.
type Scrubber struct {
	name      string
	log       logrus.FieldLogger
	sub       Submitter
	sched     channel.SchedulingContext
	chunkSize uint64
	bar       *monitoring.ProgressBar

	lock      sync.Mutex
	items     *ring.Ring[WorkItem]
	destroyed bool
}

// Builder can build scrubbers.
type Builder struct {
	alloc   rm.Allocator
	cfg     config.Config
	log     logrus.FieldLogger
	monitor *monitoring.Monitor
	sub     Submitter
	sched   channel.SchedulingContext
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg: config.Default(),
		log: logrus.StandardLogger(),
	}
}

// WithAllocator sets the resource manager of the device to scrub.
func (b Builder) WithAllocator(a rm.Allocator) Builder {
	b.alloc = a
	return b
}

// WithConfig sets the configuration. With Secure set, scrubbing goes through
// SEC2.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.log = l
	return b
}

// WithMonitor reports the scrubbing progress and the ring level to a monitor.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithSubmitter uses an existing submitter instead of creating one. The
// scrubber takes ownership of it.
func (b Builder) WithSubmitter(s Submitter) Builder {
	b.sub = s
	return b
}

// WithSchedulingContext sets how the scrubber waits. By default it services
// interrupts directly.
func (b Builder) WithSchedulingContext(sched channel.SchedulingContext) Builder {
	b.sched = sched
	return b
}

// Build creates a scrubber.
func (b Builder) Build(name string) (*Scrubber, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	sub := b.sub
	if sub == nil {
		var err error

		sub, err = b.buildSubmitter(name)
		if err != nil {
			return nil, err
		}
	}

	s := &Scrubber{
		name:      name,
		log:       b.log.WithField("scrubber", name),
		sub:       sub,
		sched:     b.sched,
		chunkSize: b.cfg.ScrubChunkSize,
		items:     ring.NewRing[WorkItem](name+".Ring", MaxScrubItems),
		bar:       &monitoring.ProgressBar{Name: name},
	}

	if s.sched == nil {
		s.sched = sub.InterruptStrategy()
	}

	if b.monitor != nil {
		s.bar = b.monitor.CreateProgressBar(name, 0)
		b.monitor.RegisterBuffer(s.items)
	}

	return s, nil
}

func (b Builder) buildSubmitter(name string) (Submitter, error) {
	if b.alloc == nil {
		return nil, fmt.Errorf("%s: no allocator: %w",
			name, status.ErrInvalidArgument)
	}

	if b.cfg.Secure {
		return sec2utils.MakeBuilder().
			WithAllocator(b.alloc).
			WithConfig(b.cfg).
			WithLogger(b.log).
			Build(name + ".Sec2Utils")
	}

	return ceutils.MakeBuilder().
		WithAllocator(b.alloc).
		WithConfig(b.cfg).
		WithLogger(b.log).
		Build(name + ".CeUtils")
}

// Name returns the name of the scrubber.
func (s *Scrubber) Name() string {
	return s.name
}

// Submitter returns the submitter the scrubber issues work to.
func (s *Scrubber) Submitter() Submitter {
	return s.sub
}

// Progress returns the progress bar of the scrubbed bytes.
func (s *Scrubber) Progress() *monitoring.ProgressBar {
	return s.bar
}

// Pending returns the number of work items not harvested yet.
func (s *Scrubber) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.items.Size()
}

// Runs merges physically consecutive pages into regions of at most chunkSize
// bytes. Pages are kept in the given order.
func Runs(pages []uint64, pageSize, chunkSize uint64) []WorkItem {
	var runs []WorkItem

	for _, p := range pages {
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.End() == p && last.Size+pageSize <= chunkSize {
				last.Size += pageSize
				continue
			}
		}

		runs = append(runs, WorkItem{Base: p, Size: pageSize})
	}

	return runs
}

// SubmitPages scrubs the pages of pageSize bytes starting at the given
// physical addresses. Items that completed on the way are harvested and
// returned, together with the number of items still pending. When the ring
// is full and nothing can be harvested it fails with
// status.ErrInsufficientResources. The pages submitted before the failure
// stay tracked.
func (s *Scrubber) SubmitPages(
	ctx context.Context,
	pages []uint64,
	pageSize uint64,
) ([]WorkItem, int, error) {
	if pageSize == 0 || pageSize%4 != 0 {
		return nil, 0, fmt.Errorf("%s: page size 0x%x: %w",
			s.name, pageSize, status.ErrInvalidArgument)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.mustBeUsable(); err != nil {
		return nil, 0, err
	}

	var done []WorkItem

	for _, run := range Runs(pages, pageSize, max(pageSize, s.chunkSize)) {
		if s.items.IsFull() {
			harvested, err := s.harvest()
			done = append(done, harvested...)

			if err != nil {
				return done, s.items.Size(), err
			}

			if s.items.IsFull() {
				s.log.WithField("pending", s.items.Size()).
					Warn("scrub ring is full")

				return done, s.items.Size(), fmt.Errorf(
					"%s: %d items pending: %w",
					s.name, s.items.Size(), status.ErrInsufficientResources)
			}
		}

		id, err := s.sub.Memset(ctx, s.sched, submit.MemsetRequest{
			Dst: rm.NewContiguousMemDesc(
				rm.ApertureVidmem, run.Base, run.Size),
			Length: run.Size,
			Flags:  submit.FlagAsync,
		})
		if err != nil {
			return done, s.items.Size(), err
		}

		run.ID = id
		s.items.Push(run)
		s.bar.IncrementTotal(run.Size)
		s.bar.IncrementInProgress(run.Size)

		s.log.WithFields(logrus.Fields{
			"workID": id,
			"base":   fmt.Sprintf("0x%x", run.Base),
			"size":   run.Size,
		}).Debug("scrub submitted")
	}

	harvested, err := s.harvest()
	done = append(done, harvested...)

	return done, s.items.Size(), err
}

// Harvest removes and returns the items that have completed.
func (s *Scrubber) Harvest() ([]WorkItem, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.mustBeUsable(); err != nil {
		return nil, err
	}

	return s.harvest()
}

func (s *Scrubber) harvest() ([]WorkItem, error) {
	if s.items.IsEmpty() {
		return nil, nil
	}

	completed, err := s.sub.UpdateProgress()
	if err != nil {
		return nil, err
	}

	var done []WorkItem

	for {
		item, ok := s.items.Peek()
		if !ok || item.ID > completed {
			break
		}

		s.items.TryPop()
		s.bar.MoveInProgressToFinished(item.Size)
		done = append(done, item)
	}

	return done, nil
}

// CheckAndWaitForSize waits until items covering at least numPages pages of
// pageSize bytes have completed, or until nothing is pending anymore. It
// returns the harvested items. With nothing pending it fails with
// status.ErrNoWorkPending.
func (s *Scrubber) CheckAndWaitForSize(
	ctx context.Context,
	numPages int,
	pageSize uint64,
) ([]WorkItem, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.mustBeUsable(); err != nil {
		return nil, err
	}

	if s.items.IsEmpty() {
		return nil, fmt.Errorf("%s: %w", s.name, status.ErrNoWorkPending)
	}

	want := uint64(numPages) * pageSize

	var (
		done []WorkItem
		got  uint64
	)

	for {
		harvested, err := s.harvest()
		done = append(done, harvested...)

		if err != nil {
			return done, err
		}

		for _, item := range harvested {
			got += item.Size
		}

		if got >= want || s.items.IsEmpty() {
			return done, nil
		}

		next, _ := s.items.Peek()
		if err := s.sub.WaitForWork(ctx, s.sched, next.ID); err != nil {
			return done, err
		}
	}
}

// WaitPages waits until the pending items overlapping any of the pages have
// completed. Pages that are not pending are already scrubbed. The items stay
// in the ring until harvested.
func (s *Scrubber) WaitPages(
	ctx context.Context,
	pages []uint64,
	pageSize uint64,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.mustBeUsable(); err != nil {
		return err
	}

	// Items may overlap when a page is resubmitted, so End does not grow
	// with Base and every pending item is checked.
	var last uint64

	for i := range s.items.Size() {
		item := s.items.At(i)

		for _, p := range pages {
			if item.Base < p+pageSize && p < item.End() {
				last = max(last, item.ID)
				break
			}
		}
	}

	if last == 0 {
		return nil
	}

	return s.sub.WaitForWork(ctx, s.sched, last)
}

// Destroy waits for the pending items and releases the submitter.
func (s *Scrubber) Destroy(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.destroyed {
		return nil
	}

	var waitErr error

	if n := s.items.Size(); n > 0 {
		last := s.items.At(n - 1)
		waitErr = s.sub.WaitForWork(ctx, s.sched, last.ID)

		if waitErr == nil {
			_, waitErr = s.harvest()
		}
	}

	s.destroyed = true

	if waitErr != nil {
		s.log.WithError(waitErr).Warn("pending scrubs did not complete")
	}

	if err := s.sub.Destroy(); err != nil {
		return err
	}

	return waitErr
}

func (s *Scrubber) mustBeUsable() error {
	if s.destroyed {
		return fmt.Errorf("%s: destroyed: %w", s.name, status.ErrInvalidState)
	}

	return nil
}
