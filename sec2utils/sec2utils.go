// Package sec2utils issues memsets and copies through SEC2 in confidential
// computing mode. Every method stream is signed with the channel's secure
// session and SEC2 addresses memory virtually.
package sec2utils

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/config"
	"github.com/sarchlab/copyengine/methods"
	"github.com/sarchlab/copyengine/pushbuffer"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/status"
	"github.com/sarchlab/copyengine/submit"
)

// Request flags.
const (
	FlagAsync     = submit.FlagAsync
	FlagPipelined = submit.FlagPipelined
)

// MemsetRequest and MemcopyRequest describe client requests.
type (
	MemsetRequest  = submit.MemsetRequest
	MemcopyRequest = submit.MemcopyRequest
)

// Sec2Utils issues work to SEC2.
type Sec2Utils struct {
	*submit.Submitter
}

// Builder can build Sec2Utils.
type Builder struct {
	alloc rm.Allocator
	cfg   config.Config
	log   logrus.FieldLogger
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg: config.Default(),
		log: logrus.StandardLogger(),
	}
}

// WithAllocator sets the resource manager.
func (b Builder) WithAllocator(a rm.Allocator) Builder {
	b.alloc = a
	return b
}

// WithConfig sets the configuration.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.log = l
	return b
}

// Build opens a secure SEC2 channel.
func (b Builder) Build(name string) (*Sec2Utils, error) {
	if b.alloc == nil {
		return nil, fmt.Errorf("%s: no allocator: %w",
			name, status.ErrInvalidArgument)
	}

	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := SelectEngine(b.alloc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	s, err := submit.MakeBuilder().
		WithAllocator(b.alloc).
		WithLogger(b.log.WithField("engine", "sec2")).
		WithConfig(b.cfg).
		WithEngine(engine).
		WithChannel(channel.MakeBuilder().
			WithBlockSize(pushbuffer.Sec2MethodSizePerBlock)).
		WithEncoder(encoder).
		WithMaxLineLength(b.cfg.Sec2MaxLineLength).
		WithSecure(true).
		WithVirtual(true).
		Build(name)
	if err != nil {
		return nil, err
	}

	return &Sec2Utils{Submitter: s}, nil
}

func encoder(
	ch *channel.Channel,
	session *ccsl.Session,
	sched channel.SchedulingContext,
) pushbuffer.Encoder {
	return pushbuffer.Sec2Encoder{
		Tags:   ch.Tags(sched),
		Signer: session,
	}
}

// SelectEngine returns the first SEC2 instance that is not stubbed.
func SelectEngine(a rm.Allocator) (rm.EngineInstance, error) {
	for _, e := range a.EngineInstances(methods.HOPPER_SEC2_WORK_LAUNCH_A) {
		if !e.Stubbed {
			return e, nil
		}
	}

	return rm.EngineInstance{}, fmt.Errorf("no sec2 engine: %w",
		status.ErrInsufficientResources)
}

// Memset fills memory. SEC2 always stores a 32-bit pattern, so the low byte
// is replicated when the range is not word aligned.
func (u *Sec2Utils) Memset(
	ctx context.Context,
	sched channel.SchedulingContext,
	req MemsetRequest,
) (uint64, error) {
	if req.Offset%4 != 0 || req.Length%4 != 0 {
		req.Pattern = (req.Pattern & 0xff) * 0x01010101
	}

	return u.Submitter.Memset(ctx, sched, req)
}

// Memcopy copies memory.
func (u *Sec2Utils) Memcopy(
	ctx context.Context,
	sched channel.SchedulingContext,
	req MemcopyRequest,
) (uint64, error) {
	return u.Submitter.Memcopy(ctx, sched, req)
}
