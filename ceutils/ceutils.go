// Package ceutils issues memsets and copies on a copy engine, and in
// confidential computing mode encrypted copies.
package ceutils

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
	FlagVirtual   = submit.FlagVirtual
	FlagPipelined = submit.FlagPipelined
)

// MemsetRequest and MemcopyRequest describe client requests.
type (
	MemsetRequest  = submit.MemsetRequest
	MemcopyRequest = submit.MemcopyRequest
)

// SecureMemcopyRequest is a copy that encrypts or decrypts on the way. The
// tag of sub-operation i lives at TagOffset+16*i of Tags. A decryption uses
// the IVs starting at IV, one per sub-operation.
type SecureMemcopyRequest struct {
	MemcopyRequest

	Decrypt   bool
	IV        ccsl.IV
	Tags      *rm.MemDesc
	TagOffset uint64
}

// CeUtils issues work to one copy engine.
type CeUtils struct {
	*submit.Submitter
}

// Builder can build CeUtils.
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

// Build selects a copy engine and creates a channel on it.
func (b Builder) Build(name string) (*CeUtils, error) {
	if b.alloc == nil {
		return nil, fmt.Errorf("%s: no allocator: %w",
			name, status.ErrInvalidArgument)
	}

	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := SelectEngine(b.alloc, b.cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if b.cfg.FastScrubber && !methods.SupportsFastScrub(engine.Class) {
		return nil, fmt.Errorf("%s: fast scrubber on class 0x%x: %w",
			name, engine.Class, status.ErrNotSupported)
	}

	if b.cfg.Secure && !methods.SupportsSecureCopy(engine.Class) {
		return nil, fmt.Errorf("%s: secure copy on class 0x%x: %w",
			name, engine.Class, status.ErrNotSupported)
	}

	s, err := submit.MakeBuilder().
		WithAllocator(b.alloc).
		WithLogger(b.log.WithField("engine", engine.ID)).
		WithConfig(b.cfg).
		WithEngine(engine).
		WithChannel(channel.MakeBuilder().
			WithBlockSize(pushbuffer.CEMethodSizePerBlock)).
		WithMaxLineLength(b.cfg.MaxLineLength).
		WithSecure(b.cfg.Secure).
		WithFastScrub(b.cfg.FastScrubber).
		WithVirtual(b.cfg.Virtual).
		Build(name)
	if err != nil {
		return nil, err
	}

	return &CeUtils{Submitter: s}, nil
}

// SelectEngine picks the copy engine a CeUtils submits to. The newest class
// present on the device is used. A forced instance must exist. Otherwise the
// first instance of the configured partition that is not stubbed wins.
func SelectEngine(a rm.Allocator, cfg config.Config) (rm.EngineInstance, error) {
	for i := len(methods.CEClasses) - 1; i >= 0; i-- {
		instances := a.EngineInstances(methods.CEClasses[i])
		if len(instances) == 0 {
			continue
		}

		for _, e := range instances {
			if cfg.ForceCE && e.ID == cfg.CEID {
				return e, nil
			}

			if !cfg.ForceCE && !e.Stubbed && e.Partition == cfg.Partition {
				return e, nil
			}
		}

		break
	}

	if cfg.ForceCE {
		return rm.EngineInstance{}, fmt.Errorf("no copy engine %d: %w",
			cfg.CEID, status.ErrInsufficientResources)
	}

	return rm.EngineInstance{}, fmt.Errorf(
		"no copy engine in partition %d: %w",
		cfg.Partition, status.ErrInsufficientResources)
}

// Memset fills memory. A nil sched uses cooperative waits.
func (c *CeUtils) Memset(
	ctx context.Context,
	sched channel.SchedulingContext,
	req MemsetRequest,
) (uint64, error) {
	return c.Submitter.Memset(ctx, sched, req)
}

// Memcopy copies memory. A nil sched uses cooperative waits.
func (c *CeUtils) Memcopy(
	ctx context.Context,
	sched channel.SchedulingContext,
	req MemcopyRequest,
) (uint64, error) {
	return c.Submitter.Memcopy(ctx, sched, req)
}

// SecureMemcopy copies memory through the secure session of the channel.
// It returns the work ID and the IV of the first sub-operation. An
// encryption reserves fresh IVs from the session.
func (c *CeUtils) SecureMemcopy(
	ctx context.Context,
	sched channel.SchedulingContext,
	req SecureMemcopyRequest,
) (uint64, ccsl.IV, error) {
	session := c.Session()
	if session == nil {
		return 0, ccsl.IV{}, fmt.Errorf("%s: no secure session: %w",
			c.Name(), status.ErrNotSupported)
	}

	chunks, virtual, err := c.SplitCopy(req.MemcopyRequest)
	if err != nil {
		return 0, ccsl.IV{}, err
	}

	tagBytes := uint64(len(chunks)) * ccsl.TagSize
	if req.TagOffset%ccsl.TagSize != 0 {
		return 0, ccsl.IV{}, fmt.Errorf("%s: tag offset 0x%x: %w",
			c.Name(), req.TagOffset, status.ErrInvalidArgument)
	}

	if err := submit.ValidateRange(req.Tags, req.TagOffset, tagBytes); err != nil {
		return 0, ccsl.IV{}, fmt.Errorf("%s: tags: %w", c.Name(), err)
	}

	iv := req.IV
	if !req.Decrypt {
		iv = session.ReserveIVs(uint64(len(chunks)))
	}

	subs := make([]submit.SubOp, len(chunks))

	for i, chunk := range chunks {
		tagOffset := req.TagOffset + uint64(i)*ccsl.TagSize
		tagAddr := rm.IdentityVA(req.Tags.Aperture, req.Tags.PhysAddr(tagOffset))

		subs[i] = func(sub pushbuffer.Sub) pushbuffer.WorkDescriptor {
			return pushbuffer.SecureCopy{
				Sub:         sub,
				Src:         submit.Addr(req.Src, chunk.SrcOffset, virtual),
				Dst:         submit.Addr(req.Dst, chunk.DstOffset, virtual),
				Length:      chunk.Length,
				Decrypt:     req.Decrypt,
				IV:          iv.Add(uint64(i)),
				AuthTagAddr: tagAddr,
			}
		}
	}

	kind := "encrypt"
	if req.Decrypt {
		kind = "decrypt"
	}

	workID, err := c.Submit(ctx, sched, submit.Request{
		Kind:  kind,
		What:  req.Src.Aperture.String() + "->" + req.Dst.Aperture.String(),
		Flags: req.Flags,
		Subs:  subs,
	})

	return workID, iv, err
}
