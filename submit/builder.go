package submit

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/copyengine/ccsl"
	"github.com/sarchlab/copyengine/channel"
	"github.com/sarchlab/copyengine/config"
	"github.com/sarchlab/copyengine/progress"
	"github.com/sarchlab/copyengine/pushbuffer"
	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/status"
)

// EncoderFactory returns the encoder of a channel for waits that use sched.
type EncoderFactory func(
	ch *channel.Channel,
	session *ccsl.Session,
	sched channel.SchedulingContext,
) pushbuffer.Encoder

// Builder can build submitters.
type Builder struct {
	alloc     rm.Allocator
	log       logrus.FieldLogger
	cfg       config.Config
	engine    rm.EngineInstance
	channel   channel.Builder
	encoder   EncoderFactory
	maxLine   uint64
	secure    bool
	fastScrub bool
	virtual   bool
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	cfg := config.Default()

	return Builder{
		log:     logrus.StandardLogger(),
		cfg:     cfg,
		channel: channel.MakeBuilder(),
		maxLine: cfg.MaxLineLength,
		encoder: func(
			*channel.Channel,
			*ccsl.Session,
			channel.SchedulingContext,
		) pushbuffer.Encoder {
			return pushbuffer.CEEncoder{}
		},
	}
}

// WithAllocator sets the resource manager.
func (b Builder) WithAllocator(a rm.Allocator) Builder {
	b.alloc = a
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.log = l
	return b
}

// WithConfig sets the configuration.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithEngine sets the engine instance to submit to.
func (b Builder) WithEngine(e rm.EngineInstance) Builder {
	b.engine = e
	return b
}

// WithChannel sets the builder of the channel. The allocator, logger, engine
// and the configured channel parameters are applied on top of it.
func (b Builder) WithChannel(cb channel.Builder) Builder {
	b.channel = cb
	return b
}

// WithEncoder sets how method streams are encoded.
func (b Builder) WithEncoder(f EncoderFactory) Builder {
	b.encoder = f
	return b
}

// WithMaxLineLength bounds the bytes of one sub-operation.
func (b Builder) WithMaxLineLength(n uint64) Builder {
	b.maxLine = n
	return b
}

// WithSecure opens the secure session of every channel the submitter
// creates. The allocator must be an rm.SecureAllocator.
func (b Builder) WithSecure(secure bool) Builder {
	b.secure = secure
	return b
}

// WithVirtual makes every request address memory virtually, as if it had
// FlagVirtual.
func (b Builder) WithVirtual(virtual bool) Builder {
	b.virtual = virtual
	return b
}

// WithFastScrub lets memsets that qualify take the memory scrub path.
func (b Builder) WithFastScrub(fastScrub bool) Builder {
	b.fastScrub = fastScrub
	return b
}

func (b Builder) channelBuilder() channel.Builder {
	cb := b.channel.
		WithAllocator(b.alloc).
		WithLogger(b.log).
		WithSlots(b.cfg.Slots).
		WithAperture(b.cfg.Aperture()).
		WithLiteMode(b.cfg.LiteMode).
		WithTimeout(b.cfg.Timeout).
		WithFastScrub(b.fastScrub)

	if b.secure {
		cb = cb.WithSecure(b.cfg.TagSlots)
	}

	return cb
}

// Build creates the channel of the submitter.
func (b Builder) Build(name string) (*Submitter, error) {
	if b.alloc == nil {
		return nil, fmt.Errorf("%s: no allocator: %w",
			name, status.ErrInvalidArgument)
	}

	if b.virtual && !b.alloc.HasVASpace() {
		return nil, fmt.Errorf("%s: virtual addressing: %w",
			name, status.ErrNotSupported)
	}

	if b.maxLine == 0 || b.maxLine%4 != 0 {
		return nil, fmt.Errorf("%s: max line length 0x%x: %w",
			name, b.maxLine, status.ErrInvalidArgument)
	}

	var secureAlloc rm.SecureAllocator
	if b.secure {
		sa, ok := b.alloc.(rm.SecureAllocator)
		if !ok {
			return nil, fmt.Errorf("%s: allocator has no secure sessions: %w",
				name, status.ErrNotSupported)
		}

		secureAlloc = sa
	}

	s := &Submitter{
		name:         name,
		alloc:        b.alloc,
		secureAlloc:  secureAlloc,
		channels:     b.channelBuilder(),
		encoder:      b.encoder,
		maxLine:      b.maxLine,
		maxPipelined: b.cfg.MaxPipelinedOps,
		virtual:      b.virtual,
		defaultSched: channel.CooperativeYieldStrategy{
			Interval: b.cfg.PollInterval,
		},
		tracker: progress.NewTracker(),
	}

	s.log = b.log.WithField("submitter", name)

	if servicer, ok := b.alloc.(channel.InterruptServicer); ok {
		s.servicer = servicer
	}

	if err := s.attach(b.engine, 0); err != nil {
		return nil, err
	}

	return s, nil
}
