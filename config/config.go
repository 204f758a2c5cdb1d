// Package config holds the tunables of channel submission. A Config is
// resolved once, when a submitter is built, and never read from global state
// afterwards.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/copyengine/rm"
	"github.com/sarchlab/copyengine/status"
)

// EnvPrefix prefixes the environment variables that override the
// configuration.
const EnvPrefix = "CESCRUB_"

// Config holds the tunables of submitters and the scrubber.
type Config struct {
	// Slots is the number of pushbuffer slots and GPFIFO entries.
	Slots uint32 `yaml:"slots"`

	// Timeout bounds every wait on the hardware.
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval is the back off of cooperative waits.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxLineLength bounds the bytes of one copy engine sub-operation.
	MaxLineLength uint64 `yaml:"max_line_length"`

	// Sec2MaxLineLength bounds the bytes of one SEC2 sub-operation.
	Sec2MaxLineLength uint64 `yaml:"sec2_max_line_length"`

	// TagSlots is the number of slots of each tag ring of secure channels.
	TagSlots uint32 `yaml:"tag_slots"`

	// MaxPipelinedOps is how many sub-operations in a row may be pipelined.
	// The next one is issued non-pipelined. Zero means no limit.
	MaxPipelinedOps int `yaml:"max_pipelined_ops"`

	// ForceCE pins the copy engine to CEID.
	ForceCE bool   `yaml:"force_ce"`
	CEID    uint32 `yaml:"ce_id"`

	// Partition restricts automatic engine selection.
	Partition uint32 `yaml:"partition"`

	// FastScrubber lets qualifying memsets use the memory scrub path.
	FastScrubber bool `yaml:"fast_scrubber"`

	// Virtual makes the scrubber address memory virtually.
	Virtual bool `yaml:"virtual"`

	// LiteMode asks the resource manager to ring doorbells.
	LiteMode bool `yaml:"lite_mode"`

	// ChannelAperture is where channel buffers live, "sysmem" or "vidmem".
	ChannelAperture string `yaml:"channel_aperture"`

	// ScrubChunkSize bounds the bytes merged into one scrub work item.
	ScrubChunkSize uint64 `yaml:"scrub_chunk_size"`

	// Secure turns on confidential computing: the scrubber goes through
	// SEC2 and copy engines can encrypt.
	Secure bool `yaml:"secure"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Slots:             128,
		Timeout:           4 * time.Second,
		MaxLineLength:     1 << 31,
		Sec2MaxLineLength: 1 << 20,
		TagSlots:          64,
		MaxPipelinedOps:   8,
		FastScrubber:      true,
		ChannelAperture:   "sysmem",
		ScrubChunkSize:    2 << 20,
		LogLevel:          "info",
	}
}

// Aperture returns the aperture of channel buffers.
func (c Config) Aperture() rm.Aperture {
	if c.ChannelAperture == "vidmem" {
		return rm.ApertureVidmem
	}

	return rm.ApertureSysmem
}

// Validate rejects inconsistent values.
func (c Config) Validate() error {
	var errs []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Slots >= 2, "slots %d, need at least 2", c.Slots)
	check(c.Timeout > 0, "timeout must be positive")
	check(c.PollInterval >= 0, "poll interval must not be negative")
	check(c.MaxLineLength > 0 && c.MaxLineLength%4 == 0 &&
		c.MaxLineLength <= 1<<31,
		"max line length 0x%x is not a positive multiple of 4", c.MaxLineLength)
	check(c.Sec2MaxLineLength > 0 && c.Sec2MaxLineLength%4 == 0 &&
		c.Sec2MaxLineLength <= 1<<31,
		"sec2 max line length 0x%x is not a positive multiple of 4",
		c.Sec2MaxLineLength)
	check(!c.Secure || c.TagSlots >= 2,
		"tag slots %d, need at least 2", c.TagSlots)
	check(c.MaxPipelinedOps >= 0, "max pipelined ops must not be negative")
	check(c.ChannelAperture == "sysmem" || c.ChannelAperture == "vidmem",
		"unknown channel aperture %q", c.ChannelAperture)
	check(c.ScrubChunkSize > 0 && c.ScrubChunkSize%rm.PageSize == 0,
		"scrub chunk size 0x%x is not a multiple of the page size",
		c.ScrubChunkSize)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w: %w", status.ErrInvalidArgument,
			errors.Join(errs...))
	}

	return nil
}

// Load starts from the defaults and applies, in order, the YAML file at path
// if path is not empty, a .env file in the working directory if there is
// one, and the CESCRUB_* environment variables. The result is validated.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("config: %w", err)
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&c); err != nil {
			return c, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("config: .env: %w", err)
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}

	return c, c.Validate()
}

type envSetter func(c *Config, v string) error

func uintSetter(f func(c *Config) *uint64) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return err
		}

		*f(c) = n

		return nil
	}
}

func uint32Setter(f func(c *Config) *uint32) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return err
		}

		*f(c) = uint32(n)

		return nil
	}
}

func boolSetter(f func(c *Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}

		*f(c) = b

		return nil
	}
}

func durationSetter(f func(c *Config) *time.Duration) envSetter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}

		*f(c) = d

		return nil
	}
}

func stringSetter(f func(c *Config) *string) envSetter {
	return func(c *Config, v string) error {
		*f(c) = v
		return nil
	}
}

var envSetters = map[string]envSetter{
	"SLOTS":         uint32Setter(func(c *Config) *uint32 { return &c.Slots }),
	"TIMEOUT":       durationSetter(func(c *Config) *time.Duration { return &c.Timeout }),
	"POLL_INTERVAL": durationSetter(func(c *Config) *time.Duration { return &c.PollInterval }),
	"MAX_LINE_LENGTH": uintSetter(func(c *Config) *uint64 {
		return &c.MaxLineLength
	}),
	"SEC2_MAX_LINE_LENGTH": uintSetter(func(c *Config) *uint64 {
		return &c.Sec2MaxLineLength
	}),
	"TAG_SLOTS": uint32Setter(func(c *Config) *uint32 { return &c.TagSlots }),
	"MAX_PIPELINED_OPS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.MaxPipelinedOps = n

		return err
	},
	"FORCE_CE":         boolSetter(func(c *Config) *bool { return &c.ForceCE }),
	"CE_ID":            uint32Setter(func(c *Config) *uint32 { return &c.CEID }),
	"PARTITION":        uint32Setter(func(c *Config) *uint32 { return &c.Partition }),
	"FAST_SCRUBBER":    boolSetter(func(c *Config) *bool { return &c.FastScrubber }),
	"VIRTUAL":          boolSetter(func(c *Config) *bool { return &c.Virtual }),
	"LITE_MODE":        boolSetter(func(c *Config) *bool { return &c.LiteMode }),
	"CHANNEL_APERTURE": stringSetter(func(c *Config) *string { return &c.ChannelAperture }),
	"SCRUB_CHUNK_SIZE": uintSetter(func(c *Config) *uint64 { return &c.ScrubChunkSize }),
	"SECURE":           boolSetter(func(c *Config) *bool { return &c.Secure }),
	"LOG_LEVEL":        stringSetter(func(c *Config) *string { return &c.LogLevel }),
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for name, set := range envSetters {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}

		if err := set(c, v); err != nil {
			return fmt.Errorf("config: %s%s=%q: %w: %w",
				EnvPrefix, name, v, status.ErrInvalidArgument, err)
		}
	}

	return nil
}
