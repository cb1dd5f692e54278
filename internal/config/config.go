// Package config loads heapkit settings from TOML and turns them into
// providers and allocator options.
package config

import (
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/mmap"
)

// Provider names accepted in [heap] provider.
const (
	ProviderMmap = "mmap"
	ProviderGo   = "go"
)

// Stress modes accepted in [stress] mode.
const (
	ModeHeap = "heap"
	ModePool = "pool"
)

// Config is the whole configuration file.
type Config struct {
	Heap    Heap    `toml:"heap"`
	Log     Log     `toml:"log"`
	Metrics Metrics `toml:"metrics"`
	Stress  Stress  `toml:"stress"`
}

// Heap selects the provider and allocator behavior.
type Heap struct {
	Provider            string `toml:"provider"`
	MaxBytes            uint64 `toml:"max_bytes"`
	BucketPagesFromTree bool   `toml:"bucket_pages_from_tree"`
	Decommit            bool   `toml:"decommit"`
}

// Log mirrors logger.Options.
type Log struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max_size"`
	MaxDays    int    `toml:"max_days"`
	MaxBackups int    `toml:"max_backups"`
}

// Metrics configures the Prometheus endpoint of heapctl serve.
type Metrics struct {
	Namespace string `toml:"namespace"`
	Addr      string `toml:"addr"`
}

// Stress configures the heapctl workload.
type Stress struct {
	Workers   int     `toml:"workers"`
	Ops       int     `toml:"ops"`
	MinSize   int     `toml:"min_size"`
	MaxSize   int     `toml:"max_size"`
	MaxLive   int     `toml:"max_live"`
	CrossFree float64 `toml:"cross_free"`
	Mode      string  `toml:"mode"`
	Seed      int64   `toml:"seed"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Heap: Heap{
			Provider: ProviderMmap,
			Decommit: true,
		},
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSize:    64,
			MaxDays:    7,
			MaxBackups: 4,
		},
		Metrics: Metrics{
			Namespace: "heapkit",
			Addr:      ":9464",
		},
		Stress: Stress{
			Workers:   8,
			Ops:       100000,
			MinSize:   1,
			MaxSize:   4096,
			MaxLive:   1024,
			CrossFree: 0.1,
			Mode:      ModeHeap,
			Seed:      1,
		},
	}
}

// Load reads path over the defaults. Keys the configuration does not know
// are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "config: load %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Newf("config: %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config: %s", path)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Heap.Provider {
	case ProviderMmap:
		if !mmap.Supported {
			return errors.New("config: heap.provider \"mmap\" is not supported on this platform")
		}
	case ProviderGo:
	default:
		return errors.Newf("config: heap.provider %q: want %q or %q", c.Heap.Provider, ProviderMmap, ProviderGo)
	}
	if _, err := logger.New(logger.Options{Level: c.Log.Level, Format: c.Log.Format}); err != nil {
		return errors.Wrap(err, "config: log")
	}
	if c.Log.MaxSize < 0 || c.Log.MaxDays < 0 || c.Log.MaxBackups < 0 {
		return errors.New("config: log rotation settings must not be negative")
	}

	s := c.Stress
	switch {
	case s.Workers < 1:
		return errors.Newf("config: stress.workers %d: want at least 1", s.Workers)
	case s.Ops < 0:
		return errors.Newf("config: stress.ops %d: must not be negative", s.Ops)
	case s.MinSize < 1 || s.MaxSize < s.MinSize:
		return errors.Newf("config: stress size range [%d, %d] is empty", s.MinSize, s.MaxSize)
	case s.MaxLive < 1:
		return errors.Newf("config: stress.max_live %d: want at least 1", s.MaxLive)
	case s.CrossFree < 0 || s.CrossFree > 1:
		return errors.Newf("config: stress.cross_free %g: want a fraction in [0, 1]", s.CrossFree)
	}
	switch s.Mode {
	case ModeHeap:
	case ModePool:
		if s.MaxSize > heap.MaxSmallAllocation {
			return errors.Newf("config: stress.max_size %d exceeds %d in pool mode", s.MaxSize, heap.MaxSmallAllocation)
		}
	default:
		return errors.Newf("config: stress.mode %q: want %q or %q", s.Mode, ModeHeap, ModePool)
	}
	return nil
}

// Provider builds the configured provider.
func (c *Config) Provider() provider.Provider {
	var p provider.Provider
	if c.Heap.Provider == ProviderGo {
		p = provider.NewGoHeap()
	} else {
		p = provider.NewMmap()
	}
	if c.Heap.MaxBytes > 0 {
		p = provider.NewLimited(p, uintptr(c.Heap.MaxBytes))
	}
	return p
}

// HeapOptions returns allocator options over p.
func (c *Config) HeapOptions(p provider.Provider) *heap.Options {
	return &heap.Options{
		Provider:            p,
		BucketPagesFromTree: c.Heap.BucketPagesFromTree,
		Decommit:            c.Heap.Decommit,
	}
}

// LogOptions returns the logger settings.
func (c *Config) LogOptions() logger.Options {
	return logger.Options{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Filename:   c.Log.Filename,
		MaxSize:    c.Log.MaxSize,
		MaxDays:    c.Log.MaxDays,
		MaxBackups: c.Log.MaxBackups,
	}
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return errors.Wrap(err, "config: encode")
	}
	return nil
}
