package valen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/valen/internal/expr"
	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/service/heap"
	"github.com/viant/valen/service/messaging"
	"github.com/viant/valen/service/paging"
	"github.com/viant/valen/service/scheduler"
	"github.com/viant/valen/service/task"
	"github.com/viant/valen/service/timer"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable kernel configuration. Zero sections are filled
// with package defaults by DefaultConfig.
type Config struct {
	Memory    MemoryConfig    `json:"memory" yaml:"memory"`
	Paging    PagingConfig    `json:"paging" yaml:"paging"`
	Heap      HeapConfig      `json:"heap" yaml:"heap"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Timer     TimerConfig     `json:"timer" yaml:"timer"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// MemoryConfig describes physical memory and the boot memory map.
type MemoryConfig struct {
	TotalBytes    uint64       `json:"totalBytes" yaml:"totalBytes"`
	BitmapAddr    uint64       `json:"bitmapAddr" yaml:"bitmapAddr"`
	ReservedBelow uint64       `json:"reservedBelow" yaml:"reservedBelow"`
	Regions       []mem.Region `json:"regions,omitempty" yaml:"regions,omitempty"`
}

// PagingConfig configures the address-space mapper.
type PagingConfig struct {
	KernelSize uint64 `json:"kernelSize" yaml:"kernelSize"`
	AllocBase  uint64 `json:"allocBase" yaml:"allocBase"`
}

// HeapConfig configures the kernel heap window.
type HeapConfig struct {
	Base      uint64 `json:"base" yaml:"base"`
	MaxSize   uint64 `json:"maxSize" yaml:"maxSize"`
	GrowPages int    `json:"growPages" yaml:"growPages"`
}

// SchedulerConfig configures task scheduling.
type SchedulerConfig struct {
	Quota     int    `json:"quota" yaml:"quota"`
	StackSize uint64 `json:"stackSize" yaml:"stackSize"`
}

// TimerConfig configures the programmable interval timer.
type TimerConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Hz      uint32 `json:"hz" yaml:"hz"`
}

// EventsConfig configures the kernel event queue.
type EventsConfig struct {
	Vendor      messaging.Vendor `json:"vendor" yaml:"vendor"`
	Buffer      int              `json:"buffer" yaml:"buffer"`
	JournalSize int              `json:"journalSize" yaml:"journalSize"`
	BaseURL     string           `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	Follow      bool             `json:"follow" yaml:"follow"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	Output      string `json:"output,omitempty" yaml:"output,omitempty"`
}

// LogConfig configures the kernel logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the configuration of a 64MiB machine with the timer
// at 50Hz.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			TotalBytes:    64 << 20,
			BitmapAddr:    uint64(mem.KernelVirtOffset + 0x100000),
			ReservedBelow: uint64(mem.ReservedLow),
		},
		Paging: PagingConfig{
			KernelSize: paging.DefaultKernelSize,
			AllocBase:  uint64(paging.DefaultAllocBase),
		},
		Heap: HeapConfig{
			Base:      uint64(heap.DefaultBase),
			MaxSize:   heap.DefaultMaxSize,
			GrowPages: heap.DefaultGrowPages,
		},
		Scheduler: SchedulerConfig{
			Quota:     scheduler.DefaultQuota,
			StackSize: task.DefaultStackSize,
		},
		Timer: TimerConfig{
			Enabled: true,
			Hz:      50,
		},
		Events: EventsConfig{
			Vendor:      messaging.VendorMemory,
			Buffer:      256,
			JournalSize: 128,
			Follow:      true,
		},
		Tracing: TracingConfig{ServiceName: "valen"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Validate returns aggregated errors describing invalid settings, or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Memory.TotalBytes < mem.PageSize {
		errs = append(errs, fmt.Errorf("memory.totalBytes must be at least one page"))
	}
	if c.Memory.ReservedBelow%mem.PageSize != 0 {
		errs = append(errs, fmt.Errorf("memory.reservedBelow must be page aligned"))
	}
	for i, region := range c.Memory.Regions {
		if region.Length == 0 {
			errs = append(errs, fmt.Errorf("memory.regions[%d].length must be > 0", i))
		}
	}
	if c.Heap.Base%mem.PageSize != 0 {
		errs = append(errs, fmt.Errorf("heap.base must be page aligned"))
	}
	if c.Heap.MaxSize == 0 {
		errs = append(errs, fmt.Errorf("heap.maxSize must be > 0"))
	}
	if c.Heap.MaxSize > math.MaxUint64-c.Heap.Base {
		errs = append(errs, fmt.Errorf("heap window %#x+%#x overflows the address space", c.Heap.Base, c.Heap.MaxSize))
	}
	if c.Heap.GrowPages <= 0 {
		errs = append(errs, fmt.Errorf("heap.growPages must be > 0"))
	}
	if c.Scheduler.Quota <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.quota must be > 0"))
	}
	if c.Scheduler.StackSize < task.StackAlignment {
		errs = append(errs, fmt.Errorf("scheduler.stackSize must be at least %d", task.StackAlignment))
	}
	if c.Timer.Enabled {
		if _, err := timer.DivisorFor(c.Timer.Hz); err != nil {
			errs = append(errs, fmt.Errorf("timer.hz: %w", err))
		}
	}
	switch c.Events.Vendor {
	case "", messaging.VendorMemory:
	case messaging.VendorFS:
		if c.Events.BaseURL == "" {
			errs = append(errs, fmt.Errorf("events.baseURL is required for vendor %s", c.Events.Vendor))
		}
	default:
		errs = append(errs, fmt.Errorf("events.vendor %q is not supported", c.Events.Vendor))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not supported", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Regions returns the boot memory map: the configured regions, or a single
// available region covering memory above the reservation threshold.
func (c *Config) Regions() []mem.Region {
	if len(c.Memory.Regions) > 0 {
		return c.Memory.Regions
	}
	if c.Memory.TotalBytes <= c.Memory.ReservedBelow {
		return nil
	}
	return []mem.Region{{
		Base:   c.Memory.ReservedBelow,
		Length: c.Memory.TotalBytes - c.Memory.ReservedBelow,
		Type:   mem.RegionAvailable,
	}}
}

// LoadConfig reads a YAML configuration from URL on top of DefaultConfig.
// ${env.KEY} references are expanded before decoding.
func LoadConfig(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	if fs == nil {
		fs = afs.New()
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal([]byte(expr.ExpandEnv(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	return ret, nil
}

// NewLogger builds the logger described by the log section.
func (c *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(w, options)
	} else {
		handler = slog.NewTextHandler(w, options)
	}
	return slog.New(handler).With("module", "kernel")
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q is not supported", level)
}
