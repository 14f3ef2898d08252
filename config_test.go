package valen

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/valen/model/mem"
	"github.com/viant/valen/service/messaging"
)

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		description string
		mutate      func(c *Config)
		expectErr   bool
	}{
		{description: "defaults", mutate: func(c *Config) {}},
		{description: "no memory", mutate: func(c *Config) { c.Memory.TotalBytes = 0 }, expectErr: true},
		{description: "misaligned reservation", mutate: func(c *Config) { c.Memory.ReservedBelow = 0x1001 }, expectErr: true},
		{description: "empty region", mutate: func(c *Config) { c.Memory.Regions = []mem.Region{{Base: 0x200000}} }, expectErr: true},
		{description: "zero quota", mutate: func(c *Config) { c.Scheduler.Quota = 0 }, expectErr: true},
		{description: "tiny stack", mutate: func(c *Config) { c.Scheduler.StackSize = 8 }, expectErr: true},
		{description: "timer too slow", mutate: func(c *Config) { c.Timer.Hz = 10 }, expectErr: true},
		{description: "slow timer disabled", mutate: func(c *Config) { c.Timer.Hz = 10; c.Timer.Enabled = false }},
		{description: "fs events without url", mutate: func(c *Config) { c.Events.Vendor = messaging.VendorFS }, expectErr: true},
		{description: "unknown vendor", mutate: func(c *Config) { c.Events.Vendor = "kafka" }, expectErr: true},
		{description: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, expectErr: true},
		{description: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, expectErr: true},
		{description: "misaligned heap", mutate: func(c *Config) { c.Heap.Base++ }, expectErr: true},
		{description: "heap window wraps", mutate: func(c *Config) { c.Heap.MaxSize = math.MaxUint64 - c.Heap.Base + mem.PageSize }, expectErr: true},
		{description: "heap window ends at the top", mutate: func(c *Config) { c.Heap.MaxSize = math.MaxUint64 - c.Heap.Base }},
	}
	for _, tc := range testCases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		err := cfg.Validate()
		if tc.expectErr {
			assert.Error(t, err, tc.description)
			continue
		}
		assert.NoError(t, err, tc.description)
	}
	var nilConfig *Config
	assert.NoError(t, nilConfig.Validate())
}

func TestConfig_Regions(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []mem.Region{{Base: 0x200000, Length: 62 << 20, Type: mem.RegionAvailable}}, cfg.Regions())

	cfg.Memory.TotalBytes = 1 << 20
	assert.Empty(t, cfg.Regions())

	explicit := []mem.Region{{Base: 0x100000, Length: 0x100000, Type: mem.RegionReserved}}
	cfg.Memory.Regions = explicit
	assert.Equal(t, explicit, cfg.Regions())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("VALEN_TEST_HZ", "100")
	URL := filepath.Join(t.TempDir(), "kernel.yaml")
	require.NoError(t, os.WriteFile(URL, []byte(`
memory:
  totalBytes: 33554432
  regions:
    - base: 0x200000
      length: 0x1e00000
      type: available
    - base: 0xf00000
      length: 0x100000
      type: reserved
scheduler:
  quota: 10
timer:
  hz: ${env.VALEN_TEST_HZ}
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := LoadConfig(context.Background(), afs.New(), URL)
	require.NoError(t, err)
	assert.EqualValues(t, 32<<20, cfg.Memory.TotalBytes)
	require.Len(t, cfg.Memory.Regions, 2)
	assert.Equal(t, mem.RegionReserved, cfg.Memory.Regions[1].Type)
	assert.Equal(t, 10, cfg.Scheduler.Quota)
	assert.EqualValues(t, 100, cfg.Timer.Hz)
	assert.True(t, cfg.Timer.Enabled, "defaults survive a partial file")
	assert.EqualValues(t, mem.ReservedLow, cfg.Memory.ReservedBelow)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, os.WriteFile(URL, []byte("scheduler:\n  quota: -1\n"), 0o644))
	_, err = LoadConfig(context.Background(), nil, URL)
	assert.Error(t, err)

	_, err = LoadConfig(context.Background(), nil, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
