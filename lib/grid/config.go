package grid

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Cache configuration struct
// --------------------------------------------------------------------------

// Config holds all configuration parameters for a grid cache instance.
type Config struct {
	// Entry map
	Shards int

	// Removal semantics: with DeferredDelete removals leave tombstones
	// that the purger retires after TombstonePurgeAfter milliseconds.
	DeferredDelete      bool
	TombstonePurgeAfter int64

	// Eager TTL sweeping
	EagerTTL      bool
	SweepInterval int64

	// Off-heap tier: values are placed into an arena of OffHeapSize bytes.
	// 0 disables the tier.
	OffHeapSize int64

	// Swap tier: demoted values go to a LevelDB at SwapPath, or to an
	// in-memory LevelDB when SwapInMemory is set (testing). Both unset
	// disables the tier.
	SwapPath        string
	SwapInMemory    bool
	SwapCompression bool

	// Backing store integration
	ReadThrough  bool
	WriteThrough bool

	// Logging configuration
	LogLevel string
}

// DefaultConfig returns the configuration a standalone cache runs with.
func DefaultConfig() Config {
	return Config{
		Shards:              runtime.NumCPU(),
		DeferredDelete:      false,
		TombstonePurgeAfter: 30_000,
		EagerTTL:            true,
		SweepInterval:       100,
		LogLevel:            "info",
	}
}

// Validate checks the configuration for consistency. Zero values that have
// a sensible default are filled in.
func (c *Config) Validate() error {
	if c.Shards <= 0 {
		c.Shards = runtime.NumCPU()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if _, ok := lookupLogLevel(c.LogLevel); !ok {
		return NewErrorf(RetCInvalidConfig, "invalid log level: %s", c.LogLevel)
	}

	if c.EagerTTL && c.SweepInterval <= 0 {
		return NewError(RetCInvalidConfig, "eager ttl requires a positive sweep interval")
	}
	if c.DeferredDelete && c.TombstonePurgeAfter <= 0 {
		return NewError(RetCInvalidConfig, "deferred delete requires a positive tombstone purge time")
	}
	if c.OffHeapSize < 0 {
		return NewError(RetCInvalidConfig, "off-heap size must not be negative")
	}
	if c.SwapPath != "" && c.SwapInMemory {
		return NewError(RetCInvalidConfig, "swap path and in-memory swap are mutually exclusive")
	}

	return nil
}

// SwapEnabled reports whether the configuration carries a swap tier.
func (c *Config) SwapEnabled() bool {
	return c.SwapPath != "" || c.SwapInMemory
}

// Features returns the feature flags implied by the configuration.
func (c *Config) Features() Feature {
	f := FeatureEagerTTL | FeatureLocks | FeatureEvents
	if !c.EagerTTL {
		f &^= FeatureEagerTTL
	}
	if c.DeferredDelete {
		f |= FeatureDeferredDelete
	}
	if c.SwapEnabled() {
		f |= FeatureSwap
	}
	if c.OffHeapSize > 0 {
		f |= FeatureOffHeap
	}
	if c.ReadThrough {
		f |= FeatureReadThrough
	}
	if c.WriteThrough {
		f |= FeatureWriteThrough
	}
	return f
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Entry map
	addSection("Entry Map")
	addField("Shards", strconv.Itoa(c.Shards))

	// Lifecycle
	addSection("Lifecycle")
	addField("Deferred Delete", fmt.Sprintf("%t", c.DeferredDelete))
	if c.DeferredDelete {
		addField("Tombstone Purge After", fmt.Sprintf("%d ms", c.TombstonePurgeAfter))
	}
	addField("Eager TTL", fmt.Sprintf("%t", c.EagerTTL))
	if c.EagerTTL {
		addField("Sweep Interval", fmt.Sprintf("%d ms", c.SweepInterval))
	}

	// Tiers
	addSection("Value Tiers")
	if c.OffHeapSize > 0 {
		addField("Off-Heap Size", fmt.Sprintf("%d bytes", c.OffHeapSize))
	} else {
		addField("Off-Heap", "disabled")
	}
	switch {
	case c.SwapInMemory:
		addField("Swap", "in-memory")
	case c.SwapPath != "":
		addField("Swap Path", c.SwapPath)
	default:
		addField("Swap", "disabled")
	}
	if c.SwapEnabled() {
		addField("Swap Compression", fmt.Sprintf("%t", c.SwapCompression))
	}

	// Backing store
	addSection("Backing Store")
	addField("Read Through", fmt.Sprintf("%t", c.ReadThrough))
	addField("Write Through", fmt.Sprintf("%t", c.WriteThrough))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
