package util

import (
	"strings"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupCacheFlags adds the cache engine flags to a command
func SetupCacheFlags(cmd *cobra.Command) {
	key := "shards"
	cmd.PersistentFlags().Int(key, 0, WrapString("Number of shards for the entry map (0 = number of CPUs)"))

	key = "deferred-delete"
	cmd.PersistentFlags().Bool(key, false, WrapString("Keep removals as versioned tombstones until the purge time elapses"))

	key = "tombstone-purge-after"
	cmd.PersistentFlags().Int64(key, 30_000, WrapString("Tombstone lifetime in milliseconds (only with deferred delete)"))

	key = "eager-ttl"
	cmd.PersistentFlags().Bool(key, true, WrapString("Retire expired entries with background sweepers"))

	key = "sweep-interval"
	cmd.PersistentFlags().Int64(key, 100, WrapString("Sweep interval in milliseconds"))

	key = "off-heap"
	cmd.PersistentFlags().Int64(key, 0, WrapString("Off-heap arena size in MB (0 = disabled)"))

	key = "swap-path"
	cmd.PersistentFlags().String(key, "", WrapString("Path of the swap tier database (empty = disabled)"))

	key = "swap-mem"
	cmd.PersistentFlags().Bool(key, false, WrapString("Keep the swap tier in memory instead of on disk"))

	key = "swap-compress"
	cmd.PersistentFlags().Bool(key, false, WrapString("Compress swap records"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("Log level (debug, info, warning, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dgrid")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetCacheConfig reads the engine configuration from viper
func GetCacheConfig() grid.Config {
	cfg := grid.DefaultConfig()
	cfg.Shards = viper.GetInt("shards")
	cfg.DeferredDelete = viper.GetBool("deferred-delete")
	cfg.TombstonePurgeAfter = viper.GetInt64("tombstone-purge-after")
	cfg.EagerTTL = viper.GetBool("eager-ttl")
	cfg.SweepInterval = viper.GetInt64("sweep-interval")
	cfg.OffHeapSize = viper.GetInt64("off-heap") * 1024 * 1024
	cfg.SwapPath = viper.GetString("swap-path")
	cfg.SwapInMemory = viper.GetBool("swap-mem")
	cfg.SwapCompression = viper.GetBool("swap-compress")
	cfg.LogLevel = viper.GetString("log-level")
	return cfg
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
