package bench

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dGrid/cmd/util"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/cache"
	"github.com/ValentinKolb/dGrid/metrics/vm"
	vmmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd is the load testing command for the cache engine
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Load testing tool for the dGrid cache engine",
		Long:    "",
		RunE:    run,
		PreRunE: processBenchConfig,
	}
	benchKeyPrefix        = "__bench"
	benchValueSize        = 64
	benchLargeValueSizeKB = 100
	benchNumThreads       = 10
	benchKeySpread        = 100
	benchTTLMillis        = int64(60_000)
	benchSkip             = make([]string, 0)
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// engine flags
	util.SetupCacheFlags(BenchCmd)

	// benchmark flags
	key := "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "value-size"
	BenchCmd.Flags().Int(key, 64, util.WrapString("Value size in bytes for the standard tests"))
	key = "large-value-size"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "ttl"
	BenchCmd.Flags().Int64(key, 60_000, util.WrapString("TTL in milliseconds for the put-ttl test"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "prom"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to dump the engine counters in Prometheus text format"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchValueSize = viper.GetInt("value-size")
	benchLargeValueSizeKB = viper.GetInt("large-value-size")
	benchKeySpread = viper.GetInt("keys")
	benchNumThreads = viper.GetInt("threads")
	benchTTLMillis = viper.GetInt64("ttl")
	if skip := viper.GetString("skip"); skip != "" {
		benchSkip = strings.Split(skip, ",")
	}

	return nil
}

// benchResult pairs the wall clock result of a benchmark with the latency
// distribution sampled during its run.
type benchResult struct {
	res   testing.BenchmarkResult
	timer gometrics.Timer
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Load testing tool for the dGrid cache engine")

	cfg := util.GetCacheConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	grid.InitLoggers(cfg)

	// The engine reports its counters into the default VictoriaMetrics
	// set, so they can be dumped after the run with --prom.
	c, err := cache.New(cfg, &cache.Options{Metrics: vm.New(nil, "dgrid_bench")})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(cfg.String())
	fmt.Printf("Threads: %d, Keys: %d, ValueSize: %d bytes\n", benchNumThreads, benchKeySpread, benchValueSize)
	fmt.Println()

	fmt.Println("starting benchmarks...")

	value := make([]byte, benchValueSize)

	// Create results map
	results := make(map[string]benchResult)

	runBenchmark := func(name string, fn func(b *testing.B, timer gometrics.Timer)) {
		timer := gometrics.NewTimer()
		res := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}
			fn(b, timer)
		})
		results[name] = benchResult{res: res, timer: timer}
		printResult(name, results[name])
	}

	runBenchmark("put", func(b *testing.B, timer gometrics.Timer) {
		// prepare keys
		getKey, iter := getKeys("put")

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := c.Remove(ctx, k); err != nil {
					log.Printf("(put) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := c.Put(ctx, getKey(counter), value, grid.TTLEternal); err != nil {
					log.Printf("(put) - error putting key: %v\n", err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})

	runBenchmark("put-large", func(b *testing.B, timer gometrics.Timer) {
		// prepare large value
		largeValue := make([]byte, benchLargeValueSizeKB*1024)

		// prepare keys
		getKey, iter := getKeys("put-large")

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := c.Remove(ctx, k); err != nil {
					log.Printf("(put-large) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := c.Put(ctx, getKey(counter), largeValue, grid.TTLEternal); err != nil {
					log.Printf("(put-large) - error putting key: %v\n", err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})

	runBenchmark("put-ttl", func(b *testing.B, timer gometrics.Timer) {
		// prepare keys
		getKey, iter := getKeys("put-ttl")

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := c.Remove(ctx, k); err != nil {
					log.Printf("(put-ttl) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := c.Put(ctx, getKey(counter), value, benchTTLMillis); err != nil {
					log.Printf("(put-ttl) - error putting key: %v\n", err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})

	runBenchmark("get", func(b *testing.B, timer gometrics.Timer) {
		// prepare keys
		getKey, iter := getKeys("get")

		// set keys
		iter(func(k string) {
			if err := c.Put(ctx, k, value, grid.TTLEternal); err != nil {
				log.Printf("(get) - error putting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := c.Remove(ctx, k); err != nil {
					log.Printf("(get) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if _, _, err := c.Get(ctx, getKey(counter)); err != nil {
					log.Printf("(get) - error getting key: %v\n", err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})

	runBenchmark("get-missing", func(b *testing.B, timer gometrics.Timer) {
		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := fmt.Sprintf("%s-missing-%d", benchKeyPrefix, counter%benchKeySpread)
				start := time.Now()
				if _, _, err := c.Get(ctx, key); err != nil {
					log.Printf("(get-missing) - error getting key: %v\n", err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})

	runBenchmark("has", func(b *testing.B, timer gometrics.Timer) {
		// prepare keys
		getKey, iter := getKeys("has")

		// set keys
		iter(func(k string) {
			if err := c.Put(ctx, k, value, grid.TTLEternal); err != nil {
				log.Printf("(has) - error putting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := c.Remove(ctx, k); err != nil {
					log.Printf("(has) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				c.HasKey(getKey(counter))
				timer.UpdateSince(start)
				counter++
			}
		})
	})

	runBenchmark("remove", func(b *testing.B, timer gometrics.Timer) {
		// prepare keys
		getKey, iter := getKeys("remove")

		// set keys
		iter(func(k string) {
			if err := c.Put(ctx, k, value, grid.TTLEternal); err != nil {
				log.Printf("(remove) - error putting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := c.Remove(ctx, k); err != nil {
					log.Printf("(remove) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if _, err := c.Remove(ctx, getKey(counter)); err != nil {
					log.Printf("(remove) - error removing key: %v\n", err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})

	runBenchmark("mixed", func(b *testing.B, timer gometrics.Timer) {
		// prepare keys
		getKey, iter := getKeys("mixed")

		// set keys
		iter(func(k string) {
			if err := c.Put(ctx, k, value, grid.TTLEternal); err != nil {
				log.Printf("(mixed) - error putting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := c.Remove(ctx, k); err != nil {
					log.Printf("(mixed) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := getKey(counter)
				start := time.Now()

				var err error
				switch counter % 4 {
				case 0: // put
					err = c.Put(ctx, key, value, grid.TTLEternal)
				case 1: // get
					_, _, err = c.Get(ctx, key)
				case 2: // remove
					_, err = c.Remove(ctx, key)
				case 3: // has
					c.HasKey(key)
				}

				if err != nil {
					log.Printf("(mixed) - error performing operation (%d): %v\n", counter%4, err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, cfg); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	// Dump engine counters if specified
	if promPath := viper.GetString("prom"); promPath != "" {
		fmt.Printf("\nDumping engine counters: %s\n", promPath)
		if err := writeEngineCounters(promPath); err != nil {
			return fmt.Errorf("failed to dump engine counters: %v", err)
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them. The key
// prefix is unique per run so repeated runs against a persistent swap tier
// never collide.
func getKeys(prefix string) (func(int) string, func(func(string))) {
	runID := uuid.NewString()[:8]
	keys := make([]string, benchKeySpread)
	for i := 0; i < benchKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%s-%d", benchKeyPrefix, prefix, runID, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%benchKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark in a formatted way
func printResult(test string, r benchResult) {
	if r.res.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(r.res.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	ps := r.timer.Percentiles([]float64{0.5, 0.95, 0.99})

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]benchResult, cfg grid.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P95Ns", "P99Ns", "Skipped",
		"Shards", "DeferredDelete", "EagerTTL", "SweepIntervalMs", "OffHeapBytes", "Swap",
		"Threads", "ValueSize", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, r := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if r.res.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(r.res.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		ps := r.timer.Percentiles([]float64{0.5, 0.95, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			skipped,
			strconv.Itoa(cfg.Shards),
			strconv.FormatBool(cfg.DeferredDelete),
			strconv.FormatBool(cfg.EagerTTL),
			strconv.FormatInt(cfg.SweepInterval, 10),
			strconv.FormatInt(cfg.OffHeapSize, 10),
			strconv.FormatBool(cfg.SwapEnabled()),
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchValueSize),
			strconv.Itoa(benchLargeValueSizeKB),
			strconv.Itoa(benchKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}

// writeEngineCounters dumps the VictoriaMetrics default set in Prometheus
// text format
func writeEngineCounters(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create counter file: %v", err)
	}
	defer file.Close()

	vmmetrics.WritePrometheus(file, false)
	return nil
}
