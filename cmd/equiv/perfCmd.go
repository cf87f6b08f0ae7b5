package equiv

import (
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hashserv/cmd/util"
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/client"
	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for hash equivalence servers",
		Long:    "Runs report, lookup and stream benchmarks against the server. Every run uses a fresh method name, --cleanup removes its records afterwards (requires @db-admin).",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfCount   = 1000
	perfThreads = 10
	perfSkip    []string
	perfCleanup bool
	perfCSV     string

	perfPercentiles = []float64{0.5, 0.9, 0.99}
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. report,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of parallel clients"))
	key = "count"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of tasks used by every benchmark"))
	key = "cleanup"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Remove the reported records after the run"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfCount = max(1, viper.GetInt("count"))
	perfThreads = max(1, viper.GetInt("threads"))
	perfSkip = util.SplitList(viper.GetString("skip"))
	perfCleanup = viper.GetBool("cleanup")
	perfCSV = viper.GetString("csv")

	return nil
}

// perfResult is the outcome of one benchmark
type perfResult struct {
	name    string
	ops     int
	errors  int64
	elapsed time.Duration
	timer   metrics.Timer
}

// perfTask is the i-th task of a run
func perfTask(method string, i int) store.TaskRecord {
	return store.TaskRecord{
		Method:   method,
		Taskhash: fmt.Sprintf("%040x", i),
		Outhash:  fmt.Sprintf("%064x", i),
		Unihash:  fmt.Sprintf("%s-%d", method, i),
	}
}

func runPerf(_ *cobra.Command, _ []string) error {
	config := *util.GetClientConfig()
	method := "perf-" + uuid.NewString()[:8]

	fmt.Println("Performance testing tool for hash equivalence servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d, Tasks: %d, Method: %s\n", perfThreads, perfCount, method)
	fmt.Println()

	fmt.Println("starting tests...")

	registry := metrics.NewRegistry()
	defer registry.UnregisterAll()

	var results []perfResult

	// every other benchmark reads the records of this one
	if r, ok := benchWorkers(registry, config, "report", func(c *client.Client, i int) error {
		_, err := c.Report(perfTask(method, i))
		return err
	}); ok {
		results = append(results, r)
	}

	if r, ok := benchWorkers(registry, config, "get", func(c *client.Client, i int) error {
		_, err := c.GetTaskhash(method, perfTask(method, i).Taskhash, false)
		return err
	}); ok {
		results = append(results, r)
	}

	if r, ok := benchWorkers(registry, config, "get-stream", func(c *client.Client, i int) error {
		_, err := c.GetUnihash(method, perfTask(method, i).Taskhash)
		return err
	}); ok {
		results = append(results, r)
	}

	if r, ok := benchPool(registry, config, "get-batch", func(p *client.Pool) error {
		queries := make(map[int]client.UnihashQuery, perfCount)
		for i := 0; i < perfCount; i++ {
			queries[i] = client.UnihashQuery{Method: method, Taskhash: perfTask(method, i).Taskhash}
		}
		return firstError(client.GetUnihashes(p, queries))
	}); ok {
		results = append(results, r)
	}

	if r, ok := benchPool(registry, config, "exists-batch", func(p *client.Pool) error {
		queries := make(map[int]string, perfCount)
		for i := 0; i < perfCount; i++ {
			queries[i] = perfTask(method, i).Unihash
		}
		return firstError(client.UnihashesExist(p, queries))
	}); ok {
		results = append(results, r)
	}

	if perfCleanup {
		if n, err := rpcClient.Remove(map[string]string{"method": method}); err != nil {
			fmt.Printf("cleanup failed: %v\n", err)
		} else {
			fmt.Printf("removed %d records\n", n)
		}
	}

	if perfCSV != "" {
		if err := writeCSV(perfCSV, results); err != nil {
			return fmt.Errorf("error saving CSV results: %w", err)
		}
		fmt.Printf("\nResults saved to %s\n", perfCSV)
	}

	return nil
}

// benchWorkers runs op for every task, spread over perfThreads clients, and
// times every call
func benchWorkers(registry metrics.Registry, config common.ClientConfig, name string, op func(c *client.Client, i int) error) (perfResult, bool) {
	if slices.Contains(perfSkip, name) {
		return perfResult{}, false
	}

	r := perfResult{name: name, ops: perfCount, timer: metrics.GetOrRegisterTimer(name, registry)}
	var errCount atomic.Int64
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < perfThreads; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()

			c, err := client.NewClientFromConfig(config)
			if err != nil {
				fmt.Printf("(%s) - error creating client: %v\n", name, err)
				return
			}
			defer c.Close()

			for i := w; i < perfCount; i += perfThreads {
				t := time.Now()
				if err := op(c, i); err != nil {
					if errCount.Add(1) == 1 {
						fmt.Printf("(%s) - error: %v\n", name, err)
					}
					continue
				}
				r.timer.UpdateSince(t)
			}
		}(w)
	}
	wg.Wait()

	r.elapsed = time.Since(start)
	r.errors = errCount.Load()
	printResult(r)
	return r, true
}

// benchPool times one run of op over a pool of perfThreads clients
func benchPool(registry metrics.Registry, config common.ClientConfig, name string, op func(p *client.Pool) error) (perfResult, bool) {
	if slices.Contains(perfSkip, name) {
		return perfResult{}, false
	}

	config.PoolSize = perfThreads
	p := client.NewPoolFromConfig(config)
	defer p.Close()

	r := perfResult{name: name, ops: perfCount, timer: metrics.GetOrRegisterTimer(name, registry)}

	start := time.Now()
	if err := op(p); err != nil {
		fmt.Printf("(%s) - error: %v\n", name, err)
		r.errors = 1
	}
	r.elapsed = time.Since(start)
	r.timer.Update(r.elapsed)

	printResult(r)
	return r, true
}

// firstError returns the first error of a pool result
func firstError[K comparable, T any](results map[K]client.Result[T]) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

func opsPerSecond(r perfResult) float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.ops) / r.elapsed.Seconds()
}

func printResult(r perfResult) {
	ps := r.timer.Percentiles(perfPercentiles)
	fmt.Printf("%-13s %8d ops %10.0f ops/s  mean %-10s p50 %-10s p90 %-10s p99 %-10s max %-10s errors %d\n",
		r.name,
		r.ops,
		opsPerSecond(r),
		time.Duration(r.timer.Mean()).Round(time.Microsecond),
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		time.Duration(ps[2]).Round(time.Microsecond),
		time.Duration(r.timer.Max()).Round(time.Microsecond),
		r.errors,
	)
}

func writeCSV(path string, results []perfResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"name", "ops", "ops_per_sec", "mean_us", "p50_us", "p90_us", "p99_us", "max_us", "errors"}); err != nil {
		return err
	}

	us := func(ns float64) string {
		return strconv.FormatFloat(ns/1e3, 'f', 1, 64)
	}
	for _, r := range results {
		ps := r.timer.Percentiles(perfPercentiles)
		if err := writer.Write([]string{
			r.name,
			strconv.Itoa(r.ops),
			strconv.FormatFloat(opsPerSecond(r), 'f', 1, 64),
			us(r.timer.Mean()),
			us(ps[0]),
			us(ps[1]),
			us(ps[2]),
			us(float64(r.timer.Max())),
			strconv.FormatInt(r.errors, 10),
		}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
