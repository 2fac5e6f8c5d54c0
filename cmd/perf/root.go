package perf

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/udsrpc/cmd/util"
	libUtil "github.com/ValentinKolb/udsrpc/lib/util"
	"github.com/ValentinKolb/udsrpc/rpc/client"
	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// PerfCmd runs a load test against a server started with the echo handler
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for udsrpc servers",
		Long:    util.WrapString("Sends requests of the configured sizes from several goroutines over one connection. The server must run the echo handler, every response is checked against its request."),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfNumThreads = 10
	perfSizes      = []int{1024}
)

// result of one benchmark run
type result struct {
	name       string
	bench      testing.BenchmarkResult
	errors     int64
	mismatches int64
	latency    []float64 // p50, p90, p99 in ns
	sizes      *libUtil.SizeHistogram
}

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags
	util.SetupRPCClientFlags(PerfCmd)

	key := "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU sending requests"))
	key = "sizes"
	PerfCmd.Flags().String(key, "16,1024,65536", util.WrapString("Comma separated payload sizes (in bytes), every size is tested separately and mixed"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfSizes = perfSizes[:0]
	for _, s := range strings.Split(viper.GetString("sizes"), ",") {
		size, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || size < 0 {
			return fmt.Errorf("invalid payload size %q", s)
		}
		perfSizes = append(perfSizes, size)
	}
	if len(perfSizes) == 0 {
		return fmt.Errorf("no payload sizes given")
	}

	return nil
}

func run(_ *cobra.Command, _ []string) error {
	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}

	fmt.Println("Performance testing tool for udsrpc servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	var results []result
	for _, size := range perfSizes {
		r, err := benchmark(*config, fmt.Sprintf("size-%d", size), []int{size})
		if err != nil {
			return err
		}
		results = append(results, r)
		printResult(r)
	}
	if len(perfSizes) > 1 {
		r, err := benchmark(*config, "mixed", perfSizes)
		if err != nil {
			return err
		}
		results = append(results, r)
		printResult(r)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// benchmark runs one parallel benchmark on a fresh connection
func benchmark(config common.ClientConfig, name string, sizes []int) (result, error) {
	c, err := client.NewRPCClient(config, util.GetTransport())
	if err != nil {
		return result{}, err
	}
	defer c.Close()

	deadline := time.Now().Add(config.RetryInterval() * time.Duration(config.Retries()+1))
	for !c.IsConnected() {
		if time.Now().After(deadline) {
			return result{}, fmt.Errorf("not connected to %s", config.Endpoint)
		}
		time.Sleep(10 * time.Millisecond)
	}

	payloads := make([][]byte, len(sizes))
	for i, size := range sizes {
		payloads[i] = bytes.Repeat([]byte{'x'}, size)
	}

	r := result{name: name, sizes: libUtil.NewSizeHistogram()}
	var errCount, mismatches atomic.Int64

	r.bench = testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				payload := payloads[counter%len(payloads)]
				counter++

				resp, err := c.Call(context.Background(), payload)
				if err != nil {
					if errCount.Add(1) == 1 {
						util.Logger.Warningf("(%s) - request failed: %v", name, err)
					}
					continue
				}
				if len(resp) != len(payload) {
					mismatches.Add(1)
				}
				r.sizes.AddSample(len(resp))
			}
		})
	})

	r.errors = errCount.Load()
	r.mismatches = mismatches.Load()
	r.latency = c.Latency().Percentiles([]float64{0.5, 0.9, 0.99})
	return r, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printResult prints the result of a benchmark test in a formatted way
func printResult(r result) {
	if r.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", r.name)
		return
	}

	nsPerOp := math.Max(float64(r.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", r.name, nsPerOp, time.Duration(nsPerOp), opsPerSec)
	fmt.Printf("%-20slatency p50 %s, p90 %s, p99 %s\n", "",
		time.Duration(r.latency[0]), time.Duration(r.latency[1]), time.Duration(r.latency[2]))
	fmt.Printf("%-20s%d responses, avg %d bytes, p99 ~%d bytes, max %d bytes\n", "",
		r.sizes.Count(), r.sizes.AverageSize(), r.sizes.PercentileEstimate(99), r.sizes.Max())
	if r.errors > 0 || r.mismatches > 0 {
		fmt.Printf("%-20s%d failed requests, %d mismatched responses\n", "", r.errors, r.mismatches)
	}
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []result, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec",
		"P50", "P90", "P99", "Errors", "Mismatches", "AvgSize",
		"Endpoint", "RequestTimeoutMs", "RetryCount", "BufferSize", "Notifier",
		"Threads",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, r := range results {
		nsPerOp := math.Max(float64(r.bench.NsPerOp()), 1)
		opsPerSec := 1.0 / (nsPerOp / 1e9)

		row := []string{
			r.name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			time.Duration(r.latency[0]).String(),
			time.Duration(r.latency[1]).String(),
			time.Duration(r.latency[2]).String(),
			strconv.FormatInt(r.errors, 10),
			strconv.FormatInt(r.mismatches, 10),
			strconv.Itoa(r.sizes.AverageSize()),
			config.Endpoint,
			strconv.Itoa(config.RequestTimeoutMillis),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.BufferSize),
			config.Notifier,
			strconv.Itoa(perfNumThreads),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.name, err)
		}
	}

	return nil
}
