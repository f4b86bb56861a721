package bench

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	cmdUtil "github.com/pubkey/storagebench/cmd/util"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/lockmgr"
	"github.com/pubkey/storagebench/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("bench")

	benchCmdConfig = &common.BenchConfig{}
	BenchCmd       = &cobra.Command{
		Use:   "bench",
		Short: "Run the workload against one or more backends",
		Long: fmt.Sprintf(`Run init, writeDocs (in batches), findDocs, queryRegex, queryIndex,
queryRegexIndex and clear against every selected backend and print the timings.

Base backends: %s
Composed backends prefix a backend name with %s, %s, %s or %s,
e.g. sharded-worker-docstore-memory or process-sqlstore-file.

Every flag can be set via STORAGEBENCH_<flag> (e.g. STORAGEBENCH_BATCH_SIZE=50).`,
			strings.Join(cmdUtil.Backends(), ", "),
			cmdUtil.PrefixSharded, cmdUtil.PrefixMapped, cmdUtil.PrefixWorker, cmdUtil.PrefixProcess),
		PreRunE:      processConfig,
		RunE:         run,
		SilenceUsage: true,
	}
)

func init() {
	key := "backends"
	BenchCmd.Flags().String(key, "kvmap,idb-cursor,sqlstore-memory,docstore-memory,worker-docstore-memory", cmdUtil.WrapString("Comma-separated list of backends to benchmark"))

	key = "docs"
	BenchCmd.Flags().Int(key, 1000, cmdUtil.WrapString("Number of generated documents"))

	key = "batch-size"
	BenchCmd.Flags().Int(key, 100, cmdUtil.WrapString("Documents per writeDocs call"))

	key = "find-ids"
	BenchCmd.Flags().Int(key, 100, cmdUtil.WrapString("Number of ids passed to findDocs"))

	key = "pattern"
	BenchCmd.Flags().String(key, "abc", cmdUtil.WrapString("Pattern of queryRegex and queryRegexIndex"))

	key = "min-age"
	BenchCmd.Flags().Int(key, 50, cmdUtil.WrapString("Inclusive lower age bound of queryIndex and queryRegexIndex"))

	key = "seed"
	BenchCmd.Flags().Int64(key, 0, cmdUtil.WrapString("Seed of the document generator (0 = fixed default seed)"))

	key = "data-dir"
	BenchCmd.Flags().String(key, "", cmdUtil.WrapString("Parent directory of file based backends (default: <tmp>/storagebench)"))

	key = "randomize-names"
	BenchCmd.Flags().Bool(key, false, cmdUtil.WrapString("Append a random suffix to every resource name"))

	key = "shards"
	BenchCmd.Flags().Int(key, 4, cmdUtil.WrapString("Number of children of sharded backends"))

	key = "metrics"
	BenchCmd.Flags().Bool(key, false, cmdUtil.WrapString("Dump the per-operation metrics of every backend in Prometheus format"))

	key = "csv"
	BenchCmd.Flags().String(key, "", cmdUtil.WrapString("Export the results to a CSV file"))

	key = "log-level"
	BenchCmd.Flags().String(key, "warn", cmdUtil.WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the flags and environment variables into the bench configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	benchCmdConfig.Backends = benchCmdConfig.Backends[:0]
	for _, b := range strings.Split(viper.GetString("backends"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			benchCmdConfig.Backends = append(benchCmdConfig.Backends, b)
		}
	}
	if len(benchCmdConfig.Backends) == 0 {
		return fmt.Errorf("no backend selected")
	}

	benchCmdConfig.Docs = viper.GetInt("docs")
	benchCmdConfig.BatchSize = viper.GetInt("batch-size")
	benchCmdConfig.FindIDs = viper.GetInt("find-ids")
	benchCmdConfig.Pattern = viper.GetString("pattern")
	benchCmdConfig.MinAge = viper.GetInt("min-age")
	benchCmdConfig.Seed = viper.GetInt64("seed")
	benchCmdConfig.DataDir = viper.GetString("data-dir")
	benchCmdConfig.RandomizeNames = viper.GetBool("randomize-names")
	benchCmdConfig.Shards = viper.GetInt("shards")
	benchCmdConfig.Serializer = viper.GetString("serializer")
	benchCmdConfig.Metrics = viper.GetBool("metrics")
	benchCmdConfig.LogLevel = viper.GetString("log-level")

	if benchCmdConfig.Docs < 0 || benchCmdConfig.FindIDs < 0 {
		return fmt.Errorf("docs and find-ids must not be negative")
	}
	return common.InitLoggers(benchCmdConfig.LogLevel)
}

func run(_ *cobra.Command, _ []string) error {
	conf := benchCmdConfig
	fmt.Print(conf.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	genOpts := document.DefaultGeneratorOptions()
	genOpts.Seed = conf.Seed
	docs := document.NewGenerator(&genOpts).Take(conf.Docs)

	workload := Workload{
		Docs:      docs,
		BatchSize: conf.BatchSize,
		FindIDs:   document.IDs(docs[:min(conf.FindIDs, len(docs))]),
		Pattern:   conf.Pattern,
		MinAge:    conf.MinAge,
	}

	// one lock manager for the run, two live adapters never share a resource
	locks := lockmgr.NewInMemory()

	var all []Result
	var errs []error
	for _, kind := range conf.Backends {
		if ctx.Err() != nil {
			break
		}

		set := metrics.NewSet()
		a, err := cmdUtil.NewBackend(kind, cmdUtil.BackendOptions{
			Name:       adapter.ResourceName(kind, conf.RandomizeNames),
			DataDir:    conf.DataDir,
			Shards:     conf.Shards,
			Serializer: conf.Serializer,
			LogLevel:   conf.LogLevel,
			Locks:      locks,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		fmt.Printf("\n%s (%s)\n", kind, a.Info().Strategy)
		results, err := Run(ctx, kind, adapter.Instrument(a, set), workload)
		if err != nil {
			log.Errorf("Backend %s failed: %v", kind, err)
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		for _, res := range results {
			printResult(res)
		}
		all = append(all, results...)

		if conf.Metrics {
			fmt.Println()
			set.WritePrometheus(os.Stdout)
		}
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, all); err != nil {
			errs = append(errs, fmt.Errorf("failed to write CSV: %w", err))
		}
	}
	return errors.Join(errs...)
}

func printResult(r Result) {
	fmt.Printf("  %-18s%6d calls  mean %-12s p99 %-12s max %-12s %d docs\n",
		r.Phase, r.Calls, r.Mean, r.P99, r.Max, r.Docs)
}

func writeResultsToCSV(csvPath string, results []Result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	records := [][]string{{"backend", "phase", "calls", "docs", "mean_ns", "p99_ns", "max_ns", "total_ns"}}
	for _, r := range results {
		records = append(records, []string{
			r.Backend,
			r.Phase,
			strconv.FormatInt(r.Calls, 10),
			strconv.Itoa(r.Docs),
			strconv.FormatInt(r.Mean.Nanoseconds(), 10),
			strconv.FormatInt(r.P99.Nanoseconds(), 10),
			strconv.FormatInt(r.Max.Nanoseconds(), 10),
			strconv.FormatInt(r.Total.Nanoseconds(), 10),
		})
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return file.Sync()
}
