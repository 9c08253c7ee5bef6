package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/matchkit/internal/observability"
	"github.com/Sumatoshi-tech/matchkit/internal/textio"
	"github.com/Sumatoshi-tech/matchkit/pkg/safeconv"
	"github.com/Sumatoshi-tech/matchkit/pkg/sched"
)

const (
	// envPrefix namespaces the environment variables viper reads, e.g.
	// MATCHKIT_DIAG_ADDR.
	envPrefix = "MATCHKIT"

	// smallFileBytes is the size under which a file gets a priority boost:
	// finishing small files early keeps the summary fresh while large files
	// grind on.
	smallFileBytes = 64 * 1024

	// maxBasePriority bounds --priority to the scheduler's priority byte,
	// reserving one step for the small-file boost.
	maxBasePriority = math.MaxUint8 - 1
)

// errPriorityRange rejects a --priority value outside the priority byte.
var errPriorityRange = errors.New("invalid base priority")

// scanTask is one file handed to the scheduler.
type scanTask struct {
	path string
	size int64
}

// scanTotals aggregates results across workers.
type scanTotals struct {
	files   atomic.Int64
	lines   atomic.Int64
	hits    atomic.Int64
	bytes   atomic.Int64
	failed  atomic.Int64
	labelMu sync.Mutex
	labels  map[string]int64
}

func (st *scanTotals) addLabel(label string) {
	st.labelMu.Lock()
	st.labels[label]++
	st.labelMu.Unlock()
}

// ScanCommand holds the flags for the scan command.
type ScanCommand struct {
	rules      string
	mode       string
	ignoreCase bool
	workers    int
	priority   int
	diagAddr   string
	jsonLogs   bool
	verbose    bool
}

// NewScanCommand creates and configures the scan command.
func NewScanCommand() *cobra.Command {
	cmd := &ScanCommand{}

	cobraCmd := &cobra.Command{
		Use:   "scan [path ...]",
		Short: "Scan files and directories for rule matches",
		Long: `Scan walks the given paths and matches every line against the rule set.
Files are dispatched through a bucketed work scheduler: files sharing a parent
directory never scan concurrently, and small files are prioritized. The
--diag-addr flag exposes scheduler and match metrics for Prometheus scraping
while the scan runs.`,
		RunE: cmd.Run,
	}

	flags := cobraCmd.Flags()
	flags.StringVarP(&cmd.rules, "rules", "r", "", "Rule file (required)")
	flags.StringVarP(&cmd.mode, "mode", "m", ModeLongest, "Match mode: longest, shortest, or exact")
	flags.BoolVarP(&cmd.ignoreCase, "ignore-case", "i", false, "ASCII case-insensitive matching")
	flags.IntVarP(&cmd.workers, "workers", "w", runtime.NumCPU(), "Maximum concurrently scanned files")
	flags.IntVar(&cmd.priority, "priority", 0, "Base scheduling priority (0-254)")
	flags.StringVar(&cmd.diagAddr, "diag-addr", "", "Address for the diagnostics HTTP server (e.g. 127.0.0.1:9180)")
	flags.BoolVar(&cmd.jsonLogs, "json-logs", false, "JSON-formatted log output")
	flags.BoolVarP(&cmd.verbose, "verbose", "v", false, "Debug log output")

	_ = cobraCmd.MarkFlagRequired("rules")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindPFlag("diag-addr", flags.Lookup("diag-addr"))
	_ = v.BindPFlag("workers", flags.Lookup("workers"))

	cobraCmd.PreRun = func(_ *cobra.Command, _ []string) {
		cmd.diagAddr = v.GetString("diag-addr")
		cmd.workers = v.GetInt("workers")
	}

	return cobraCmd
}

// Run executes the scan command.
func (c *ScanCommand) Run(cmd *cobra.Command, args []string) error {
	if c.priority < 0 || c.priority > maxBasePriority {
		return fmt.Errorf("%w: %d outside 0-%d", errPriorityRange, c.priority, maxBasePriority)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := observability.DefaultConfig()
	cfg.EnablePrometheus = c.diagAddr != ""
	cfg.LogJSON = c.jsonLogs

	if c.verbose {
		cfg.LogLevel = slog.LevelDebug
	}

	tel, err := observability.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	defer func() {
		if shutdownErr := tel.Shutdown(ctx); shutdownErr != nil {
			slog.Warn("telemetry shutdown", "error", shutdownErr)
		}
	}()

	if c.diagAddr != "" {
		diag, diagErr := observability.NewDiagnosticsServer(c.diagAddr, tel)
		if diagErr != nil {
			return fmt.Errorf("start diagnostics server: %w", diagErr)
		}

		defer func() {
			if closeErr := diag.Close(); closeErr != nil {
				slog.Warn("diagnostics close", "error", closeErr)
			}
		}()

		slog.Info("diagnostics listening", "addr", diag.Addr())
	}

	rules, err := textio.LoadRules(c.rules)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	tree, err := buildRuleTree(rules, c.ignoreCase)
	if err != nil {
		return err
	}

	matcher, err := matcherFor(tree, c.mode)
	if err != nil {
		return err
	}

	matchMetrics, err := observability.NewMatchMetrics(tel.Meter())
	if err != nil {
		return fmt.Errorf("create match metrics: %w", err)
	}

	totals := &scanTotals{labels: make(map[string]int64)}

	var wg sync.WaitGroup

	scheduler, err := sched.New(func(ctx context.Context, task scanTask) {
		defer wg.Done()
		c.scanFile(ctx, task, matcher, matchMetrics, totals)
	},
		sched.WithMaxParallelism[scanTask](c.workers),
		sched.WithContext[scanTask](ctx),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	if _, err = observability.NewSchedulerMetrics(tel.Meter(), scheduler); err != nil {
		return fmt.Errorf("register scheduler metrics: %w", err)
	}

	start := time.Now()

	if err = c.enqueuePaths(args, scheduler, &wg); err != nil {
		return err
	}

	wg.Wait()

	leftovers, err := scheduler.StopAndWait(ctx)
	if err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}

	if len(leftovers) > 0 {
		// Cannot happen: every enqueued task completes before stop.
		slog.Warn("undispatched tasks at shutdown", "count", len(leftovers))
	}

	c.renderSummary(cmd, totals, time.Since(start))

	return nil
}

// enqueuePaths walks the arguments and schedules every regular file. The
// bucket is the hash of the parent directory, so files in one directory scan
// sequentially; small files get a priority boost.
func (c *ScanCommand) enqueuePaths(args []string, scheduler *sched.Scheduler[scanTask], wg *sync.WaitGroup) error {
	if len(args) == 0 {
		args = []string{"."}
	}

	base := safeconv.MustIntToUint8(c.priority)

	for _, root := range args {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}

			if d.IsDir() {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}

			priority := base
			if info.Size() < smallFileBytes {
				priority++
			}

			bucket := int64(xxhash.Sum64String(filepath.Dir(path)))

			wg.Add(1)
			scheduler.Enqueue(scanTask{path: path, size: info.Size()}, bucket, priority)

			return nil
		})
		if err != nil {
			return fmt.Errorf("walk %s: %w", root, err)
		}
	}

	return nil
}

// scanFile matches every line of one file and accumulates totals.
func (c *ScanCommand) scanFile(ctx context.Context, task scanTask, matcher ruleMatcher, mm *observability.MatchMetrics, totals *scanTotals) {
	data, err := os.ReadFile(task.path)
	if err != nil {
		slog.Warn("read file", "path", task.path, "error", err)
		totals.failed.Add(1)

		return
	}

	totals.files.Add(1)
	totals.bytes.Add(task.size)

	for _, line := range strings.Split(string(data), "\n") {
		totals.lines.Add(1)

		start := time.Now()
		m, ok := matcher(line)
		mm.RecordMatch(ctx, c.mode, ok, time.Since(start))

		if !ok {
			continue
		}

		totals.hits.Add(1)
		totals.addLabel(m.Value)
	}

	slog.Debug("scanned", "path", task.path, "bytes", task.size)
}

// renderSummary prints the aggregate table and per-label hit counts.
func (c *ScanCommand) renderSummary(cmd *cobra.Command, totals *scanTotals, elapsed time.Duration) {
	out := cmd.OutOrStdout()

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Files", "Lines", "Hits", "Scanned", "Failed", "Elapsed"})
	tw.AppendRow(table.Row{
		humanize.Comma(totals.files.Load()),
		humanize.Comma(totals.lines.Load()),
		humanize.Comma(totals.hits.Load()),
		humanize.Bytes(uint64(max(totals.bytes.Load(), 0))),
		humanize.Comma(totals.failed.Load()),
		elapsed.Round(time.Millisecond),
	})
	tw.Render()

	totals.labelMu.Lock()
	defer totals.labelMu.Unlock()

	if len(totals.labels) == 0 {
		return
	}

	lt := table.NewWriter()
	lt.SetOutputMirror(out)
	lt.AppendHeader(table.Row{"Label", "Hits"})

	for label, count := range totals.labels {
		lt.AppendRow(table.Row{label, count})
	}

	lt.SortBy([]table.SortBy{{Name: "Hits", Mode: table.DscNumeric}})
	lt.Render()
}
