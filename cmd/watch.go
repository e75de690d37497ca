// cmd/watch.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codex-usage/codex-usage/internal/burnrate"
	"github.com/codex-usage/codex-usage/internal/history"
	"github.com/codex-usage/codex-usage/internal/metrics"
	"github.com/codex-usage/codex-usage/internal/monitor"
	"github.com/codex-usage/codex-usage/internal/quota"
	"github.com/codex-usage/codex-usage/internal/ui"
)

// snapshotRetention bounds how long measurements stay in history.db
const snapshotRetention = 30 * 24 * time.Hour

var (
	watchAll         bool
	watchInterval    time.Duration
	watchMetricsAddr string
	watchCycle       bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously monitor usage and burn rate",
	Long: `Refreshes usage on an interval and shows how fast each window is being
consumed, with a projection of when it runs out. With --cycle the rotation is
checked after every refresh. With --metrics-addr the same numbers are served
for Prometheus.`,
	Example: `  # Every account, refreshed each minute
  codex-usage watch --all --interval 1m

  # Rotate automatically and expose metrics
  codex-usage watch --cycle --metrics-addr 127.0.0.1:9464`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		interval := settings.Watch.Interval
		if cmd.Flags().Changed("interval") {
			interval = watchInterval
		}
		if interval < time.Second {
			return fmt.Errorf("interval must be at least 1s, got %s", interval)
		}
		addr := settings.Watch.MetricsAddr
		if cmd.Flags().Changed("metrics-addr") {
			addr = watchMetricsAddr
		}

		source := s.WatchSource(watchAll)
		tracker := burnrate.NewTracker()
		seedTracker(ctx, s.SnapshotHistory, source, tracker)
		if n, err := s.PruneHistory(ctx, time.Now().Add(-snapshotRetention)); err != nil {
			log.Warn("pruning snapshot history failed", zap.Error(err))
		} else if n > 0 {
			log.Debug("pruned snapshot history", zap.Int64("rows", n))
		}

		m := metrics.New()
		if addr != "" {
			go func() {
				if err := m.Serve(ctx, addr, log); err != nil {
					log.Error("metrics server failed", zap.Error(err))
				}
			}()
		}

		cfg := monitor.Config{
			Source:   source,
			Cache:    s.Cache(),
			Limiter:  quota.NewLimiter(settings.Watch.MinFetchInterval),
			Tracker:  tracker,
			Metrics:  m,
			Recorder: s.WatchRecorder(),
			Render:   frameRenderer(cmd),
			Interval: interval,
			Logger:   log,
		}
		if watchCycle {
			cfg.Cycler = s.WatchCycler()
		}

		err = monitor.New(cfg).Run(ctx)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(cmd.OutOrStdout(), "\nStopped.")
			return nil
		}
		return err
	},
}

// snapshotLookup returns up to limit persisted measurements for account
type snapshotLookup func(ctx context.Context, account string, limit int) ([]history.SnapshotRecord, error)

// seedTracker preloads burn-rate samples from history.db
func seedTracker(ctx context.Context, lookup snapshotLookup, source monitor.Source, tracker *burnrate.Tracker) {
	accounts, err := source.Accounts(ctx)
	if err != nil {
		return
	}
	for _, account := range accounts {
		records, err := lookup(ctx, account, burnrate.Capacity)
		if err != nil {
			log.Debug("no snapshot history to seed from", zap.String("account", account), zap.Error(err))
			continue
		}
		monitor.Seed(tracker, records)
	}
}

// frameRenderer redraws in place on a terminal and appends otherwise
func frameRenderer(cmd *cobra.Command) func(monitor.Frame) {
	out := cmd.OutOrStdout()
	tty := ui.IsTTY()
	return func(f monitor.Frame) {
		if tty {
			fmt.Fprint(out, "\033[H\033[2J")
		}
		fmt.Fprint(out, ui.RenderFrame(f, ui.TerminalWidth(80)))
		if !tty {
			fmt.Fprintln(out)
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVarP(&watchAll, "all", "a", false, "Watch every registered account")
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 30*time.Second, "Refresh interval")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	watchCmd.Flags().BoolVar(&watchCycle, "cycle", false, "Run the rotation check after each refresh")
}
