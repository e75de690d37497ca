// cmd/status.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-usage/codex-usage/internal/quota"
	"github.com/codex-usage/codex-usage/internal/service"
	"github.com/codex-usage/codex-usage/internal/ui"
)

var (
	statusAll     bool
	statusJSON    bool
	statusOneline bool
	statusRefresh bool
)

var statusCmd = &cobra.Command{
	Use:     "status [account...]",
	Aliases: []string{"st"},
	Short:   "Show remaining quota for the live account or others",
	Long: `Reports the 5-hour and weekly windows for the live account, the named accounts,
or every registered account. Results younger than five minutes are served
from the cache unless --refresh is given.`,
	Example: `  # Live account
  codex-usage status

  # Every account, one line each
  codex-usage status --all --oneline

  # Machine-readable
  codex-usage status --json --refresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}

		entries, err := s.Status(cmd.Context(), service.StatusRequest{
			Accounts: args,
			All:      statusAll,
			Refresh:  statusRefresh,
		})
		if err != nil {
			return err
		}

		var snaps []*quota.Snapshot
		var active []bool
		for _, e := range entries {
			if e.Err != nil {
				warnColor.Fprintf(os.Stderr, "Warning: Failed to fetch usage for %s: %v\n", e.Account, e.Err)
				continue
			}
			snaps = append(snaps, e.Snapshot)
			active = append(active, e.Active)
		}
		if len(snaps) == 0 {
			return errors.New("no usage data available for any account")
		}

		out := cmd.OutOrStdout()
		switch {
		case statusJSON:
			if len(snaps) == 1 {
				return writeJSON(out, snaps[0])
			}
			return writeJSON(out, snaps)
		case statusOneline:
			for _, snap := range snaps {
				fmt.Fprintln(out, onelineSummary(snap))
			}
		default:
			for i, snap := range snaps {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printUsage(out, snap, active[i])
			}
		}
		return nil
	},
}

// onelineSummary formats a snapshot as "work: 62% (5h) ✅ / 91% (7d)"
func onelineSummary(snap *quota.Snapshot) string {
	var parts []string
	if w := snap.Primary; w != nil {
		parts = append(parts, fmt.Sprintf("%.0f%% (%s) %s", w.UsedPercent, w.Label(), ui.StatusIcon(w.UsedPercent)))
	}
	if w := snap.Secondary; w != nil {
		parts = append(parts, fmt.Sprintf("%.0f%% (%s)", w.UsedPercent, w.Label()))
	}
	if len(parts) == 0 {
		return snap.Account + ": No data"
	}
	return snap.Account + ": " + strings.Join(parts, " / ")
}

// printUsage prints the full report for one account
func printUsage(out io.Writer, snap *quota.Snapshot, isCurrent bool) {
	title := snap.Account
	if isCurrent {
		title += " *"
	}
	printHeader(out, title)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  🔑 %s\t%s\n", labelColor.Sprint("Auth:"), snap.AuthType)
	if snap.Plan != "" {
		fmt.Fprintf(w, "  📊 %s\t%s\n", labelColor.Sprint("Plan:"), snap.Plan)
	}
	if snap.Status == "ok" {
		fmt.Fprintf(w, "  ✅ %s\n", goodColor.Sprint("Connected"))
	} else {
		fmt.Fprintf(w, "  ❌ %s\t%s\n", badColor.Sprint("Error:"), snap.Status)
	}
	w.Flush()

	for _, win := range []*quota.Window{snap.Primary, snap.Secondary} {
		if win == nil {
			continue
		}
		fmt.Fprintln(out)
		labelColor.Fprintf(out, "  %s Window:\n", win.Label())
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "    Used:\t%s %s\n",
			percentColor(win.UsedPercent).Sprintf("%.1f%%", win.UsedPercent), ui.StatusIcon(win.UsedPercent))
		fmt.Fprintf(w, "    Remaining:\t%.1f%%\n", win.RemainingPercent)
		if d := win.ResetsIn(); d > 0 {
			fmt.Fprintf(w, "    Resets in:\t%s\n", ui.FormatResetIn(d))
		}
		w.Flush()
	}

	if snap.CodeReviewUsed != nil {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Code Review: %.1f%% used\n", *snap.CodeReviewUsed)
	}

	if snap.LimitReached {
		fmt.Fprintln(out)
		badColor.Fprintln(out, "  ⚠️  Rate limit reached!")
	}

	if !snap.CapturedAt.IsZero() {
		fmt.Fprintln(out)
		mutedColor.Fprintf(out, "  Measured %s ago\n", time.Since(snap.CapturedAt).Truncate(time.Second))
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "Show every registered account")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print snapshots as JSON")
	statusCmd.Flags().BoolVar(&statusOneline, "oneline", false, "Print one line per account")
	statusCmd.Flags().BoolVarP(&statusRefresh, "refresh", "r", false, "Bypass the five-minute cache")
	statusCmd.MarkFlagsMutuallyExclusive("json", "oneline")
}
