// cmd/cycle.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/codex-usage/codex-usage/internal/cycle"
)

var (
	cycleFiveHour float64
	cycleWeekly   float64
	cycleMode     string
	cycleForce    bool
	cycleAccount  string
	cycleLimit    int
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Rotate the live login when quota runs low",
	Long: `Cycling measures the live account and, when its remaining quota is at or
below the configured thresholds, switches Codex to the next account in the
rotation. With mode "and" both windows must be low; with "or" either one is
enough.`,
}

var cycleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cycling configuration and rotation",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}
		o, err := s.Engine().Overview()
		if err != nil {
			return err
		}
		printCycleOverview(cmd.OutOrStdout(), o)
		return nil
	},
}

func printCycleOverview(out io.Writer, o *cycle.Overview) {
	cfg := o.Config
	printHeader(out, "Cycle Status")

	if cfg.Enabled {
		goodColor.Fprintln(out, "  ✅ Cycling enabled")
	} else {
		badColor.Fprintln(out, "  ❌ Cycling disabled")
	}

	fmt.Fprintln(out)
	labelColor.Fprintln(out, "  Thresholds:")
	fmt.Fprintf(out, "    5h:     <= %.0f%% remaining\n", cfg.Thresholds.FiveHour)
	fmt.Fprintf(out, "    Weekly: <= %.0f%% remaining\n", cfg.Thresholds.Weekly)
	fmt.Fprintf(out, "    Mode:   %s\n", cfg.Mode)

	fmt.Fprintln(out)
	labelColor.Fprintln(out, "  Accounts in cycle:")
	if len(cfg.Accounts) == 0 {
		mutedColor.Fprintln(out, "    (none configured, using all stored accounts)")
	}
	for i, name := range o.Rotation {
		marker := ""
		switch name {
		case o.Active:
			marker = goodColor.Sprint(" (current)")
		case o.Next:
			marker = warnColor.Sprint(" (next)")
		}
		fmt.Fprintf(out, "    %d. %s%s\n", i+1, name, marker)
	}

	if cfg.LastCycle != nil {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Last cycle: %s\n", cfg.LastCycle.Local().Format("2006-01-02 15:04:05"))
	}
}

var cycleConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Set thresholds and mode",
	Example: `  # Switch when either window has 10% or less left
  codex-usage cycle config --five-hour 10 --weekly 10 --mode or`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}

		var u cycle.ConfigUpdate
		if cmd.Flags().Changed("five-hour") {
			u.FiveHour = &cycleFiveHour
		}
		if cmd.Flags().Changed("weekly") {
			u.Weekly = &cycleWeekly
		}
		if cmd.Flags().Changed("mode") {
			m, err := cycle.ParseMode(cycleMode)
			if err != nil {
				return err
			}
			u.Mode = &m
		}

		cfg, err := s.Engine().Configure(u)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Cycle configuration updated:")
		fmt.Fprintf(out, "  5h threshold:     %.0f%%\n", cfg.Thresholds.FiveHour)
		fmt.Fprintf(out, "  Weekly threshold: %.0f%%\n", cfg.Thresholds.Weekly)
		fmt.Fprintf(out, "  Mode:             %s\n", cfg.Mode)
		return nil
	},
}

var cycleEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn cycling on",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}
		if _, err := s.Engine().Enable(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cycling enabled.")
		return nil
	},
}

var cycleDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn cycling off",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}
		if _, err := s.Engine().Disable(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cycling disabled.")
		return nil
	},
}

var cycleNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Measure the live account and switch if thresholds are crossed",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}
		res, err := s.RunOnce(cmd.Context(), cycleAccount, cycleForce)
		if res != nil && res.Message != "" {
			out := cmd.OutOrStdout()
			switch {
			case res.Switched():
				goodColor.Fprintln(out, res.Message)
			case res.State == cycle.StateBlocked:
				// printError reports the conflict
			default:
				fmt.Fprintln(out, res.Message)
			}
		}
		if err != nil && res != nil && res.Switched() {
			// The switch happened; only bookkeeping failed.
			warnColor.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			return nil
		}
		return err
	},
}

var cycleHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent switches",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkLimit(cycleLimit); err != nil {
			return err
		}
		s, err := openService()
		if err != nil {
			return err
		}
		records, err := s.CycleHistory(cycleLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "No cycle history found.")
			return nil
		}
		labelColor.Fprintln(out, "Cycle History:")
		fmt.Fprintln(out)
		for _, r := range records {
			fmt.Fprintf(out, "  %s: %s -> %s (%s)\n",
				r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.FromAccount, r.ToAccount, r.Reason)
		}
		return nil
	},
}

var cycleReorderCmd = &cobra.Command{
	Use:   "reorder <account>...",
	Short: "Set the rotation order",
	Long: `Replaces the rotation with the given accounts, in order. Accounts left out
are skipped by cycling. Every name must already be stored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}
		cfg, err := s.Engine().Reorder(args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Cycle accounts reordered:")
		for i, name := range cfg.Accounts {
			fmt.Fprintf(out, "  %d. %s\n", i+1, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd)
	cycleCmd.AddCommand(cycleStatusCmd, cycleConfigCmd, cycleEnableCmd, cycleDisableCmd,
		cycleNowCmd, cycleHistoryCmd, cycleReorderCmd)

	cycleConfigCmd.Flags().Float64Var(&cycleFiveHour, "five-hour", 0, "Switch when the 5h window has this percent or less remaining")
	cycleConfigCmd.Flags().Float64Var(&cycleWeekly, "weekly", 0, "Switch when the weekly window has this percent or less remaining")
	cycleConfigCmd.Flags().StringVar(&cycleMode, "mode", "", "Combine thresholds with 'and' (both) or 'or' (either)")

	cycleNowCmd.Flags().BoolVarP(&cycleForce, "force", "f", false, "Switch even if Codex is running")
	cycleNowCmd.Flags().StringVar(&cycleAccount, "account", "", "Measure this account instead of the live one")

	cycleHistoryCmd.Flags().IntVarP(&cycleLimit, "limit", "n", 20, "Number of entries to show")
}
