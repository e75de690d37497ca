// cmd/history.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyAccount string
	historyLimit   int
	historyJSON    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded usage measurements",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List recorded measurements, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkLimit(historyLimit); err != nil {
			return err
		}
		s, err := openService()
		if err != nil {
			return err
		}
		records, err := s.SnapshotHistory(cmd.Context(), historyAccount, historyLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			return writeJSON(out, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No measurements recorded yet. Run 'codex-usage status' or 'codex-usage watch'.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tACCOUNT\t5H USED\tWEEKLY USED\tPLAN\tSTATUS")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.CapturedAt.Local().Format("2006-01-02 15:04:05"),
				r.Account,
				formatUsed(r.FiveHourUsed),
				formatUsed(r.WeeklyUsed),
				orDash(r.Plan),
				orDash(r.Status))
		}
		return w.Flush()
	},
}

var historyAccountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts with recorded measurements",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}
		names, err := s.HistoryAccounts(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func formatUsed(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd, historyAccountsCmd)

	historyShowCmd.Flags().StringVar(&historyAccount, "account", "", "Only show this account")
	historyShowCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Number of measurements to show")
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "Print measurements as JSON")
}
