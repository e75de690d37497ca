// cmd/accounts.go
package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-usage/codex-usage/internal/service"
	"github.com/codex-usage/codex-usage/internal/ui"
)

var (
	accountsJSON bool
	switchForce  bool
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"account", "acc"},
	Short:   "Manage stored Codex logins",
}

var accountsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}
		accounts, err := s.Accounts()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if accountsJSON {
			return writeJSON(out, accountRows(accounts))
		}
		if len(accounts) == 0 {
			fmt.Fprintln(out, "No accounts stored. Log in with 'codex login', then run 'codex-usage accounts add <name>'.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "  \tNAME\tADDED\tLAST USED\tFINGERPRINT")
		for _, a := range accounts {
			marker := " "
			name := a.Name
			if a.Active {
				marker = goodColor.Sprint("*")
				name = goodColor.Sprint(a.Name)
			}
			lastUsed := "-"
			if a.LastUsed != nil {
				lastUsed = a.LastUsed.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
				marker, name, a.AddedAt.Local().Format("2006-01-02 15:04"), lastUsed, shortFingerprint(a.Fingerprint))
		}
		return w.Flush()
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Store the current Codex login under a name",
	Long: `Copies the credential Codex is using right now into the account store under
the given name. Log in with 'codex login' first. Adding a name that already
exists refreshes its stored credential.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}

		var name string
		switch {
		case len(args) == 1:
			name = args[0]
		case ui.IsTTY():
			name, err = ui.AskName("Name for the current Codex login:", "work", func(n string) error {
				_, err := s.AccountAuthPath(n)
				return err
			})
			if err != nil {
				return err
			}
		default:
			return errors.New("account name required")
		}

		acct, err := s.Add(name)
		if err != nil {
			return err
		}
		stored, _ := s.AccountAuthPath(name)
		goodColor.Fprintf(cmd.OutOrStdout(), "✅ Account '%s' added.\n", acct.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "   Credential stored at %s\n", stored)
		return nil
	},
}

var accountsSwitchCmd = &cobra.Command{
	Use:     "switch [name]",
	Aliases: []string{"use"},
	Short:   "Make a stored account the live Codex login",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}

		var name string
		switch {
		case len(args) == 1:
			name = args[0]
		case ui.IsTTY():
			name, err = pickAccount(s)
			if err != nil {
				return err
			}
		default:
			return errors.New("account name required")
		}

		if err := s.Switch(name, switchForce); err != nil {
			return err
		}
		goodColor.Fprintf(cmd.OutOrStdout(), "✅ Switched to '%s'.\n", name)
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a stored account",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openService()
		if err != nil {
			return err
		}
		if err := s.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Account '%s' removed.\n", args[0])
		return nil
	},
}

// pickAccount asks the user to choose among stored accounts
func pickAccount(s *service.Service) (string, error) {
	accounts, err := s.Accounts()
	if err != nil {
		return "", err
	}
	items := make([]ui.PickItem, 0, len(accounts))
	for _, a := range accounts {
		detail := "never used"
		if a.LastUsed != nil {
			detail = "last used " + a.LastUsed.Local().Format("2006-01-02 15:04")
		}
		items = append(items, ui.PickItem{Name: a.Name, Detail: detail, Current: a.Active})
	}
	return ui.PickAccount("Switch to which account?", items)
}

type accountRow struct {
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	AddedAt     time.Time  `json:"added_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	Fingerprint string     `json:"fingerprint"`
}

func accountRows(accounts []service.AccountInfo) []accountRow {
	rows := make([]accountRow, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, accountRow{
			Name:        a.Name,
			Active:      a.Active,
			AddedAt:     a.AddedAt,
			LastUsed:    a.LastUsed,
			Fingerprint: a.Fingerprint,
		})
	}
	return rows
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsSwitchCmd, accountsRemoveCmd)

	accountsListCmd.Flags().BoolVar(&accountsJSON, "json", false, "Print accounts as JSON")
	accountsSwitchCmd.Flags().BoolVarP(&switchForce, "force", "f", false, "Switch even if Codex is running")
}
