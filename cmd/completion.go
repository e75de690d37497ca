// cmd/completion.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Prints a completion script for the given shell. Source it from your shell's
startup file, for example:

  echo 'source <(codex-usage completion bash)' >> ~/.bashrc
  codex-usage completion fish > ~/.config/fish/completions/codex-usage.fish`,
	DisableFlagsInUseLine: true,
	PersistentPreRun:      func(cmd *cobra.Command, args []string) {},
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeCompletion(cmd.OutOrStdout(), args[0])
	},
}

func writeCompletion(out io.Writer, shell string) error {
	switch shell {
	case "bash":
		return rootCmd.GenBashCompletionV2(out, true)
	case "zsh":
		return rootCmd.GenZshCompletion(out)
	case "fish":
		return rootCmd.GenFishCompletion(out, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(out)
	}
	return fmt.Errorf("unsupported shell %q", shell)
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
