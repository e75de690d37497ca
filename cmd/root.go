// cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/codex-usage/codex-usage/internal/config"
	"github.com/codex-usage/codex-usage/internal/logger"
	"github.com/codex-usage/codex-usage/internal/service"
)

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool reports whether an environment variable is set to a true value
func getEnvBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

var configDir string
var debugMode bool
var noColor bool

// Populated by PersistentPreRunE
var (
	settings *config.Settings
	paths    config.Paths
	log      = zap.NewNop()
	svc      *service.Service
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "codex-usage",
	Short: "Track Codex usage and rotate between accounts",
	Long: `codex-usage keeps several Codex logins side by side, reports how much of each
account's 5-hour and weekly quota is left, and switches the live login to the
next account in a rotation when the current one runs low.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		if err := setup(); err != nil {
			return err
		}
		if debugMode {
			log.Debug("command", zap.String("line", commandLine(cmd, args)))
		}
		cmd.SetContext(logger.ContextWithLogger(cmd.Context(), log))
		return nil
	},
}

// setup loads settings and builds the logger. The service is opened lazily.
func setup() error {
	paths = config.NewPaths(configDir, "")
	s, err := config.LoadSettings(paths.SettingsPath())
	if err != nil {
		return err
	}
	settings = s
	if s.CodexHome != "" {
		paths = config.NewPaths(configDir, s.CodexHome)
	}

	opts := logger.Options{Level: s.Logging.Level, Format: s.Logging.Format}
	if debugMode {
		opts.Level = "debug"
		if file, ok := debugLogFile(); ok {
			opts.DebugFile = file
		}
	}
	l, err := logger.NewLogger(opts)
	if err != nil {
		return err
	}
	log = l
	log.Debug("paths", zap.String("config_dir", paths.ConfigDir), zap.String("codex_dir", paths.CodexDir))
	return nil
}

// debugLogFile prepares logs/debug.log and writes a session header
func debugLogFile() (string, bool) {
	if err := os.MkdirAll(paths.LogDir(), 0700); err != nil {
		return "", false
	}
	logPath := filepath.Join(paths.LogDir(), "debug.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return "", false
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(f, "\n=== Debug session started: %s ===\n", timestamp)
	return logPath, true
}

// commandLine reconstructs the invoked command for the debug log
func commandLine(cmd *cobra.Command, args []string) string {
	fullCmd := cmd.CommandPath()
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name == "debug" {
			return
		}
		if f.Value.Type() == "bool" {
			fullCmd += " --" + f.Name
		} else {
			fullCmd += " --" + f.Name + "=" + f.Value.String()
		}
	})
	if len(args) > 0 {
		fullCmd += " " + strings.Join(args, " ")
	}
	return fullCmd
}

// openService returns the shared service, building it on first use
func openService() (*service.Service, error) {
	if svc != nil {
		return svc, nil
	}
	s, err := service.New(service.Config{
		Paths:    paths,
		Settings: settings,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	svc = s
	return svc, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if svc != nil {
		svc.Close()
	}
	_ = log.Sync()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", getEnvOrDefault("CODEX_USAGE_DIR", ""), "config directory (default is $HOME/.codex-usage) [env CODEX_USAGE_DIR]")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", getEnvBool("CODEX_USAGE_VERBOSE"), "Enable debug output [env CODEX_USAGE_VERBOSE]")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
}
