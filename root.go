package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/baidupan-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
	flagDebug      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Resolved

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "baidupan-go",
		Short:   "Baidu Netdisk CLI client",
		Long:    "A command-line client for Baidu Netdisk: browse, upload, download, and manage files.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable info logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging, including HTTP requests")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	cmd.MarkFlagsMutuallyExclusive("debug", "quiet")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newQuotaCmd(),
		newLsCmd(),
		newSearchCmd(),
		newListAllCmd(),
		newStatCmd(),
		newMetaCmd(),
		newGetCmd(),
		newPutCmd(),
		newMkdirCmd(),
		newRmCmd(),
		newMvCmd(),
		newCpCmd(),
		newRenameCmd(),
	)

	return cmd
}

// loadConfig resolves the effective configuration and stores it in
// resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if cmd.Flags().Changed("debug") {
		cli.Debug = &flagDebug
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates the logger for a command. The config file sets the
// baseline level and format; --debug, --verbose, and --quiet override it.
func buildLogger() *slog.Logger {
	return newLogger(os.Stderr, isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
}

func newLogger(w io.Writer, terminal bool) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if resolvedCfg != nil {
		level = parseLevel(resolvedCfg.Logging.LogLevel)
		format = resolvedCfg.Logging.LogFormat
	}

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	case resolvedCfg != nil && resolvedCfg.Network.Debug:
		// Request logging is emitted at Debug.
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !terminal) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
