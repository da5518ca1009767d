// Package cli implements the kit command line.
package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wspotter/kit/daemon"
)

// NewRootCmd builds the kit command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "kit",
		Short: "Kit tool host",
		Long:  "Kit discovers, validates, and runs contract-checked tools over HTTP, MCP, or the command line.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		Version:      version,
	}

	root.PersistentFlags().String("config", "", "Path to kit.yaml (default: ./kit.yaml, then ~/.kit/config.yaml)")
	root.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	root.PersistentFlags().Bool("quiet", false, "Suppress all output except errors")

	root.AddCommand(NewListCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewServeCmd(version))
	root.AddCommand(NewMCPCmd(version))
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewPrefsCmd())
	return root
}

// loadConfig resolves and loads kit.yaml for the current invocation.
func loadConfig(cmd *cobra.Command) (daemon.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	path, found, err := daemon.DiscoverConfigPath(explicit)
	if err != nil {
		return daemon.Config{}, exitError(exitFileNotFound, "%v", err)
	}
	if !found {
		path = ""
	}
	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		return daemon.Config{}, exitError(exitValidation, "loading config: %v", err)
	}
	return cfg, nil
}

// newLogger writes to stderr at the configured level; --verbose and --quiet win.
func newLogger(cmd *cobra.Command, cfg daemon.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}

	var out io.Writer = cmd.ErrOrStderr()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// openRuntime loads config and builds the tool host. The caller closes it.
func openRuntime(cmd *cobra.Command) (*daemon.Runtime, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cmd, cfg)
	rt, err := daemon.Build(cfg, logger)
	if err != nil {
		return nil, nil, exitError(exitRuntime, "building runtime: %v", err)
	}
	return rt, logger, nil
}
