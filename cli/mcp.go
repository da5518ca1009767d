package cli

import (
	"github.com/spf13/cobra"

	"github.com/wspotter/kit/daemon"
)

// NewMCPCmd creates the "mcp" subcommand.
func NewMCPCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve runnable tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, logger, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			bridge, err := daemon.NewMCPBridge(cmd.Context(), daemon.MCPConfig{
				Registry: rt.Registry,
				Name:     "kit",
				Version:  version,
				Logger:   logger,
			})
			if err != nil {
				return exitError(exitRuntime, "starting mcp bridge: %v", err)
			}
			logger.Info("mcp bridge ready", "tools", bridge.Tools())

			if err := bridge.ServeStdio(); err != nil {
				return exitError(exitRuntime, "mcp server error: %v", err)
			}
			return nil
		},
	}
}
