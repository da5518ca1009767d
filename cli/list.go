package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewListCmd creates the "list" subcommand.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered tools",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")

	rt, _, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	tools, err := rt.Registry.Discover(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "discovering tools: %v", err)
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(tools, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "marshaling tools: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	case "text":
	default:
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	if len(tools) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tools discovered.")
		return nil
	}
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tMODULE\tVERSION\tRUNNABLE")
	for _, t := range tools {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%t\n", t.ID, t.Name, t.Module, t.Version, t.Runnable)
	}
	return writer.Flush()
}
