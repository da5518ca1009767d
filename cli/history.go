package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wspotter/kit/tool"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent dispatch records",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}

	cmd.Flags().String("tool", "", "Only show dispatches of this tool id")
	cmd.Flags().IntP("limit", "n", 20, "Maximum records to show (0 for all)")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	toolID, _ := cmd.Flags().GetString("tool")
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}
	if limit < 0 {
		return exitError(exitInputParse, "--limit must be >= 0")
	}

	rt, _, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if rt.History == nil {
		return exitError(exitRuntime, "dispatch history is disabled (history.backend: none)")
	}

	if len(args) == 1 {
		rec, ok, err := rt.History.Get(cmd.Context(), args[0])
		if err != nil {
			return exitError(exitRuntime, "reading history: %v", err)
		}
		if !ok {
			return exitError(exitNotFound, "run %q not found", args[0])
		}
		return printJSON(cmd, rec)
	}

	records, err := rt.History.List(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "reading history: %v", err)
	}
	records = tool.FilterRecords(records, toolID, limit)

	if format == "json" {
		if records == nil {
			records = []tool.DispatchRecord{}
		}
		return printJSON(cmd, records)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No dispatches recorded.")
		return nil
	}
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTOOL\tSTATUS\tDURATION_MS\tSTARTED")
	for _, rec := range records {
		status := rec.Status
		if rec.ErrorCode != "" {
			status = rec.ErrorCode
		}
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\n",
			rec.ID, rec.ToolID, status, rec.DurationMS, rec.StartedAt.Format(time.RFC3339))
	}
	return writer.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "marshaling output: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
