package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wspotter/kit/tool"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every candidate tool against the contract without running it",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().String("plugin-dir", "", "Also validate declarations in this directory")

	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	pluginDir, _ := cmd.Flags().GetString("plugin-dir")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	rt, _, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	sources := rt.Sources
	if pluginDir != "" {
		sources = append(sources, tool.NewDirectorySource(pluginDir))
	}

	reports, err := tool.Inspect(cmd.Context(), sources...)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	if format == "json" {
		if err := printReportsJSON(cmd.OutOrStdout(), reports); err != nil {
			return exitError(exitRuntime, "marshaling reports: %v", err)
		}
	} else {
		printReportsText(cmd.OutOrStdout(), reports)
	}

	if !tool.AllPassed(reports) {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

func printReportsText(w io.Writer, reports []tool.CandidateReport) {
	for _, report := range reports {
		verdict := "OK"
		if !report.OK {
			verdict = "FAIL"
		}
		fmt.Fprintf(w, "%s: %s\n", verdict, report.Module)
		if len(report.Issues) == 0 {
			continue
		}
		for _, line := range strings.Split(tool.FormatIssues(report.Issues), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func printReportsJSON(w io.Writer, reports []tool.CandidateReport) error {
	if reports == nil {
		reports = []tool.CandidateReport{}
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
