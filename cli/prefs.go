package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/wspotter/kit/prefs"
)

// NewPrefsCmd creates the "prefs" command group.
func NewPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect or seed long-term preferences",
	}
	cmd.AddCommand(newPrefsShowCmd())
	cmd.AddCommand(newPrefsImportCmd())
	return cmd
}

func newPrefsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the preferences tools will see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			p, err := rt.Preferences.Load(cmd.Context())
			if err != nil {
				return exitError(exitRuntime, "loading preferences: %v", err)
			}
			return printJSON(cmd, p)
		},
	}
}

func newPrefsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace stored preferences with a JSON or YAML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0]) // #nosec G304 -- path from user CLI argument
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return exitError(exitFileNotFound, "file not found: %s", args[0])
				}
				return exitError(exitRuntime, "reading preferences: %v", err)
			}
			doc, err := parsePayload(data)
			if err != nil {
				return exitError(exitInputParse, "parsing preferences: %v", err)
			}
			p, err := prefs.Decode(doc)
			if err != nil {
				return exitError(exitInputParse, "%v", err)
			}

			rt, logger, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			writer, ok := rt.Preferences.(prefs.Writer)
			if !ok {
				return exitError(exitRuntime, "preferences backend %q is read-only", rt.Config.Preferences.Backend)
			}
			if err := writer.Save(cmd.Context(), p); err != nil {
				return exitError(exitRuntime, "saving preferences: %v", err)
			}
			logger.Info("preferences saved", "backend", rt.Config.Preferences.Backend)
			return printJSON(cmd, p)
		},
	}
}
