package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/beacon/internal/app"
	"github.com/dotcommander/beacon/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := newRootCmd(version)
	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Error("command failed", "error", err.Error())
		}
	}
	return err
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "beacon",
		Short:         "Agent hook event relay (envelopes, delivery journal, TTS fallback)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				// Hook handlers (the hidden subcommands) must exit clean
				// even when the tool config directory cannot be created,
				// as in sandboxes without HOME. Operator commands still
				// surface the error.
				if cmd.Hidden {
					slog.Warn("tool config dir unavailable", "error", err)
				} else {
					return err
				}
			}

			// Wire --journal-path into the app-level resolver.
			if journalPath, err := cmd.Flags().GetString("journal-path"); err == nil && journalPath != "" {
				app.SetJournalPathOverride(journalPath)
			}

			return nil
		},
	}

	root.PersistentFlags().String("journal-path", "", "Override delivery journal path")
	root.Flags().BoolP("version", "v", false, "version for beacon")

	root.AddCommand(NewHookCmd())
	root.AddCommand(NewJournalCmd())
	root.AddCommand(NewDoctorCmd())
	root.AddCommand(NewSchemaCmd(root))

	return root
}
