// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package; this package only parses arguments and wires the logger into the
// command context.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/nexup/nexup/internal/config"
)

// Root returns the root command for the nexup CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nexup",
		Short:         "Provision and configure a Nexus Repository Manager host on AWS",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			logger := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel(settings.LogLevel),
			}))
			cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	cmd.AddCommand(Plan())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Configure())
	cmd.AddCommand(Deploy())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Version())

	return cmd
}

func logLevel(level string) slog.Level {
	switch level {
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

var (
	version = "dev"
	commit  = "none"
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(v, c string) {
	version = v
	commit = c
}

// Version returns the version command.
func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("nexup %s (%s)\n", version, commit)
		},
	}
}
