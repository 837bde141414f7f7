package commands

import (
	"github.com/spf13/cobra"

	"github.com/nexup/nexup/cmd/nexup/handlers"
)

// Plan returns the command that previews what apply would change.
func Plan() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change, without touching anything",
		Long: `Survey the cloud account for the deployment's resources and print the
ordered list of steps apply would execute. A converged deployment plans
zero changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Plan(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deployment.yaml", "Path to the deployment document")

	return cmd
}
