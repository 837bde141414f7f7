package commands

import (
	"github.com/spf13/cobra"

	"github.com/nexup/nexup/cmd/nexup/handlers"
)

// Apply returns the command that converges the deployment's infrastructure.
func Apply() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or converge the deployment's infrastructure",
		Long: `Create every resource the deployment document declares that does not
already exist, in dependency order, and publish the resulting host record.

Re-applying a converged deployment performs no mutations. A failure leaves
already-created resources in place; fix the cause and apply again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deployment.yaml", "Path to the deployment document")

	return cmd
}
