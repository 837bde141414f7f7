package commands

import (
	"github.com/spf13/cobra"

	"github.com/nexup/nexup/cmd/nexup/handlers"
)

// Destroy returns the command that tears the deployment down.
func Destroy() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove every resource the deployment owns",
		Long: `Remove the deployment's resources in reverse dependency order and
invalidate its host record. Only resources carrying the deployment tag are
touched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deployment.yaml", "Path to the deployment document")

	return cmd
}
