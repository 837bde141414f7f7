package commands

import (
	"github.com/spf13/cobra"

	"github.com/nexup/nexup/cmd/nexup/handlers"
)

// Configure returns the command that applies the configuration task list to
// the deployment's host.
func Configure() *cobra.Command {
	var (
		configPath string
		tasksPath  string
		generation uint64
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Install and start Nexus on the deployment's host",
		Long: `Resolve the deployment's host record and apply the configuration task
list over SSH. Without --tasks the built-in Nexus installation list is used.

Every task is idempotent; re-running against a configured host converges
without side effects. Use --generation to pin a specific host record
generation; a replaced host then fails fast instead of being configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Configure(cmd.Context(), configPath, tasksPath, generation)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deployment.yaml", "Path to the deployment document")
	cmd.Flags().StringVarP(&tasksPath, "tasks", "t", "", "Path to a task list document (default: built-in Nexus tasks)")
	cmd.Flags().Uint64VarP(&generation, "generation", "g", 0, "Pin a host record generation (0 = newest)")

	return cmd
}
