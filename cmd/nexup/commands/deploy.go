package commands

import (
	"github.com/spf13/cobra"

	"github.com/nexup/nexup/cmd/nexup/handlers"
)

// Deploy returns the command that runs the full two-stage pipeline.
func Deploy() *cobra.Command {
	var (
		configPath string
		local      bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run the provision and configure stages as one pipeline",
		Long: `Run the full pipeline: provision the infrastructure, then configure the
host. Each stage runs in its own disposable docker container; the stages
share only the pipeline workspace carrying the host registry.

With --local the stages run in-process instead, for environments without a
docker daemon. The pipeline prints the host's public address on success.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), configPath, local)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deployment.yaml", "Path to the deployment document")
	cmd.Flags().BoolVar(&local, "local", false, "Run stages in-process instead of docker containers")

	return cmd
}
