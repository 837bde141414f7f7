package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/nexup/nexup/internal/configure"
	"github.com/nexup/nexup/internal/log"
	"github.com/nexup/nexup/internal/ssh"
)

// sshPort is a test seam; 0 means the SSH default.
var sshPort uint16

// Configure resolves the deployment's host record and applies the task list
// over SSH. An empty tasksPath selects the built-in Nexus installation
// list; a non-zero generation pins that record generation so a replaced
// host fails fast instead of being configured.
func Configure(ctx context.Context, configPath, tasksPath string, generation uint64) error {
	settings, doc, err := setup(configPath)
	if err != nil {
		return err
	}

	reg, err := openRegistry(settings.RegistryBackend, settings.RegistryPath())
	if err != nil {
		return err
	}
	defer reg.Close()

	entry, err := resolveEntry(ctx, reg, doc.Name, generation)
	if err != nil {
		return err
	}

	keyData, err := os.ReadFile(settings.KeyPath(doc.Name))
	if err != nil {
		return fmt.Errorf("failed to read the deployment's private key (has apply run?): %w", err)
	}
	signer, err := ssh.ParseKey(keyData, nil)
	if err != nil {
		return err
	}

	list := configure.NexusTasks(doc.Nexus)
	if tasksPath != "" {
		if list, err = configure.LoadTaskList(tasksPath); err != nil {
			return err
		}
	}

	runner := &configure.Runner{Signer: signer, Port: sshPort}
	if err := runner.Run(ctx, entry.Record, list); err != nil {
		return err
	}
	log.Info(ctx, "host configured",
		"deployment", doc.Name, "host", entry.Record.Address, "generation", entry.Generation)
	return nil
}
