package handlers

import (
	"context"

	"github.com/nexup/nexup/internal/log"
)

// Destroy removes the deployment's resources in reverse dependency order and
// invalidates its host record.
func Destroy(ctx context.Context, configPath string) error {
	settings, doc, err := setup(configPath)
	if err != nil {
		return err
	}
	p, err := newProvisioner(ctx, settings, doc)
	if err != nil {
		return err
	}

	if err := p.Destroy(ctx); err != nil {
		return err
	}

	reg, err := openRegistry(settings.RegistryBackend, settings.RegistryPath())
	if err != nil {
		return err
	}
	defer reg.Close()

	if err := reg.Invalidate(ctx, doc.Name); err != nil {
		return err
	}
	log.Info(ctx, "deployment destroyed", "deployment", doc.Name)
	return nil
}
