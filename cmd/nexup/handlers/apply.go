package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexup/nexup/internal/log"
	"github.com/nexup/nexup/internal/registry"
)

// Apply converges the deployment's infrastructure and publishes the
// resulting host record. The record generation is only bumped when the host
// actually changed; a converged re-apply leaves the registry untouched.
func Apply(ctx context.Context, configPath string) error {
	settings, doc, err := setup(configPath)
	if err != nil {
		return err
	}
	p, err := newProvisioner(ctx, settings, doc)
	if err != nil {
		return err
	}

	host, err := p.Apply(ctx)
	if err != nil {
		return err
	}

	reg, err := openRegistry(settings.RegistryBackend, settings.RegistryPath())
	if err != nil {
		return err
	}
	defer reg.Close()

	rec := registry.Record{Address: host.Address, User: host.LoginUser}
	current, err := reg.Resolve(ctx, doc.Name)
	switch {
	case errors.Is(err, registry.ErrNoRecord):
	case err != nil:
		return err
	case current.InstanceID == host.InstanceID && current.Record == rec:
		// Same host, same record: nothing to publish.
		fmt.Println(rec.String())
		return nil
	}

	entry, err := reg.Publish(ctx, doc.Name, rec, host.InstanceID)
	if err != nil {
		return err
	}
	log.Info(ctx, "published host record",
		"deployment", doc.Name, "generation", entry.Generation)
	fmt.Println(rec.String())
	return nil
}
