// Package handlers implements the business logic behind the CLI commands.
// Handlers are framework-agnostic; the commands package only parses flags
// and delegates here.
package handlers

import (
	"context"

	"github.com/nexup/nexup/internal/config"
	"github.com/nexup/nexup/internal/provision"
	"github.com/nexup/nexup/internal/registry"
)

// Factory seams, replaceable in tests.
var (
	loadSettings   = config.LoadSettings
	loadDeployment = config.LoadDeployment
	newAPI         = provision.NewAPI
	openRegistry   = registry.New
)

// setup loads the tool settings and the deployment document.
func setup(configPath string) (*config.Settings, *config.Deployment, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	doc, err := loadDeployment(configPath)
	if err != nil {
		return nil, nil, err
	}
	return settings, doc, nil
}

// resolveEntry returns the newest host record, or the pinned generation
// when one was requested.
func resolveEntry(ctx context.Context, reg registry.Registry, deployment string, generation uint64) (registry.Entry, error) {
	if generation > 0 {
		return reg.ResolveAt(ctx, deployment, generation)
	}
	return reg.Resolve(ctx, deployment)
}

// newProvisioner wires a provisioner for the deployment against the real
// cloud API.
func newProvisioner(ctx context.Context, settings *config.Settings, doc *config.Deployment) (*provision.Provisioner, error) {
	api, err := newAPI(ctx, doc.Region)
	if err != nil {
		return nil, err
	}
	return provision.NewProvisioner(api, doc, settings.KeyPath(doc.Name)), nil
}
