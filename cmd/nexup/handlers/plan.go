package handlers

import (
	"context"
	"fmt"
)

// Plan surveys the deployment and prints the steps apply would execute.
func Plan(ctx context.Context, configPath string) error {
	settings, doc, err := setup(configPath)
	if err != nil {
		return err
	}
	p, err := newProvisioner(ctx, settings, doc)
	if err != nil {
		return err
	}
	plan, err := p.Plan(ctx)
	if err != nil {
		return err
	}
	fmt.Print(plan.String())
	return nil
}
