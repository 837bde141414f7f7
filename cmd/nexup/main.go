// Package main is the entry point for the nexup CLI.
//
// nexup provisions an isolated AWS network with a single EC2 host, installs
// Nexus Repository Manager on it over SSH, and can run both stages as a
// pipeline in disposable docker containers.
//
// Commands: plan, apply, configure, deploy, destroy, version.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexup/nexup/cmd/nexup/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	commands.SetVersionInfo(version, commit)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
