package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexup/nexup/internal/config"
	"github.com/nexup/nexup/internal/docker"
	"github.com/nexup/nexup/internal/log"
	"github.com/nexup/nexup/internal/pipeline"
	"github.com/nexup/nexup/internal/registry"
)

// workspaceDocument is the deployment document's name inside the pipeline
// workspace; stage containers read it from there.
const workspaceDocument = "deployment.yaml"

// Deploy runs the full two-stage pipeline and prints the resulting host
// address. Stages run in disposable docker containers unless local is set,
// in which case they run in-process.
func Deploy(ctx context.Context, configPath string, local bool) error {
	settings, doc, err := setup(configPath)
	if err != nil {
		return err
	}

	var p *pipeline.Pipeline
	if local {
		reg, err := openRegistry(settings.RegistryBackend, settings.RegistryPath())
		if err != nil {
			return err
		}
		defer reg.Close()
		p = pipeline.New(doc.Name, reg,
			func(ctx context.Context) error { return Apply(ctx, configPath) },
			func(ctx context.Context) error { return Configure(ctx, configPath, "", 0) },
		)
	} else {
		reg, stages, err := dockerStages(settings, doc.Name, configPath)
		if err != nil {
			return err
		}
		defer reg.Close()
		p = pipeline.New(doc.Name, reg, stages[0], stages[1])
	}

	ctx, closeLogs := log.SetupRunLogging(ctx, settings.LogsDir, p.RunID, doc.Name)
	defer closeLogs()

	result, err := p.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Println(result.Address)
	return nil
}

// dockerStages wires both stages as container runs sharing the workspace
// directory, which carries the deployment document, the private key and the
// file-backend registry. The parent process reads the pipeline result from
// that same registry file.
func dockerStages(settings *config.Settings, deployment, configPath string) (registry.Registry, [2]pipeline.StageFunc, error) {
	var stages [2]pipeline.StageFunc

	cli, err := docker.New()
	if err != nil {
		return nil, stages, err
	}
	workspace, err := stageWorkspace(settings.DataDir, configPath)
	if err != nil {
		return nil, stages, err
	}
	reg := registry.NewFile(filepath.Join(workspace, "registry.json"))

	document := pipeline.WorkspaceTarget + "/" + workspaceDocument
	env := awsEnviron(os.Environ())
	stages[0] = pipeline.DockerStage(cli, deployment, settings.StageImage, workspace,
		[]string{"nexup", "apply", "-c", document}, env, os.Stderr)
	stages[1] = pipeline.DockerStage(cli, deployment, settings.StageImage, workspace,
		[]string{"nexup", "configure", "-c", document}, env, os.Stderr)
	return reg, stages, nil
}

// awsEnviron filters environ down to the AWS credential and configuration
// variables. The provision stage resolves its credentials from the ambient
// chain, which would otherwise be empty inside the container.
func awsEnviron(environ []string) []string {
	var out []string
	for _, kv := range environ {
		if strings.HasPrefix(kv, "AWS_") {
			out = append(out, kv)
		}
	}
	return out
}

// stageWorkspace ensures the workspace directory exists and carries the
// deployment document.
func stageWorkspace(dataDir, configPath string) (string, error) {
	workspace, err := filepath.Abs(dataDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return "", err
	}
	if err := copyFile(configPath, filepath.Join(workspace, workspaceDocument)); err != nil {
		return "", err
	}
	return workspace, nil
}

func copyFile(src, dst string) error {
	// #nosec G304
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	// #nosec G304
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
