package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types/mount"

	"github.com/nexup/nexup/internal/docker"
	"github.com/nexup/nexup/internal/log"
)

// WorkspaceTarget is where the shared pipeline workspace appears inside
// stage containers. The workspace carries the deployment document, the
// private key and the file-backend registry; it is the ONLY state stages
// share.
const WorkspaceTarget = "/workspace"

// stageTimeout bounds one stage's container run. Provisioning includes the
// instance reachability wait, so this must comfortably exceed it.
const stageTimeout = 30 * time.Minute

// DockerStage wraps one stage as a disposable container run. The container
// is removed when the stage ends, success or not. env entries are passed
// through to the container on top of the workspace wiring, so the caller can
// forward credentials.
func DockerStage(cli *docker.Client, deployment, image, workspace string, cmd, env []string, logs io.Writer) StageFunc {
	return func(ctx context.Context) error {
		cid, err := cli.Run(ctx, &docker.Request{
			Image: image,
			Cmd:   cmd,
			Env: append([]string{
				"NEXUP_DATA_DIR=" + WorkspaceTarget,
				"NEXUP_REGISTRY_BACKEND=file",
			}, env...),
			Timeout: stageTimeout,
			Labels: map[string]string{"dev.nexup.deployment": deployment},
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: workspace,
				Target: WorkspaceTarget,
			}},
			Logger: logs,
		})
		if cid != "" {
			if rmErr := cli.Remove(context.WithoutCancel(ctx), cid); rmErr != nil {
				log.Warn(ctx, "failed to remove stage container", "id", cid, "error", rmErr)
			}
		}
		return err
	}
}
