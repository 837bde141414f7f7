// Package docker wraps the docker SDK with just enough surface to run
// pipeline stages: pull an image if absent, run a container to completion
// with the workspace mounted, stream its logs and clean it up.
package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// stageLabel marks containers created by nexup so stray ones can be found
// and removed by hand.
const stageLabel = "dev.nexup.stage"

type Client struct {
	inner *client.Client
}

// New builds a client against the ambient docker daemon (honoring
// DOCKER_HOST and friends).
func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(
		client.WithAPIVersionNegotiation(),
		client.WithVersionFromEnv(),
		client.WithTLSClientConfigFromEnv(),
		client.WithHostFromEnv(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Client{inner: cli}, nil
}

// Request describes one container run.
type Request struct {
	Image        string
	Name         string
	Entrypoint   []string
	Cmd          []string
	Env          []string
	Labels       map[string]string
	Mounts       []mount.Mount
	PortBindings nat.PortMap

	// Timeout bounds the whole run, image pull included. Zero means the
	// 5 minute default.
	Timeout time.Duration

	// Logger receives the container's combined output while it runs.
	Logger io.Writer
}

// RunError reports a container that ran but exited non-zero.
type RunError struct {
	ExitCode int64
	Message  string
}

func (e *RunError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("container exited with non-zero exit code: %d", e.ExitCode)
	}
	return fmt.Sprintf("container exited with non-zero exit code: %d: %s", e.ExitCode, e.Message)
}

const defaultRunTimeout = 5 * time.Minute

func (r *Request) timeout() time.Duration {
	if r.Timeout == 0 {
		return defaultRunTimeout
	}
	return r.Timeout
}

// Run creates and starts the container, waits for it to exit and returns the
// container ID. A non-zero exit surfaces as *RunError; a run exceeding the
// request's timeout is cancelled.
func (c *Client) Run(ctx context.Context, req *Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout())
	defer cancel()

	cid, err := c.start(ctx, req)
	if err != nil {
		return "", err
	}

	statusCh, errCh := c.inner.ContainerWait(ctx, cid, container.WaitConditionNotRunning)

	if req.Logger != nil {
		logs, err := c.inner.ContainerLogs(ctx, cid, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			return cid, fmt.Errorf("failed to get logs: %w", err)
		}
		go func() {
			defer logs.Close()
			if _, err := stdcopy.StdCopy(req.Logger, req.Logger, logs); err != nil {
				_, _ = fmt.Fprintf(req.Logger, "error copying logs: %v", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return cid, fmt.Errorf("context cancelled while waiting for container to exit: %w", ctx.Err())
	case err := <-errCh:
		return cid, fmt.Errorf("waiting for container to exit: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return cid, &RunError{ExitCode: status.StatusCode, Message: status.Error.Message}
		}
		if status.StatusCode != 0 {
			return cid, &RunError{ExitCode: status.StatusCode}
		}
	}
	return cid, nil
}

func (c *Client) start(ctx context.Context, req *Request) (string, error) {
	if req.Image == "" {
		return "", fmt.Errorf("no image provided")
	}
	if req.PortBindings == nil {
		req.PortBindings = make(nat.PortMap)
	}
	exposedPorts := make(nat.PortSet)
	for port := range req.PortBindings {
		exposedPorts[port] = struct{}{}
	}

	if err := c.pull(ctx, req.Image); err != nil {
		return "", fmt.Errorf("pulling image: %w", err)
	}

	cresp, err := c.inner.ContainerCreate(ctx,
		&container.Config{
			Image:        req.Image,
			Entrypoint:   req.Entrypoint,
			Cmd:          req.Cmd,
			Env:          req.Env,
			AttachStdout: true,
			AttachStderr: true,
			Labels:       withDefaultLabels(req.Labels),
			ExposedPorts: exposedPorts,
		},
		&container.HostConfig{
			RestartPolicy: container.RestartPolicy{
				Name: container.RestartPolicyDisabled,
			},
			Mounts:       req.Mounts,
			PortBindings: req.PortBindings,
		},
		nil, nil, req.Name)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	if cresp.ID == "" {
		return "", fmt.Errorf("failed to create container, ID is empty")
	}

	if err := c.inner.ContainerStart(ctx, cresp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}
	return cresp.ID, nil
}

// pull fetches the image only when the daemon does not already have it.
func (c *Client) pull(ctx context.Context, ref string) error {
	if _, err := c.inner.ImageInspect(ctx, ref); err == nil {
		return nil
	} else if !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("checking if image exists: %w", err)
	}

	pull, err := c.inner.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	// Block until the image is pulled by discarding the reader.
	if _, err := io.Copy(io.Discard, pull); err != nil {
		return fmt.Errorf("pulling image: %w", err)
	}
	return nil
}

// Remove forcibly removes the container and its anonymous volumes.
func (c *Client) Remove(ctx context.Context, cid string) error {
	err := c.inner.ContainerRemove(ctx, cid, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("removing container: %w", err)
	}
	return nil
}

func withDefaultLabels(labels map[string]string) map[string]string {
	if labels == nil {
		labels = make(map[string]string)
	}
	if _, ok := labels[stageLabel]; !ok {
		labels[stageLabel] = "true"
	}
	return labels
}
