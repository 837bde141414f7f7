package configure

import (
	"context"

	"github.com/chainguard-dev/clog"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/nexup/nexup/internal/registry"
	"github.com/nexup/nexup/internal/retry"
	"github.com/nexup/nexup/internal/ssh"
)

// Runner executes task lists against hosts named by their registry records.
// Connection establishment is retried with backoff (the host may still be
// booting); task execution is not.
type Runner struct {
	// Signer authenticates the management account.
	Signer gossh.Signer

	// Port overrides the SSH port; 0 means the default of 22.
	Port uint16

	// ConnectRetry tunes the connection backoff.
	ConnectRetry []retry.Option
}

// Run applies the task list to one host, strictly in order. The first
// failing task aborts the rest; the error is a *ConnectError or *TaskError.
func (r *Runner) Run(ctx context.Context, rec registry.Record, list *TaskList) error {
	if err := list.Validate(); err != nil {
		return err
	}
	log := clog.FromContext(ctx).With("host", rec.Address, "user", rec.User)

	var client *gossh.Client
	err := retry.WithExponentialBackoff(ctx, func() error {
		c, err := ssh.Connect(rec.Address, r.Port, rec.User, r.Signer)
		if err != nil {
			log.Debug("connection attempt failed", "error", err)
			return err
		}
		client = c
		return nil
	}, r.ConnectRetry...)
	if err != nil {
		return &ConnectError{Host: rec.Address, Err: err}
	}
	defer client.Close()
	log.Info("management channel established")

	for _, task := range list.Tasks {
		log.Info("applying task", "task", task.Label())
		cmds := append([]string{"set -e"}, task.commands()...)
		_, stderr, err := ssh.ExecIn(client, ssh.ShellSh, cmds...)
		if err != nil {
			return &TaskError{
				Host:   rec.Address,
				Task:   task.Label(),
				Stderr: stderr,
				Err:    err,
			}
		}
	}
	log.Info("all tasks applied", "tasks", len(list.Tasks))
	return nil
}

// RunAll applies the task list to every host concurrently. Per-host
// execution stays strictly sequential; the first host error cancels the
// remaining hosts.
func (r *Runner) RunAll(ctx context.Context, recs []registry.Record, list *TaskList) error {
	if err := list.Validate(); err != nil {
		return err
	}
	group, ctx := errgroup.WithContext(ctx)
	for _, rec := range recs {
		group.Go(func() error {
			return r.Run(ctx, rec, list)
		})
	}
	return group.Wait()
}
