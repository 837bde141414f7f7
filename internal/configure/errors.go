package configure

import "fmt"

// ConnectError reports that the management channel to a host could not be
// established at all. It is the expected failure mode when the access policy
// has no SSH rule or the host is still booting; no task has run when it is
// returned.
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("host %s is unreachable: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TaskError reports that a task's remote command sequence exited non-zero.
// It aborts the remaining tasks for its host; tasks already applied are left
// in place (every task is idempotent, so the run can simply be repeated).
type TaskError struct {
	Host   string
	Task   string
	Stderr string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed on host %s: %v", e.Task, e.Host, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
