package registry

import (
	"context"
	"fmt"
	"time"
)

// Entry is a published host record plus the bookkeeping that makes stale
// reads detectable.
type Entry struct {
	Record     Record    `json:"record"`
	InstanceID string    `json:"instance_id"`
	Generation uint64    `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	ErrNoRecord    = fmt.Errorf("no host record published for deployment")
	ErrStaleRecord = fmt.Errorf("host record generation is stale")
)

// now is a seam for tests.
var now = time.Now

// Registry persists host records across stage boundaries.
//
// Publish is the exactly-once production side: each call creates a new
// generation, never mutating an earlier one. Resolve is the at-least-once
// consumption side: it is safe to call repeatedly and always returns the
// newest generation. ResolveAt lets a consumer that cached a generation
// detect host replacement instead of configuring a dead address.
type Registry interface {
	Publish(ctx context.Context, deployment string, rec Record, instanceID string) (Entry, error)
	Resolve(ctx context.Context, deployment string) (Entry, error)
	ResolveAt(ctx context.Context, deployment string, generation uint64) (Entry, error)
	Invalidate(ctx context.Context, deployment string) error
	Close() error
}

// New constructs the registry backend selected by name.
func New(backend, path string) (Registry, error) {
	switch backend {
	case "file":
		return NewFile(path), nil
	case "sqlite":
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", backend)
	}
}
