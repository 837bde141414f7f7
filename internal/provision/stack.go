package provision

import (
	"context"
	"errors"
	"slices"
)

type (
	// Stack is a LIFO queue of destructors. Resources are pushed in
	// creation order and destroyed in reverse, so nothing is deleted while
	// something that references it is still live.
	Stack struct {
		destructors []destructor
	}
	destructor func(ctx context.Context) error
)

// Push adds a destructor, to be invoked after every destructor pushed later.
func (s *Stack) Push(d destructor) {
	s.destructors = append(s.destructors, d)
}

// Destroy calls all accumulated destructors in the reverse order they were
// added, returning all encountered errors joined.
func (s *Stack) Destroy(ctx context.Context) error {
	var errs error
	for _, destructor := range slices.Backward(s.destructors) {
		errs = errors.Join(errs, destructor(ctx))
	}
	return errs
}
