package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

var _ Registry = (*file)(nil)

// file is a single-process registry backed by a JSON document, intended for
// the pipeline workspace volume where both stages mount the same directory.
type file struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a file-backed registry rooted at path. The file is created
// lazily on first publish.
func NewFile(path string) Registry {
	return &file{path: path}
}

// model is the on-disk envelope: newest-last entries per deployment.
type model struct {
	Deployments map[string][]Entry `json:"deployments"`
}

func (f *file) Publish(ctx context.Context, deployment string, rec Record, instanceID string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return Entry{}, err
	}
	entries := data.Deployments[deployment]
	entry := Entry{
		Record:     rec,
		InstanceID: instanceID,
		Generation: 1,
		CreatedAt:  now(),
	}
	if n := len(entries); n > 0 {
		entry.Generation = entries[n-1].Generation + 1
	}
	data.Deployments[deployment] = append(entries, entry)
	if err := f.write(data); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (f *file) Resolve(ctx context.Context, deployment string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return Entry{}, err
	}
	entries := data.Deployments[deployment]
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoRecord, deployment)
	}
	return entries[len(entries)-1], nil
}

func (f *file) ResolveAt(ctx context.Context, deployment string, generation uint64) (Entry, error) {
	latest, err := f.Resolve(ctx, deployment)
	if err != nil {
		return Entry{}, err
	}
	if latest.Generation != generation {
		return Entry{}, fmt.Errorf(
			"%w: requested generation %d, latest is %d",
			ErrStaleRecord, generation, latest.Generation,
		)
	}
	return latest, nil
}

func (f *file) Invalidate(ctx context.Context, deployment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return err
	}
	delete(data.Deployments, deployment)
	return f.write(data)
}

func (f *file) Close() error { return nil }

func (f *file) read() (*model, error) {
	data := &model{Deployments: make(map[string][]Entry)}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return data, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	if data.Deployments == nil {
		data.Deployments = make(map[string][]Entry)
	}
	return data, nil
}

func (f *file) write(data *model) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := os.WriteFile(f.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}
