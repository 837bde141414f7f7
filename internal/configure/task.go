// Package configure applies an ordered task list to remote hosts over SSH,
// turning a freshly booted machine into a running Nexus Repository Manager.
// Every task compiles to a guarded shell sequence, so re-running a list
// against an already configured host converges without side effects.
package configure

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Type names one of the supported task kinds.
type Type string

const (
	TypeInstallPackage  Type = "install-package"
	TypeCreateAccount   Type = "create-account"
	TypeFetchArtifact   Type = "fetch-artifact"
	TypeExtractArchive  Type = "extract-archive"
	TypeSetOwnership    Type = "set-ownership"
	TypeInstallUnitFile Type = "install-unit-file"
	TypeManageService   Type = "manage-service"
)

// Task is one step of a configuration run. Which fields are required depends
// on the type; Validate enforces it.
type Task struct {
	// Name is a human label for logs and errors. Defaults to the type.
	Name string `yaml:"name,omitempty"`
	Type Type   `yaml:"type"`

	// install-package
	Package string `yaml:"package,omitempty"`

	// create-account
	Account string `yaml:"account,omitempty"`

	// fetch-artifact
	URL string `yaml:"url,omitempty"`

	// extract-archive
	Archive string `yaml:"archive,omitempty"`

	// fetch-artifact, extract-archive
	Destination string `yaml:"destination,omitempty"`

	// set-ownership
	Path  string `yaml:"path,omitempty"`
	Owner string `yaml:"owner,omitempty"`

	// install-unit-file
	UnitName string `yaml:"unit_name,omitempty"`
	Content  string `yaml:"content,omitempty"`

	// manage-service
	Service string `yaml:"service,omitempty"`
	State   string `yaml:"state,omitempty"`

	// Creates optionally guards the task: when the path exists on the host
	// the task is skipped entirely.
	Creates string `yaml:"creates,omitempty"`
}

// Label is the task's display name.
func (t Task) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.Type)
}

// TaskList is the YAML document a configuration run executes.
type TaskList struct {
	Tasks []Task `yaml:"tasks"`
}

// LoadTaskList reads and validates a task-list document.
func LoadTaskList(path string) (*TaskList, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task list: %w", err)
	}
	var l TaskList
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task list: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

var (
	ErrNoTasks         = fmt.Errorf("task list declares no tasks")
	ErrUnknownTaskType = fmt.Errorf("unknown task type")
	ErrIncompleteTask  = fmt.Errorf("task is missing a required field")
	ErrTaskOrder       = fmt.Errorf("task list violates the required ordering")
	ErrServiceState    = fmt.Errorf("unsupported service state")
)

// artifactChain is the required relative order of the artifact lifecycle
// types: an archive cannot be extracted before it is fetched, a unit file
// serves nothing before the extraction, and a service cannot be managed
// before its unit file exists.
var artifactChain = []Type{
	TypeFetchArtifact,
	TypeExtractArchive,
	TypeInstallUnitFile,
	TypeManageService,
}

// Validate checks every task for completeness and the list for ordering,
// before any connection is attempted.
func (l *TaskList) Validate() error {
	if len(l.Tasks) == 0 {
		return ErrNoTasks
	}
	for i, task := range l.Tasks {
		if err := task.validate(); err != nil {
			return fmt.Errorf("task %d (%s): %w", i, task.Label(), err)
		}
	}

	first := map[Type]int{}
	for i, task := range l.Tasks {
		if _, seen := first[task.Type]; !seen {
			first[task.Type] = i
		}
	}
	previous := -1
	var previousType Type
	for _, chainType := range artifactChain {
		index, present := first[chainType]
		if !present {
			continue
		}
		if index < previous {
			return fmt.Errorf("%w: %s must come after %s", ErrTaskOrder, chainType, previousType)
		}
		previous = index
		previousType = chainType
	}
	return nil
}

func (t Task) validate() error {
	switch t.Type {
	case TypeInstallPackage:
		if t.Package == "" {
			return fmt.Errorf("%w: package", ErrIncompleteTask)
		}
	case TypeCreateAccount:
		if t.Account == "" {
			return fmt.Errorf("%w: account", ErrIncompleteTask)
		}
	case TypeFetchArtifact:
		if t.URL == "" || t.Destination == "" {
			return fmt.Errorf("%w: url, destination", ErrIncompleteTask)
		}
	case TypeExtractArchive:
		if t.Archive == "" || t.Destination == "" {
			return fmt.Errorf("%w: archive, destination", ErrIncompleteTask)
		}
	case TypeSetOwnership:
		if t.Path == "" || t.Owner == "" {
			return fmt.Errorf("%w: path, owner", ErrIncompleteTask)
		}
	case TypeInstallUnitFile:
		if t.UnitName == "" || t.Content == "" {
			return fmt.Errorf("%w: unit_name, content", ErrIncompleteTask)
		}
	case TypeManageService:
		if t.Service == "" {
			return fmt.Errorf("%w: service", ErrIncompleteTask)
		}
		switch t.State {
		case "", "started", "stopped":
		default:
			return fmt.Errorf("%w: %q", ErrServiceState, t.State)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTaskType, t.Type)
	}
	return nil
}
