package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Settings are tool-level knobs, as opposed to the deployment document which
// declares infrastructure. Everything here can be overridden through
// NEXUP_-prefixed environment variables.
type Settings struct {
	// DataDir is where nexup keeps run-scoped state: the host registry
	// database, private keys and run logs.
	DataDir string

	// RegistryBackend selects the host registry implementation: "sqlite"
	// or "file".
	RegistryBackend string

	// LogsDir receives per-run log files. Empty disables file logging.
	LogsDir string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// StageImage is the container image pipeline stages run in. It must
	// carry the nexup binary on its PATH.
	StageImage string
}

const (
	defaultDataDir         = ".nexup"
	defaultRegistryBackend = "sqlite"
	defaultLogLevel        = "info"
	defaultStageImage      = "ghcr.io/nexup/nexup:latest"
)

// LoadSettings resolves tool settings from defaults and the environment.
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("registry_backend", defaultRegistryBackend)
	v.SetDefault("logs_dir", "")
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("stage_image", defaultStageImage)

	v.SetEnvPrefix("nexup")
	v.AutomaticEnv()

	s := &Settings{
		DataDir:         v.GetString("data_dir"),
		RegistryBackend: v.GetString("registry_backend"),
		LogsDir:         v.GetString("logs_dir"),
		LogLevel:        v.GetString("log_level"),
		StageImage:      v.GetString("stage_image"),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

var (
	ErrBadRegistryBackend = fmt.Errorf("unsupported registry backend")
	ErrBadLogLevel        = fmt.Errorf("unsupported log level")
)

func (s *Settings) Validate() error {
	switch s.RegistryBackend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("%w: %q", ErrBadRegistryBackend, s.RegistryBackend)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrBadLogLevel, s.LogLevel)
	}
	return nil
}

// RegistryPath is the location of the host registry for the selected
// backend.
func (s *Settings) RegistryPath() string {
	switch s.RegistryBackend {
	case "file":
		return filepath.Join(s.DataDir, "registry.json")
	default:
		return filepath.Join(s.DataDir, "registry.db")
	}
}

// KeyPath is where the deployment's SSH private key is stored.
func (s *Settings) KeyPath(deployment string) string {
	return filepath.Join(s.DataDir, deployment+".pem")
}
