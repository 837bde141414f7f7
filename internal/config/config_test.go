package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadDeployment(t *testing.T) {
	t.Run("minimal-document-gets-defaults", func(t *testing.T) {
		d, err := LoadDeployment(writeDoc(t, `
name: nexus-demo
instance:
  ami: ami-05f991c49d264708f
`))
		require.NoError(t, err)
		require.Equal(t, "nexus-demo", d.Name)
		require.Equal(t, "10.0.0.0/16", d.Network.VPCCIDR)
		require.Equal(t, "10.0.1.0/24", d.Network.SubnetCIDR)
		require.Equal(t, "t3.medium", d.Instance.Type)
		require.Equal(t, "ubuntu", d.Instance.LoginUser)
		require.Equal(t, int32(8081), d.Nexus.Port)
		// Default policy opens exactly the management and application ports.
		require.Len(t, d.Access, 2)
		require.True(t, d.AllowsPort(22))
		require.True(t, d.AllowsPort(8081))
		require.False(t, d.AllowsPort(80))
	})

	t.Run("explicit-rules-are-not-extended", func(t *testing.T) {
		// A policy without the management port is valid topology; the
		// configure stage is the layer that fails, with a connection error.
		d, err := LoadDeployment(writeDoc(t, `
name: locked-down
instance:
  ami: ami-0123
access:
  - port: 8081
`))
		require.NoError(t, err)
		require.False(t, d.AllowsPort(22))
		require.True(t, d.AllowsPort(8081))
		require.Equal(t, "tcp", d.Access[0].Protocol)
		require.Equal(t, "0.0.0.0/0", d.Access[0].Source)
	})

	t.Run("missing-name", func(t *testing.T) {
		_, err := LoadDeployment(writeDoc(t, `
instance:
  ami: ami-0123
`))
		require.ErrorIs(t, err, ErrNoName)
	})

	t.Run("missing-ami", func(t *testing.T) {
		_, err := LoadDeployment(writeDoc(t, `name: foo`))
		require.ErrorIs(t, err, ErrNoAMI)
	})

	t.Run("subnet-outside-vpc", func(t *testing.T) {
		_, err := LoadDeployment(writeDoc(t, `
name: foo
instance:
  ami: ami-0123
network:
  vpc_cidr: 10.0.0.0/16
  subnet_cidr: 192.168.1.0/24
`))
		require.ErrorIs(t, err, ErrSubnetOutsideVP)
	})

	t.Run("bad-rule-port", func(t *testing.T) {
		_, err := LoadDeployment(writeDoc(t, `
name: foo
instance:
  ami: ami-0123
access:
  - port: 70000
`))
		require.ErrorIs(t, err, ErrBadRule)
	})

	t.Run("bad-cidr", func(t *testing.T) {
		_, err := LoadDeployment(writeDoc(t, `
name: foo
instance:
  ami: ami-0123
network:
  vpc_cidr: not-a-cidr
`))
		require.ErrorIs(t, err, ErrBadCIDR)
	})
}

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := LoadSettings()
		require.NoError(t, err)
		require.Equal(t, "sqlite", s.RegistryBackend)
		require.Equal(t, filepath.Join(".nexup", "registry.db"), s.RegistryPath())
		// The pipeline runs this image with the tool as the command.
		require.Equal(t, "ghcr.io/nexup/nexup:latest", s.StageImage)
	})

	t.Run("env-override", func(t *testing.T) {
		t.Setenv("NEXUP_REGISTRY_BACKEND", "file")
		t.Setenv("NEXUP_DATA_DIR", "/var/lib/nexup")
		s, err := LoadSettings()
		require.NoError(t, err)
		require.Equal(t, "file", s.RegistryBackend)
		require.Equal(t, filepath.Join("/var/lib/nexup", "registry.json"), s.RegistryPath())
	})

	t.Run("bad-backend", func(t *testing.T) {
		t.Setenv("NEXUP_REGISTRY_BACKEND", "etcd")
		_, err := LoadSettings()
		require.ErrorIs(t, err, ErrBadRegistryBackend)
	})
}
