package configure

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskCommands(t *testing.T) {
	t.Run("install-package is guarded by dpkg", func(t *testing.T) {
		cmds := Task{Type: TypeInstallPackage, Package: "curl"}.commands()
		require.Len(t, cmds, 1)
		assert.Contains(t, cmds[0], "dpkg -s curl > /dev/null 2>&1 ||")
		assert.Contains(t, cmds[0], "apt-get install -y curl")
	})

	t.Run("create-account is guarded by id", func(t *testing.T) {
		cmds := Task{Type: TypeCreateAccount, Account: "nexus"}.commands()
		require.Len(t, cmds, 1)
		assert.Contains(t, cmds[0], "id nexus > /dev/null 2>&1 ||")
		assert.Contains(t, cmds[0], "useradd --system")
	})

	t.Run("fetch-artifact skips an existing file", func(t *testing.T) {
		cmds := Task{
			Type:        TypeFetchArtifact,
			URL:         "https://example.com/nexus.tar.gz",
			Destination: "/tmp/nexus.tar.gz",
		}.commands()
		require.Len(t, cmds, 1)
		assert.True(t, strings.HasPrefix(cmds[0], "test -f /tmp/nexus.tar.gz ||"))
	})

	t.Run("creates guard wraps every command", func(t *testing.T) {
		cmds := Task{
			Type:        TypeExtractArchive,
			Archive:     "/tmp/nexus.tar.gz",
			Destination: "/opt",
			Creates:     "/opt/nexus-3.70.1-02",
		}.commands()
		require.Len(t, cmds, 2)
		for _, cmd := range cmds {
			assert.True(t, strings.HasPrefix(cmd, "test -e /opt/nexus-3.70.1-02 ||"), cmd)
		}
	})

	t.Run("shell metacharacters are quoted", func(t *testing.T) {
		cmds := Task{
			Type:        TypeFetchArtifact,
			URL:         "https://example.com/a.tar.gz?token=x&y=z",
			Destination: "/tmp/a b.tar.gz",
		}.commands()
		require.Len(t, cmds, 1)
		assert.Contains(t, cmds[0], "'https://example.com/a.tar.gz?token=x&y=z'")
		assert.Contains(t, cmds[0], "'/tmp/a b.tar.gz'")
	})

	t.Run("manage-service started enables then starts", func(t *testing.T) {
		cmds := Task{Type: TypeManageService, Service: "nexus", State: "started"}.commands()
		require.Len(t, cmds, 2)
		assert.Contains(t, cmds[0], "systemctl enable nexus")
		assert.Contains(t, cmds[1], "systemctl start nexus")
	})

	t.Run("manage-service stopped stops then disables", func(t *testing.T) {
		cmds := Task{Type: TypeManageService, Service: "nexus", State: "stopped"}.commands()
		require.Len(t, cmds, 2)
		assert.Contains(t, cmds[0], "systemctl stop nexus")
		assert.Contains(t, cmds[1], "systemctl disable nexus")
	})

	t.Run("unit file install reloads systemd once", func(t *testing.T) {
		cmds := Task{
			Type:     TypeInstallUnitFile,
			UnitName: "nexus.service",
			Content:  "[Unit]\nDescription=Nexus\n",
		}.commands()
		require.Len(t, cmds, 1)
		assert.Contains(t, cmds[0], "/etc/systemd/system/nexus.service")
		assert.Contains(t, cmds[0], "systemctl daemon-reload")
	})
}
