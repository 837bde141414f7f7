package configure

// script.go compiles tasks to remote shell sequences. Every sequence is
// guarded by an existence check so a re-run against a converged host is a
// pure no-op; values interpolated into commands go through shellquote.

import (
	"fmt"

	"github.com/kballard/go-shellquote"
)

// commands renders the task as an ordered shell command sequence. The runner
// executes each sequence within one shell instance under 'set -e'.
func (t Task) commands() []string {
	var cmds []string
	switch t.Type {
	case TypeInstallPackage:
		pkg := shellquote.Join(t.Package)
		cmds = []string{
			fmt.Sprintf("dpkg -s %s > /dev/null 2>&1 || { sudo apt-get update -q && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y %s; }", pkg, pkg),
		}
	case TypeCreateAccount:
		account := shellquote.Join(t.Account)
		cmds = []string{
			fmt.Sprintf("id %s > /dev/null 2>&1 || sudo useradd --system --create-home --shell /usr/sbin/nologin %s", account, account),
		}
	case TypeFetchArtifact:
		destination := shellquote.Join(t.Destination)
		cmds = []string{
			fmt.Sprintf("test -f %s || sudo curl -fsSL -o %s %s", destination, destination, shellquote.Join(t.URL)),
		}
	case TypeExtractArchive:
		destination := shellquote.Join(t.Destination)
		cmds = []string{
			fmt.Sprintf("sudo mkdir -p %s", destination),
			fmt.Sprintf("sudo tar -xzf %s -C %s", shellquote.Join(t.Archive), destination),
		}
	case TypeSetOwnership:
		owner := shellquote.Join(t.Owner)
		cmds = []string{
			fmt.Sprintf("sudo chown -R %s:%s %s", owner, owner, shellquote.Join(t.Path)),
		}
	case TypeInstallUnitFile:
		unitPath := shellquote.Join("/etc/systemd/system/" + t.UnitName)
		cmds = []string{
			fmt.Sprintf("test -f %s || { printf '%%s' %s | sudo tee %s > /dev/null && sudo systemctl daemon-reload; }", unitPath, shellquote.Join(t.Content), unitPath),
		}
	case TypeManageService:
		service := shellquote.Join(t.Service)
		if t.State == "stopped" {
			cmds = []string{
				fmt.Sprintf("! sudo systemctl is-active %s > /dev/null 2>&1 || sudo systemctl stop %s", service, service),
				fmt.Sprintf("! sudo systemctl is-enabled %s > /dev/null 2>&1 || sudo systemctl disable %s", service, service),
			}
		} else {
			cmds = []string{
				fmt.Sprintf("sudo systemctl is-enabled %s > /dev/null 2>&1 || sudo systemctl enable %s", service, service),
				fmt.Sprintf("sudo systemctl is-active %s > /dev/null 2>&1 || sudo systemctl start %s", service, service),
			}
		}
	}

	if t.Creates != "" {
		guarded := make([]string, len(cmds))
		for i, cmd := range cmds {
			guarded[i] = fmt.Sprintf("test -e %s || { %s; }", shellquote.Join(t.Creates), cmd)
		}
		cmds = guarded
	}
	return cmds
}
