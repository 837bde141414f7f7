package configure

import (
	"fmt"

	"github.com/nexup/nexup/internal/config"
)

const nexusAccount = "nexus"

// NexusTasks is the built-in task list installing Nexus Repository Manager:
// Java runtime, a dedicated service account, the distribution tarball
// extracted under /opt, ownership, a systemd unit and finally the running
// service.
func NexusTasks(spec config.NexusSpec) *TaskList {
	installDir := "/opt/nexus-" + spec.Version
	tarball := fmt.Sprintf("/tmp/nexus-%s-unix.tar.gz", spec.Version)
	downloadURL := spec.DownloadURL
	if downloadURL == "" {
		downloadURL = fmt.Sprintf("https://download.sonatype.com/nexus/3/nexus-%s-unix.tar.gz", spec.Version)
	}

	return &TaskList{Tasks: []Task{
		{
			Name:    "install curl",
			Type:    TypeInstallPackage,
			Package: "curl",
		},
		{
			Name:    "install java runtime",
			Type:    TypeInstallPackage,
			Package: "openjdk-11-jre-headless",
		},
		{
			Name:    "create nexus service account",
			Type:    TypeCreateAccount,
			Account: nexusAccount,
		},
		{
			Name:        "download nexus distribution",
			Type:        TypeFetchArtifact,
			URL:         downloadURL,
			Destination: tarball,
			Creates:     installDir,
		},
		{
			Name:        "extract nexus distribution",
			Type:        TypeExtractArchive,
			Archive:     tarball,
			Destination: "/opt",
			Creates:     installDir,
		},
		{
			Name:  "own the installation",
			Type:  TypeSetOwnership,
			Path:  installDir,
			Owner: nexusAccount,
		},
		{
			Name:  "own the working directory",
			Type:  TypeSetOwnership,
			Path:  "/opt/sonatype-work",
			Owner: nexusAccount,
		},
		{
			Name:     "install nexus unit file",
			Type:     TypeInstallUnitFile,
			UnitName: "nexus.service",
			Content:  nexusUnit(installDir),
		},
		{
			Name:    "enable and start nexus",
			Type:    TypeManageService,
			Service: "nexus",
			State:   "started",
		},
	}}
}

func nexusUnit(installDir string) string {
	return fmt.Sprintf(`[Unit]
Description=Nexus Repository Manager
After=network.target

[Service]
Type=forking
LimitNOFILE=65536
User=%s
ExecStart=%s/bin/nexus start
ExecStop=%s/bin/nexus stop
Restart=on-abort

[Install]
WantedBy=multi-user.target
`, nexusAccount, installDir, installDir)
}
