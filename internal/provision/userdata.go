package provision

import (
	"encoding/base64"
	"fmt"
)

// hostRecordPath is where the boot script leaves the instance's own host
// record. The configurator reads it as a liveness marker for first boot.
const hostRecordPath = "/etc/nexup/host-record"

// buildUserData renders the first-boot script. The script resolves the
// instance's public address through IMDSv2 and writes the host record to a
// well-known path, mirroring the record the controller publishes in the
// registry.
//
// RunInstances expects user data base64-encoded, so that is what this
// returns.
func buildUserData(loginUser string) string {
	script := fmt.Sprintf(`#!/bin/sh
set -eu
mkdir -p /etc/nexup
TOKEN=$(curl -sf -X PUT -H "X-aws-ec2-metadata-token-ttl-seconds: 300" http://169.254.169.254/latest/api/token)
ADDR=$(curl -sf -H "X-aws-ec2-metadata-token: $TOKEN" http://169.254.169.254/latest/meta-data/public-ipv4)
printf '%%s login_user=%%s\n' "$ADDR" %q > %s
`, loginUser, hostRecordPath)
	return base64.StdEncoding.EncodeToString([]byte(script))
}
