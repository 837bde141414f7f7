// Package registry implements the hand-off between the provisioning stage
// and the configuration stage.
//
// The provisioner runs in one disposable environment, the configurator in
// another; the only state they share is the host record: the fresh host's
// address plus its remote-login account. Records are published to a
// registry keyed by deployment name, with a generation that increases every
// time the host is replaced, so a consumer can never act on a stale
// address without noticing.
package registry

import (
	"fmt"
	"strings"
)

// Record is one managed host: its address and the login account used for
// the remote management channel.
type Record struct {
	Address string
	User    string
}

const userKey = "login_user"

var (
	ErrRecordMalformed = fmt.Errorf("malformed host record")
	ErrRecordEmpty     = fmt.Errorf("empty host record")
)

// ParseRecord parses the one-line wire form '<ip-address> login_user=<value>'.
// Additional 'key=value' fields are tolerated and ignored, so the format can
// grow without breaking older consumers.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, ErrRecordEmpty
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Record{}, fmt.Errorf("%w: expected at least 2 fields, got %d", ErrRecordMalformed, len(fields))
	}
	rec := Record{Address: fields[0]}
	for _, field := range fields[1:] {
		key, value, found := strings.Cut(field, "=")
		if !found || value == "" {
			return Record{}, fmt.Errorf("%w: expected 'key=value', got %q", ErrRecordMalformed, field)
		}
		if key == userKey {
			rec.User = value
		}
	}
	if rec.User == "" {
		return Record{}, fmt.Errorf("%w: missing '%s=<value>'", ErrRecordMalformed, userKey)
	}
	return rec, nil
}

// String renders the record in its one-line wire form.
func (r Record) String() string {
	return fmt.Sprintf("%s %s=%s", r.Address, userKey, r.User)
}
