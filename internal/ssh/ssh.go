package ssh

// ssh.go implements a facade over 'x/crypto/ssh', simplifying SSH connection
// construction and remote command execution against freshly booted hosts.

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const sshDefaultTimeout = 3 * time.Second

var (
	ErrSSHFailedDial   = fmt.Errorf("failed to establish SSH connection")
	ErrFailedHostParse = fmt.Errorf("failed to parse hostname")
	ErrHostKeyInvalid  = fmt.Errorf("target's host key is invalid")
)

// Connect establishes an SSH connection to 'host' on TCP port 'port'.
//
// 'host' can be a hostname, an IPv4 address or an IPv6 address. If 'port' is
// 0, the default of 22 is used.
//
// 'signer' is used for public key authentication.
//
// Any values provided to 'hostKeys' are compared against the host key offered
// by the target. If no 'hostKeys' value is provided, all host keys are
// accepted; hosts here are ephemeral and their keys are generated at boot.
func Connect(host string, port uint16, user string, signer ssh.Signer, hostKeys ...ssh.PublicKey) (*ssh.Client, error) {
	if port == 0 {
		port = 22
	}
	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			// Same behavior as 'ssh.InsecureIgnoreHostKey' when no keys were
			// pinned.
			if len(hostKeys) == 0 {
				return nil
			}
			for _, hostKey := range hostKeys {
				if bytes.Equal(hostKey.Marshal(), key.Marshal()) {
					return nil
				}
			}
			return ErrHostKeyInvalid
		},
		Timeout: sshDefaultTimeout,
	}
	target, err := joinHostPort(host, port)
	if err != nil {
		return nil, err
	}
	client, err := ssh.Dial("tcp", target, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSSHFailedDial, err)
	}
	return client, nil
}

// joinHostPort parses and validates 'host' is a valid IPv4 or IPv6 address,
// then joins it with the port in the address-family-specific format.
//
// If 'host' is a hostname, it is resolved first and the first resolved
// address is used.
func joinHostPort(host string, port uint16) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if addr := net.ParseIP(host); addr == nil {
		addrs, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrFailedHostParse, host)
		}
		return joinHostPort(addrs[0], port)
	} else if ipv4 := addr.To4(); ipv4 != nil {
		return fmt.Sprintf("%s:%d", ipv4.String(), port), nil
	} else if ipv6 := addr.To16(); ipv6 != nil {
		return fmt.Sprintf("[%s]:%d", ipv6.String(), port), nil
	} else {
		panic("impossible")
	}
}

var (
	ErrSessionInit    = fmt.Errorf("failed to begin SSH session")
	ErrCMDExec        = fmt.Errorf("failed to execute SSH command")
	ErrInWait         = fmt.Errorf("SSH command did not exit cleanly")
	ErrStdinWrite     = fmt.Errorf("failed to write command to stdin")
	ErrStdStreamClose = fmt.Errorf("encountered error closing standard stream")
)

// Exec executes a single command, returning any standard out/err received.
func Exec(client *ssh.Client, cmd string) (string, string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrSessionInit, err)
	}
	defer session.Close()
	stdout := new(bytes.Buffer)
	session.Stdout = stdout
	stderr := new(bytes.Buffer)
	session.Stderr = stderr
	if err = session.Run(cmd); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("%w: %w", ErrCMDExec, err)
	}
	return stdout.String(), stderr.String(), nil
}

// ExecIn executes all provided commands, in order, within a single instance
// of the provided 'shell'. The shell is invoked with 'set -e' semantics left
// to the caller; a failing command surfaces through the session exit status.
func ExecIn(client *ssh.Client, shell string, cmds ...string) (string, string, error) {
	cmd := "/usr/bin/env " + shell
	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrSessionInit, err)
	}
	defer session.Close()
	// 'io.Pipe' ensures the session reads match 1:1 with our stdin writes
	// (sequenced commands).
	stdinr, stdinw := io.Pipe()
	defer stdinr.Close()
	defer stdinw.Close()
	session.Stdin = stdinr
	stdout := new(bytes.Buffer)
	session.Stdout = stdout
	stderr := new(bytes.Buffer)
	session.Stderr = stderr
	if err = session.Start(cmd); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrCMDExec, err)
	}
	for _, cmd := range cmds {
		if _, err := stdinw.Write([]byte(cmd + "\n")); err != nil {
			return stdout.String(), stderr.String(), fmt.Errorf("%w: %w", ErrStdinWrite, err)
		}
	}
	// Signal EOF to the shell; safe to call multiple times.
	if err = stdinw.Close(); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("%w: %w", ErrStdStreamClose, err)
	}
	if err = session.Wait(); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("%w: %w", ErrInWait, err)
	}
	return stdout.String(), stderr.String(), nil
}
