package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// sshClient is a thin wrapper around golang.org/x/crypto/ssh giving a
// context-bounded exec, mirroring the paramiko client used upstream:
// key-only auth, no agent, host keys auto-accepted on first connect.
type sshClient struct {
	client *ssh.Client
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", keyPath, err)
	}
	return signer, nil
}

// dial opens an SSH connection to host using the private key at keyPath.
// Host key verification is intentionally permissive (InsecureIgnoreHostKey)
// to match the upstream AutoAddPolicy behavior for a fleet of known,
// internally managed storage nodes.
func dial(ctx context.Context, host, user, keyPath string, timeout time.Duration) (*sshClient, error) {
	signer, err := loadSigner(keyPath)
	if err != nil {
		return nil, err
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(host, "22")
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	type result struct {
		client *ssh.Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, cfg)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &sshClient{client: r.client}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run executes command on the remote host, bounded by timeout, and
// returns trimmed stdout/stderr the way exec_command's readers do
// upstream. A non-zero remote exit status (*ssh.ExitError) is not
// treated as a failure here: commands like "systemctl is-active" exit
// non-zero to report state, not to signal a transport problem, and it's
// exec's job to decide success from stderr content.
func (c *sshClient) run(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, err error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("opening ssh session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		var exitErr *ssh.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return "", "", err
		}
	case <-runCtx.Done():
		session.Signal(ssh.SIGKILL)
		return "", "", fmt.Errorf("command timed out: %s", command)
	}

	return strings.TrimSpace(outBuf.String()), strings.TrimSpace(errBuf.String()), nil
}

func (c *sshClient) close() error {
	return c.client.Close()
}
