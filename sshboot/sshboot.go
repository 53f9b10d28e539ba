// Package sshboot runs a single command on a remote host over SSH,
// authenticating with a public key only, mirroring dfms.remote's
// createClient/execRemoteWithClient pair. This is the only corpus source
// exercising golang.org/x/crypto/ssh
// (other_examples/...wapsol-m2deploy__pkg-ssh-distribute.go), adopted
// here because the composite manager's bootstrap path has no substitute
// in the teacher's own stack.
package sshboot

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// Bootstrapper opens public-key-authenticated SSH sessions to run the
// sub-manager startup command on a host.
type Bootstrapper struct {
	User string
	// KeyPath is the private key file to authenticate with. Empty means
	// fall back to ~/.ssh/id_rsa, mirroring dfms.remote.createClient's
	// pkeyPath=None default.
	KeyPath string
	Port    int
}

// defaultSSHPort is used when Port is zero.
const defaultSSHPort = 22

// Result is the outcome of running a command over SSH.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// BootID tags this Run call. It is exported to the remote session as
	// DFMS_BOOT_ID so a sub-manager startup script can tell two bootstrap
	// attempts apart and skip work it already did for an earlier BootID
	// instead of starting a duplicate daemon on retry.
	BootID string
}

// Run executes command on host over SSH, returning its stdout, stderr and
// exit status separately, much as remote.execRemoteWithClient returns
// (out, err, status). The session is killed if ctx is cancelled before
// the command finishes.
func (b *Bootstrapper) Run(ctx context.Context, host, command string) (*Result, error) {
	signer, err := b.signer()
	if err != nil {
		return nil, fmt.Errorf("loading ssh key: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            b.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	port := b.Port
	if port == 0 {
		port = defaultSSHPort
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session to %s: %w", addr, err)
	}
	defer session.Close()

	bootID := uuid.New().String()
	// Best-effort: sshd only honours Setenv for names listed in its
	// AcceptEnv config, so a server that doesn't allow DFMS_BOOT_ID simply
	// runs the command without it rather than failing the bootstrap.
	_ = session.Setenv("DFMS_BOOT_ID", bootID)

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err := <-done:
		status := 0
		if exitErr, ok := err.(*ssh.ExitError); ok {
			status = exitErr.ExitStatus()
		} else if err != nil {
			return nil, fmt.Errorf("running %q on %s: %w", command, addr, err)
		}
		return &Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: status, BootID: bootID}, nil
	}
}

func (b *Bootstrapper) signer() (ssh.Signer, error) {
	keyPath := b.KeyPath
	if keyPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		keyPath = filepath.Join(home, ".ssh", "id_rsa")
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", keyPath, err)
	}
	return ssh.ParsePrivateKey(key)
}
