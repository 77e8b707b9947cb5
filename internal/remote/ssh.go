package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/pkg/logger"
)

// SSHOptions configure how the SSH runner reaches build hosts.
type SSHOptions struct {
	// User is the fallback login for targets that do not name one.
	User string
	// IdentityFile is the path to a private key. When empty, only the SSH
	// agent is tried.
	IdentityFile string
	// KnownHostsFile overrides the default ~/.ssh/known_hosts.
	KnownHostsFile string
	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool
	// ConnectTimeout bounds connection establishment, not command runtime.
	ConnectTimeout time.Duration
}

// SSHRunner executes commands on remote targets over SSH. Each Run opens
// its own connection and blocks until the remote command exits; commands
// themselves are never subject to a timeout.
type SSHRunner struct {
	opts    SSHOptions
	auth    []ssh.AuthMethod
	hostKey ssh.HostKeyCallback
	logger  *logger.Logger
	stdout  io.Writer
	stderr  io.Writer
}

// NewSSHRunner resolves authentication material and host key policy up
// front so every later failure is a per-dispatch transport error.
func NewSSHRunner(opts SSHOptions, log *logger.Logger, stdout, stderr io.Writer) (*SSHRunner, error) {
	if log == nil {
		log = logger.Default()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 15 * time.Second
	}

	auth, err := resolveAuthMethods(opts.IdentityFile)
	if err != nil {
		return nil, err
	}

	hostKey, err := resolveHostKeyCallback(opts)
	if err != nil {
		return nil, err
	}

	return &SSHRunner{
		opts:    opts,
		auth:    auth,
		hostKey: hostKey,
		logger:  log.WithComponent("ssh"),
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}

// resolveAuthMethods loads the identity file and, when available, the SSH
// agent. At least one method must resolve.
func resolveAuthMethods(identityFile string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if identityFile != "" {
		key, err := os.ReadFile(identityFile)
		if err != nil {
			return nil, fmt.Errorf("reading identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing identity file %s: %w", identityFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH authentication available: provide an identity file or a running agent")
	}
	return methods, nil
}

// resolveHostKeyCallback builds the host key policy: known-hosts
// verification unless explicitly disabled.
func resolveHostKeyCallback(opts SSHOptions) (ssh.HostKeyCallback, error) {
	if opts.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := opts.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving known_hosts path: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts %s: %w", path, err)
	}
	return cb, nil
}

// Run opens a connection to the target, executes cmd in one session and
// returns the remote exit status.
func (r *SSHRunner) Run(ctx context.Context, target models.ExecutionTarget, cmd Command) (int, error) {
	if cmd.Empty() {
		return 0, fmt.Errorf("dispatch to %s: %w", target, ErrEmptyCommand)
	}
	if target.Local() {
		return 0, fmt.Errorf("target %s is local, not an SSH host", target)
	}

	user := target.User
	if user == "" {
		user = r.opts.User
	}
	if user == "" {
		return 0, fmt.Errorf("no SSH user for target %s", target)
	}

	addr := target.Addr()
	r.logger.Debug("dialing build host", "addr", addr, "user", user)

	dialer := net.Dialer{Timeout: r.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            user,
		Auth:            r.auth,
		HostKeyCallback: r.hostKey,
		Timeout:         r.opts.ConnectTimeout,
	})
	if err != nil {
		conn.Close()
		return 0, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(clientConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return 0, fmt.Errorf("opening session on %s: %w", addr, err)
	}
	defer session.Close()

	session.Stdout = r.stdout
	session.Stderr = r.stderr

	r.logger.Debug("executing remote command", "addr", addr, "command", cmd.String())

	// ssh sessions have no context plumbing; tear the connection down when
	// the context ends so Run unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	if err := session.Run(cmd.String()); err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		var missingErr *ssh.ExitMissingError
		if errors.As(err, &missingErr) {
			return -1, fmt.Errorf("session on %s ended without exit status: %w", addr, err)
		}
		return -1, fmt.Errorf("running command on %s: %w", addr, err)
	}
	return 0, nil
}
