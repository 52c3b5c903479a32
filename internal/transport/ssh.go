package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/muurk/wrtpresence/internal/logging"
	"github.com/muurk/wrtpresence/internal/wrt"
)

// SSHClient runs shell commands on routers over SSH. One client connection
// per host is kept open and reused; a new session is opened per command.
type SSHClient struct {
	port       int
	timeout    time.Duration
	interfaces []string
	config     *ssh.ClientConfig
	logger     *zap.Logger

	// dial opens the TCP connection; replaced in tests
	dial func(ctx context.Context, network, addr string) (net.Conn, error)

	mu      sync.Mutex
	clients map[string]*ssh.Client
}

// NewSSHClient creates an SSH transport. The private key (if any) is read
// here so a bad key is reported before the first poll.
func NewSSHClient(opts Options) (*SSHClient, error) {
	auth, err := sshAuthMethod(opts)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // LAN routers regenerate keys on reflash
	if opts.KnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, wrt.NewConfigurationError(fmt.Sprintf("failed to load known_hosts %s: %v", opts.KnownHosts, err))
		}
	}

	timeout := opts.timeout(DefaultCommandTimeout)
	port := opts.Port
	if port == 0 {
		port = wrt.ProtocolSSH.DefaultPort()
	}

	dialer := &net.Dialer{Timeout: timeout}
	return &SSHClient{
		port:       port,
		timeout:    timeout,
		interfaces: opts.Interfaces,
		config: &ssh.ClientConfig{
			User:            opts.Username,
			Auth:            []ssh.AuthMethod{auth},
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
		logger:  opts.logger(),
		dial:    dialer.DialContext,
		clients: make(map[string]*ssh.Client),
	}, nil
}

func sshAuthMethod(opts Options) (ssh.AuthMethod, error) {
	switch {
	case opts.KeyFile != "" && opts.Password != "":
		return nil, wrt.NewConfigurationError("password and private key are mutually exclusive")
	case opts.KeyFile != "":
		pem, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return nil, wrt.NewConfigurationError(fmt.Sprintf("failed to read private key: %v", err))
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, wrt.NewConfigurationError(fmt.Sprintf("failed to parse private key: %v", err))
		}
		return ssh.PublicKeys(signer), nil
	case opts.Password != "":
		return ssh.Password(opts.Password), nil
	default:
		return nil, wrt.NewConfigurationError("no password or private key specified")
	}
}

// Fetch runs the shell command for op on host and returns its stdout
func (c *SSHClient) Fetch(ctx context.Context, host string, op wrt.Operation) ([]byte, error) {
	cmd, err := shellCommand(op, c.interfaces)
	if err != nil {
		return nil, wrt.NewConfigurationError(err.Error())
	}

	client, err := c.client(ctx, host)
	if err != nil {
		return nil, err
	}

	out, err := c.run(ctx, client, host, cmd)
	if err != nil {
		// Drop the cached connection so the next poll redials
		c.drop(host, client)
		return nil, err
	}

	logging.LogPayload(c.logger, "Received "+op.String()+" output", out)
	return out, nil
}

// client returns the cached connection for host, dialing if needed
func (c *SSHClient) client(ctx context.Context, host string) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[host]; ok {
		return client, nil
	}

	client, err := c.connect(ctx, host)
	if err != nil {
		return nil, err
	}
	c.clients[host] = client
	return client, nil
}

func (c *SSHClient) connect(ctx context.Context, host string) (*ssh.Client, error) {
	addr := hostPort(host, c.port)

	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		wErr := wrt.NewNetworkError(host, "Unable to connect via SSH", err)
		if wErr.Type == wrt.ErrTypeConnectionRefused {
			wErr.Message = "Connection refused. Is SSH enabled?"
		}
		return nil, wErr
	}

	// Bound the handshake; cleared once the client is established
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, c.config)
	if err != nil {
		_ = conn.Close()
		return nil, classifyHandshakeError(host, err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.logger.Debug("SSH connection established", zap.String("host", host))
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// classifyHandshakeError maps an SSH handshake failure. Anything other than
// rejected credentials or a timeout means no login prompt was reached.
func classifyHandshakeError(host string, err error) *wrt.Error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"):
		return wrt.NewAuthError(host, "Failed to authenticate, please check your username and password")
	case errors.Is(err, os.ErrDeadlineExceeded):
		return wrt.ClassifyNetworkError(err, host)
	default:
		return wrt.NewConnectionRefusedError(host, "Connection refused. Is SSH enabled?", err)
	}
}

// run executes cmd in a new session, bounded by ctx and the command timeout
func (c *SSHClient) run(ctx context.Context, client *ssh.Client, host, cmd string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session, err := client.NewSession()
	if err != nil {
		return nil, wrt.NewNetworkError(host, "failed to open SSH session", err)
	}
	defer func() { _ = session.Close() }()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.Output(cmd)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, wrt.NewUnexpectedResponseError(host, "Unexpected response from router", r.err)
		}
		return r.out, nil
	case <-ctx.Done():
		_ = session.Close()
		return nil, wrt.ClassifyNetworkError(ctx.Err(), host)
	}
}

func (c *SSHClient) drop(host string, client *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clients[host] == client {
		delete(c.clients, host)
	}
	_ = client.Close()
}

// Close closes every cached connection
func (c *SSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for host, client := range c.clients {
		if err := client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
		}
		delete(c.clients, host)
	}
	return errors.Join(errs...)
}
