package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wrtpresence/internal/logging"
	"github.com/muurk/wrtpresence/internal/wrt"
)

// Telnet command bytes (RFC 854)
const (
	telnetSE   byte = 240
	telnetSB   byte = 250
	telnetWILL byte = 251
	telnetWONT byte = 252
	telnetDO   byte = 253
	telnetDONT byte = 254
	telnetIAC  byte = 255
)

// Output markers. The command line quotes them apart so the terminal echo
// of the line never matches.
const (
	markerBegin = "WRTP_BEGIN"
	markerEnd   = "WRTP_END"
)

var (
	loginPrompts    = []string{"login:", "username:"}
	passwordPrompts = []string{"password:"}

	// Index 0 and 1 are failures, the rest are shell prompts
	postLoginPatterns = []string{"incorrect", "denied", "# ", "$ ", "> "}
)

// TelnetClient runs shell commands on routers over an interactive telnet
// login. The logged-in session is kept per host and reused.
type TelnetClient struct {
	username   string
	password   string
	port       int
	timeout    time.Duration
	interfaces []string
	logger     *zap.Logger

	dial func(ctx context.Context, network, addr string) (net.Conn, error)

	mu    sync.Mutex
	conns map[string]*telnetConn
}

// NewTelnetClient creates a telnet transport
func NewTelnetClient(opts Options) *TelnetClient {
	port := opts.Port
	if port == 0 {
		port = wrt.ProtocolTelnet.DefaultPort()
	}
	timeout := opts.timeout(DefaultCommandTimeout)
	dialer := &net.Dialer{Timeout: timeout}
	return &TelnetClient{
		username:   opts.Username,
		password:   opts.Password,
		port:       port,
		timeout:    timeout,
		interfaces: opts.Interfaces,
		logger:     opts.logger(),
		dial:       dialer.DialContext,
		conns:      make(map[string]*telnetConn),
	}
}

// Fetch runs the shell command for op on host and returns its output
func (c *TelnetClient) Fetch(ctx context.Context, host string, op wrt.Operation) ([]byte, error) {
	cmd, err := shellCommand(op, c.interfaces)
	if err != nil {
		return nil, wrt.NewConfigurationError(err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tc, ok := c.conns[host]
	if !ok {
		tc, err = c.login(ctx, host)
		if err != nil {
			return nil, err
		}
		c.conns[host] = tc
	}

	out, err := tc.run(ctx, host, cmd, c.timeout)
	if err != nil || tc.stale {
		_ = tc.Close()
		delete(c.conns, host)
	}
	if err != nil {
		return nil, err
	}

	logging.LogPayload(c.logger, "Received "+op.String()+" output", out)
	return out, nil
}

// login dials host and walks the login dialogue up to a shell prompt
func (c *TelnetClient) login(ctx context.Context, host string) (*telnetConn, error) {
	conn, err := c.dial(ctx, "tcp", hostPort(host, c.port))
	if err != nil {
		wErr := wrt.NewNetworkError(host, "Unable to connect via Telnet", err)
		if wErr.Type == wrt.ErrTypeConnectionRefused {
			wErr.Message = "Connection refused. Is Telnet enabled?"
		}
		return nil, wErr
	}

	tc := newTelnetConn(conn)
	stop := context.AfterFunc(ctx, tc.interrupt)
	defer stop()

	fail := func(err error) (*telnetConn, error) {
		_ = tc.Close()
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)

	if _, _, err := tc.expect(loginPrompts, deadline); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(wrt.ClassifyNetworkError(ctxErr, host))
		}
		if isDeadline(err) {
			return fail(wrt.ClassifyNetworkError(err, host))
		}
		return fail(wrt.NewConnectionRefusedError(host, "Connection refused. Is Telnet enabled?", err))
	}
	if err := tc.sendLine(c.username); err != nil {
		return fail(wrt.NewNetworkError(host, "failed to send username", err))
	}

	if _, _, err := tc.expect(passwordPrompts, deadline); err != nil {
		return fail(wrt.NewUnexpectedResponseError(host, "Unexpected response from router", err))
	}
	if err := tc.sendLine(c.password); err != nil {
		return fail(wrt.NewNetworkError(host, "failed to send password", err))
	}

	idx, _, err := tc.expect(postLoginPatterns, deadline)
	switch {
	case err != nil:
		return fail(wrt.NewUnexpectedResponseError(host, "Unexpected response from router", err))
	case idx < 2:
		return fail(wrt.NewAuthError(host, "Failed to authenticate, please check your username and password"))
	}

	if !stop() {
		return fail(wrt.ClassifyNetworkError(ctx.Err(), host))
	}
	c.logger.Debug("Telnet login complete", zap.String("host", host))
	return tc, nil
}

// Close logs out of every cached session
func (c *TelnetClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for host, tc := range c.conns {
		_ = tc.sendLine("exit")
		if err := tc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
		}
		delete(c.conns, host)
	}
	return errors.Join(errs...)
}

// telnetConn is a logged-in telnet session. Option negotiation is refused
// so the stream stays plain NVT text.
type telnetConn struct {
	conn net.Conn
	r    *bufio.Reader

	// stale is set when an interrupt fired after the last command
	// completed, leaving the connection with a past deadline
	stale bool
}

func newTelnetConn(conn net.Conn) *telnetConn {
	return &telnetConn{conn: conn, r: bufio.NewReader(conn)}
}

// interrupt unblocks pending reads when the caller's context ends
func (t *telnetConn) interrupt() {
	_ = t.conn.SetDeadline(time.Unix(1, 0))
}

func (t *telnetConn) Close() error {
	return t.conn.Close()
}

// readByte returns the next data byte, answering option requests on the way
func (t *telnetConn) readByte() (byte, error) {
	for {
		b, err := t.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != telnetIAC {
			return b, nil
		}

		cmd, err := t.r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch cmd {
		case telnetIAC:
			return telnetIAC, nil
		case telnetDO, telnetWILL:
			opt, err := t.r.ReadByte()
			if err != nil {
				return 0, err
			}
			reply := telnetWONT
			if cmd == telnetWILL {
				reply = telnetDONT
			}
			if _, err := t.conn.Write([]byte{telnetIAC, reply, opt}); err != nil {
				return 0, err
			}
		case telnetDONT, telnetWONT:
			if _, err := t.r.ReadByte(); err != nil {
				return 0, err
			}
		case telnetSB:
			if err := t.skipSubnegotiation(); err != nil {
				return 0, err
			}
		}
	}
}

func (t *telnetConn) skipSubnegotiation() error {
	for {
		b, err := t.r.ReadByte()
		if err != nil {
			return err
		}
		if b != telnetIAC {
			continue
		}
		next, err := t.r.ReadByte()
		if err != nil {
			return err
		}
		if next == telnetSE {
			return nil
		}
	}
}

// expect reads until the stream ends with one of patterns (case-insensitive).
// It returns the matched index and everything read before the match.
func (t *telnetConn) expect(patterns []string, deadline time.Time) (int, []byte, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return -1, nil, err
	}

	var buf []byte
	for {
		b, err := t.readByte()
		if err != nil {
			return -1, buf, err
		}
		buf = append(buf, b)
		if len(buf) > maxPayloadBytes {
			return -1, buf, errors.New("response exceeds size limit")
		}

		for i, p := range patterns {
			if len(buf) >= len(p) && bytes.EqualFold(buf[len(buf)-len(p):], []byte(p)) {
				return i, buf[:len(buf)-len(p)], nil
			}
		}
	}
}

// sendLine writes s followed by a newline, escaping IAC bytes
func (t *telnetConn) sendLine(s string) error {
	data := bytes.ReplaceAll([]byte(s), []byte{telnetIAC}, []byte{telnetIAC, telnetIAC})
	_, err := t.conn.Write(append(data, '\n'))
	return err
}

// run executes cmd at the shell prompt and returns its output
func (t *telnetConn) run(ctx context.Context, host, cmd string, timeout time.Duration) ([]byte, error) {
	stop := context.AfterFunc(ctx, t.interrupt)
	defer func() {
		if !stop() {
			t.stale = true
		}
	}()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	line := fmt.Sprintf("echo %s; %s; echo %s", splitMarker(markerBegin), cmd, splitMarker(markerEnd))
	if err := t.sendLine(line); err != nil {
		return nil, wrt.NewNetworkError(host, "failed to send command", err)
	}

	if _, _, err := t.expect([]string{markerBegin}, deadline); err != nil {
		return nil, t.commandError(ctx, host, err)
	}
	_, out, err := t.expect([]string{markerEnd}, deadline)
	if err != nil {
		return nil, t.commandError(ctx, host, err)
	}

	out = bytes.ReplaceAll(out, []byte("\r\n"), []byte("\n"))
	return bytes.TrimLeft(out, "\r\n"), nil
}

func (t *telnetConn) commandError(ctx context.Context, host string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return wrt.ClassifyNetworkError(ctxErr, host)
	}
	if isDeadline(err) {
		return wrt.ClassifyNetworkError(err, host)
	}
	return wrt.NewUnexpectedResponseError(host, "Unexpected response from router", err)
}

// splitMarker quotes a marker so the echoed command line differs from the output
func splitMarker(m string) string {
	i := strings.Index(m, "_")
	return m[:i] + "''" + m[i:]
}

func isDeadline(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
