package transport

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/wrtpresence/internal/wrt"
)

const telnetPrompt = "root@DD-WRT:~# "

type mockTelnetServer struct {
	addr     string
	logins   atomic.Int32
	password string
	shell    commandHandler
}

func startTelnetServer(t *testing.T, password string, shell commandHandler) *mockTelnetServer {
	t.Helper()

	srv := &mockTelnetServer{password: password, shell: shell}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = listener.Close() })
	srv.addr = listener.Addr().String()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go srv.serve(conn)
		}
	}()
	return srv
}

// readLine reads one line, dropping the 3-byte option replies from the client
func readLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		switch b {
		case telnetIAC:
			if _, err := r.Discard(2); err != nil {
				return "", err
			}
		case '\r':
		case '\n':
			return sb.String(), nil
		default:
			sb.WriteByte(b)
		}
	}
}

func (s *mockTelnetServer) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)
	write := func(str string) { _, _ = conn.Write([]byte(str)) }

	// Ask for window size and offer echo, as busybox telnetd does
	_, _ = conn.Write([]byte{telnetIAC, telnetDO, 31, telnetIAC, telnetWILL, 1})
	write("\r\nDD-WRT v3.0-r44715 std (c) 2020 NewMedia-NET GmbH\r\n\r\nDD-WRT login: ")

	user, err := readLine(r)
	if err != nil {
		return
	}
	write(user + "\r\nPassword: ")
	pass, err := readLine(r)
	if err != nil {
		return
	}
	if pass != s.password {
		write("\r\nLogin incorrect\r\nDD-WRT login: ")
		return
	}
	s.logins.Add(1)
	write("\r\n==========================================================\r\n" + telnetPrompt)

	for {
		line, err := readLine(r)
		if err != nil {
			return
		}
		// Echo the line back, then behave like `echo A; cmd; echo B`
		write(line + "\r\n")
		parts := strings.Split(line, "; ")
		if len(parts) < 3 {
			write(telnetPrompt)
			continue
		}
		cmd := strings.Join(parts[1:len(parts)-1], "; ")
		out, _ := s.shell(cmd)
		write(markerBegin + "\r\n" + strings.ReplaceAll(out, "\n", "\r\n") + markerEnd + "\r\n" + telnetPrompt)
	}
}

func TestTelnetClient_Fetch(t *testing.T) {
	srv := startTelnetServer(t, "admin", routerShell)

	client := NewTelnetClient(Options{Username: "root", Password: "admin"})
	defer func() { _ = client.Close() }()

	out, err := client.Fetch(context.Background(), srv.addr, wrt.OpWireless)
	if err != nil {
		t.Fatalf("Fetch(wireless) error = %v", err)
	}
	if got, want := string(out), "AA:BB:CC:DD:EE:01\nAA:BB:CC:DD:EE:02\n"; got != want {
		t.Errorf("Fetch(wireless) = %q, want %q", got, want)
	}

	out, err = client.Fetch(context.Background(), srv.addr, wrt.OpLeases)
	if err != nil {
		t.Fatalf("Fetch(leases) error = %v", err)
	}
	if !strings.HasPrefix(string(out), "aa:bb:cc:dd:ee:01,laptop") {
		t.Errorf("Fetch(leases) = %q", out)
	}

	if n := srv.logins.Load(); n != 1 {
		t.Errorf("logins = %d, want 1 (session reused)", n)
	}
}

// cancelAfterMarker cancels a context as soon as the end-of-output marker
// has been read, so the interrupt lands after the command succeeded
type cancelAfterMarker struct {
	net.Conn
	cancel context.CancelFunc
	seen   []byte
}

func (c *cancelAfterMarker) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.seen = append(c.seen, p[:n]...)
	if bytes.Contains(c.seen, []byte(markerEnd)) {
		c.cancel()
	}
	return n, err
}

func TestTelnetClient_CancelAfterOutputDropsSession(t *testing.T) {
	srv := startTelnetServer(t, "admin", routerShell)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewTelnetClient(Options{Username: "root", Password: "admin"})
	defer func() { _ = client.Close() }()

	var dials atomic.Int32
	dialer := &net.Dialer{}
	client.dial = func(dctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(dctx, network, addr)
		if err != nil {
			return nil, err
		}
		if dials.Add(1) == 1 {
			return &cancelAfterMarker{Conn: conn, cancel: cancel}, nil
		}
		return conn, nil
	}

	if _, err := client.Fetch(ctx, srv.addr, wrt.OpWireless); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	out, err := client.Fetch(context.Background(), srv.addr, wrt.OpWireless)
	if err != nil {
		t.Fatalf("Fetch() after interrupted session error = %v", err)
	}
	if !strings.Contains(string(out), "AA:BB:CC:DD:EE:01") {
		t.Errorf("Fetch() = %q", out)
	}
	if n := dials.Load(); n != 2 {
		t.Errorf("dials = %d, want 2 (interrupted session dropped)", n)
	}
}

func TestTelnetClient_AuthFailure(t *testing.T) {
	srv := startTelnetServer(t, "admin", routerShell)

	client := NewTelnetClient(Options{Username: "root", Password: "wrong"})
	_, err := client.Fetch(context.Background(), srv.addr, wrt.OpWireless)

	if !wrt.IsAuthError(err) {
		t.Errorf("Fetch() error should be auth error, got %T: %v", err, err)
	}
}

func TestTelnetClient_ClosedBeforePrompt(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	go func() {
		conn, err := listener.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	client := NewTelnetClient(Options{Username: "root", Password: "admin"})
	_, err = client.Fetch(context.Background(), listener.Addr().String(), wrt.OpWireless)

	if !wrt.IsConnectionRefused(err) {
		t.Errorf("Fetch() error should be connection refused, got %T: %v", err, err)
	}
}

func TestTelnetClient_NoPrompt(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("banner without a prompt\r\n"))
		<-done
		_ = conn.Close()
	}()

	client := NewTelnetClient(Options{Username: "root", Password: "admin", Timeout: 100 * time.Millisecond})
	_, err = client.Fetch(context.Background(), listener.Addr().String(), wrt.OpWireless)

	if !wrt.IsConnectionError(err) {
		t.Errorf("Fetch() error should be connection error, got %T: %v", err, err)
	}
}

func TestTelnetClient_Refused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	client := NewTelnetClient(Options{Username: "root", Password: "admin"})
	_, err = client.Fetch(context.Background(), addr, wrt.OpWireless)

	if !wrt.IsConnectionRefused(err) {
		t.Fatalf("Fetch() error should be connection refused, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "Is Telnet enabled?") {
		t.Errorf("Fetch() error = %v", err)
	}
}

func TestSplitMarker(t *testing.T) {
	if got := splitMarker(markerBegin); got != "WRTP''_BEGIN" {
		t.Errorf("splitMarker() = %s", got)
	}
}
