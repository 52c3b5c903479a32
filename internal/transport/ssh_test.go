package transport

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/muurk/wrtpresence/internal/wrt"
)

// commandHandler returns stdout and the exit status for a command
type commandHandler func(cmd string) (string, uint32)

type mockSSHServer struct {
	addr        string
	connections atomic.Int32
	clientKey   ssh.PublicKey
}

func newSigner(t *testing.T) (ssh.Signer, ed25519.PrivateKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer, priv
}

func startSSHServer(t *testing.T, handler commandHandler) *mockSSHServer {
	t.Helper()
	return startSSHServerWithKey(t, handler, nil)
}

// startSSHServerWithKey also accepts public key auth for clientKey
func startSSHServerWithKey(t *testing.T, handler commandHandler, clientKey ssh.PublicKey) *mockSSHServer {
	t.Helper()

	srv := &mockSSHServer{clientKey: clientKey}
	hostKey, _ := newSigner(t)

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "root" && string(pass) == "admin" {
				return nil, nil
			}
			return nil, errors.New("password rejected")
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if srv.clientKey != nil && bytes.Equal(key.Marshal(), srv.clientKey.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("key rejected")
		},
	}
	config.AddHostKey(hostKey)

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
			srv.connections.Add(1)
			go serveSSHConn(conn, config, handler)
		}
	}()
	return srv
}

func serveSSHConn(conn net.Conn, config *ssh.ServerConfig, handler commandHandler) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer func() { _ = sconn.Close() }()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			return
		}
		go func() {
			defer func() { _ = ch.Close() }()
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				out, status := handler(payload.Command)
				_, _ = ch.Write([]byte(out))
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func routerShell(cmd string) (string, uint32) {
	switch {
	case strings.Contains(cmd, "assoclist"):
		return "AA:BB:CC:DD:EE:01\nAA:BB:CC:DD:EE:02\n", 0
	case strings.Contains(cmd, "dnsmasq.leases"):
		return "aa:bb:cc:dd:ee:01,laptop,192.168.1.10,1700000000\n", 0
	default:
		return "sh: not found\n", 127
	}
}

func TestSSHClient_Fetch(t *testing.T) {
	var lastCmd atomic.Value
	srv := startSSHServer(t, func(cmd string) (string, uint32) {
		lastCmd.Store(cmd)
		return routerShell(cmd)
	})

	client, err := NewSSHClient(Options{Username: "root", Password: "admin", Interfaces: []string{"wl0"}})
	if err != nil {
		t.Fatalf("NewSSHClient() error = %v", err)
	}
	defer func() { _ = client.Close() }()

	out, err := client.Fetch(context.Background(), srv.addr, wrt.OpWireless)
	if err != nil {
		t.Fatalf("Fetch(wireless) error = %v", err)
	}
	if !strings.Contains(string(out), "AA:BB:CC:DD:EE:02") {
		t.Errorf("Fetch(wireless) = %q", out)
	}
	if cmd := lastCmd.Load().(string); !strings.Contains(cmd, "wl -i wl0 assoclist") {
		t.Errorf("command = %q, want wl0 interface", cmd)
	}

	out, err = client.Fetch(context.Background(), srv.addr, wrt.OpLeases)
	if err != nil {
		t.Fatalf("Fetch(leases) error = %v", err)
	}
	if !strings.HasPrefix(string(out), "aa:bb:cc:dd:ee:01,laptop") {
		t.Errorf("Fetch(leases) = %q", out)
	}

	if n := srv.connections.Load(); n != 1 {
		t.Errorf("connections = %d, want 1 (connection reused)", n)
	}
}

func TestSSHClient_PrivateKey(t *testing.T) {
	signer, priv := newSigner(t)
	srv := startSSHServerWithKey(t, routerShell, signer.PublicKey())

	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	keyFile := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}

	client, err := NewSSHClient(Options{Username: "root", KeyFile: keyFile})
	if err != nil {
		t.Fatalf("NewSSHClient() error = %v", err)
	}
	defer func() { _ = client.Close() }()

	if _, err := client.Fetch(context.Background(), srv.addr, wrt.OpWireless); err != nil {
		t.Errorf("Fetch() with key error = %v", err)
	}
}

func TestSSHClient_AuthFailure(t *testing.T) {
	srv := startSSHServer(t, routerShell)

	client, err := NewSSHClient(Options{Username: "root", Password: "wrong"})
	if err != nil {
		t.Fatalf("NewSSHClient() error = %v", err)
	}

	_, err = client.Fetch(context.Background(), srv.addr, wrt.OpWireless)
	if !wrt.IsAuthError(err) {
		t.Errorf("Fetch() error should be auth error, got %T: %v", err, err)
	}
}

func TestSSHClient_ClosedBeforeHandshake(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	client, err := NewSSHClient(Options{Username: "root", Password: "admin"})
	if err != nil {
		t.Fatalf("NewSSHClient() error = %v", err)
	}

	_, err = client.Fetch(context.Background(), listener.Addr().String(), wrt.OpWireless)
	if !wrt.IsConnectionRefused(err) {
		t.Fatalf("Fetch() error should be connection refused, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "Connection refused. Is SSH enabled?") {
		t.Errorf("Fetch() error = %v", err)
	}
}

func TestSSHClient_CommandFailure(t *testing.T) {
	srv := startSSHServer(t, func(cmd string) (string, uint32) {
		return "wl: not found\n", 127
	})

	client, err := NewSSHClient(Options{Username: "root", Password: "admin"})
	if err != nil {
		t.Fatalf("NewSSHClient() error = %v", err)
	}
	defer func() { _ = client.Close() }()

	_, err = client.Fetch(context.Background(), srv.addr, wrt.OpWireless)
	if !wrt.IsUnexpectedResponse(err) {
		t.Errorf("Fetch() error should be unexpected response, got %T: %v", err, err)
	}
}

func TestNewSSHClient_Errors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(garbage, []byte("not a key"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts Options
	}{
		{"no secret", Options{Username: "root"}},
		{"both secrets", Options{Username: "root", Password: "p", KeyFile: garbage}},
		{"missing key", Options{Username: "root", KeyFile: "/nonexistent/id"}},
		{"unparseable key", Options{Username: "root", KeyFile: garbage}},
		{"missing known_hosts", Options{Username: "root", Password: "p", KnownHosts: "/nonexistent/known_hosts"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSSHClient(tt.opts)
			if !wrt.IsConfigurationError(err) {
				t.Errorf("NewSSHClient() error should be configuration error, got %T: %v", err, err)
			}
		})
	}
}
