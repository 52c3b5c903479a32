package tracker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/muurk/wrtpresence/internal/config"
	"github.com/muurk/wrtpresence/internal/router"
	"github.com/muurk/wrtpresence/internal/wrt"
)

const (
	wirelessPage = `{active_wireless::'AA:BB:CC:DD:EE:00','eth1','1:00:00','72M','72M','HT20','-50','-92','42','420'}`
	leasesPage   = `{dhcp_leases:: 'bob','192.168.1.10','AA:BB:CC:DD:EE:00','1 day 00:00:00','10'}`
)

func ddwrtServer(t *testing.T, password string) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pass, ok := r.BasicAuth(); !ok || pass != password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/Status_Wireless.live.asp":
			_, _ = w.Write([]byte(wirelessPage))
		case "/Status_Lan.live.asp":
			_, _ = w.Write([]byte(leasesPage))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

// closingListener accepts connections and closes them before any handshake
func closingListener(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return listener.Addr().String()
}

func TestSetup_PerDeviceFailures(t *testing.T) {
	cfg := config.New()
	cfg.Devices["main"] = &config.Device{Host: ddwrtServer(t, "admin"), Username: "root", Password: "admin"}
	cfg.Devices["badauth"] = &config.Device{Host: ddwrtServer(t, "admin"), Username: "root", Password: "wrong"}
	cfg.Devices["nossh"] = &config.Device{Host: closingListener(t), Username: "root", Password: "admin", Protocol: "ssh"}

	tr, err := Setup(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer func() { _ = tr.Close() }()

	sessions := tr.Sessions()
	if len(sessions) != 1 || sessions[0].Name() != "main" {
		t.Fatalf("ready sessions = %d, want only main", len(sessions))
	}

	failures := tr.Failures()
	if len(failures) != 2 {
		t.Fatalf("Failures() = %v, want 2 entries", failures)
	}
	if !wrt.IsAuthError(failures["badauth"]) {
		t.Errorf("badauth failure = %v, want auth error", failures["badauth"])
	}
	if !wrt.IsConnectionRefused(failures["nossh"]) {
		t.Errorf("nossh failure = %v, want connection refused", failures["nossh"])
	}
	var devErr *DeviceError
	if !errors.As(failures["nossh"], &devErr) || devErr.Device != "nossh" {
		t.Errorf("failure should be a *DeviceError naming the device, got %v", failures["nossh"])
	}

	if got := tr.Scan(context.Background()); len(got) != 1 || got[0] != "aa:bb:cc:dd:ee:00" {
		t.Errorf("Scan() = %v", got)
	}
	if name, ok := tr.DeviceName(context.Background(), "aa:bb:cc:dd:ee:00"); !ok || name != "bob" {
		t.Errorf("DeviceName() = %q, %v", name, ok)
	}
}

func TestSetup_InvalidConfig(t *testing.T) {
	cfg := config.New()
	cfg.Devices["main"] = &config.Device{Host: "192.0.2.1", Username: "root"}

	tr, err := Setup(context.Background(), cfg, nil)
	if tr != nil {
		t.Error("Setup() should not return a tracker for an invalid config")
	}
	if !wrt.IsConfigurationError(err) {
		t.Errorf("Setup() error = %v, want configuration error", err)
	}
}

func TestNewSession(t *testing.T) {
	scan := config.ScanSettings{HTTPTimeout: config.DefaultHTTPTimeout, CommandTimeout: config.DefaultCommandTimeout}
	d := &config.Device{
		Host:     "192.168.1.1",
		Username: "root",
		Password: "admin",
		Protocol: "telnet",
		Mode:     "ap",
		APs:      []string{"192.168.1.2"},
	}

	s, err := NewSession("upstairs", d, scan, nil)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	cfg := s.Config()
	if cfg.Protocol != wrt.ProtocolTelnet || cfg.Mode != wrt.ModeAP {
		t.Errorf("Config() = %+v", cfg)
	}
	if hosts := cfg.Hosts(); len(hosts) != 2 || hosts[1] != "192.168.1.2" {
		t.Errorf("Hosts() = %v", hosts)
	}
	if s.State() != router.StateUninitialized {
		t.Errorf("State() = %v, want uninitialized", s.State())
	}

	d.APs[0] = "changed"
	if s.Config().APs[0] != "192.168.1.2" {
		t.Error("session config must not alias the config file's slices")
	}
}
