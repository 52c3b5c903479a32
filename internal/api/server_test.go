package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/wrtpresence/internal/router"
	"github.com/muurk/wrtpresence/internal/tracker"
	"github.com/muurk/wrtpresence/internal/transport/transporttest"
	"github.com/muurk/wrtpresence/internal/wrt"
)

func newTracker(t *testing.T) *tracker.Tracker {
	t.Helper()
	fake := transporttest.New().
		Set("192.168.1.1", wrt.OpWireless, "aa:bb:cc:dd:ee:01\nAA:BB:CC:DD:EE:02\n").
		Set("192.168.1.1", wrt.OpLeases, "aa:bb:cc:dd:ee:01,laptop,192.168.1.10,1700000000\n")

	s := router.New(router.Config{
		Name:     "main",
		Host:     "192.168.1.1",
		Protocol: wrt.ProtocolSSH,
		Mode:     wrt.ModeRouter,
	}, fake, nil)
	if err := s.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	tr := tracker.New([]*router.Session{s}, tracker.Options{})
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(newTracker(t), nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if v == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestScan(t *testing.T) {
	_, srv := newTestServer(t)

	var first ScanResponse
	getJSON(t, srv.URL+"/api/scan", http.StatusOK, &first)
	if first.Count != 2 || len(first.Clients) != 2 {
		t.Fatalf("scan = %+v, want 2 clients", first)
	}
	if first.Clients[0].MAC != "aa:bb:cc:dd:ee:01" || first.Clients[1].MAC != "aa:bb:cc:dd:ee:02" {
		t.Errorf("clients = %+v", first.Clients)
	}
	if first.Clients[0].Hostname != "" {
		t.Error("hostname should be empty before the lease cache is filled")
	}

	var leases LeasesResponse
	getJSON(t, srv.URL+"/api/leases", http.StatusOK, &leases)
	if leases.Count != 1 || leases.Error != "" {
		t.Fatalf("leases = %+v", leases)
	}

	var second ScanResponse
	getJSON(t, srv.URL+"/api/scan", http.StatusOK, &second)
	if second.Clients[0].Hostname != "laptop" {
		t.Errorf("hostname = %q, want laptop", second.Clients[0].Hostname)
	}
}

func TestDevice(t *testing.T) {
	_, srv := newTestServer(t)

	tests := []struct {
		name       string
		mac        string
		wantStatus int
		wantHost   string
	}{
		{"known", "aa:bb:cc:dd:ee:01", http.StatusOK, "laptop"},
		{"known uppercase", "AA:BB:CC:DD:EE:01", http.StatusOK, "laptop"},
		{"unknown", "aa:bb:cc:dd:ee:99", http.StatusNotFound, ""},
		{"invalid", "not-a-mac", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantStatus != http.StatusOK {
				getJSON(t, srv.URL+"/api/devices/"+tt.mac, tt.wantStatus, nil)
				return
			}
			var record wrt.DeviceRecord
			getJSON(t, srv.URL+"/api/devices/"+tt.mac, tt.wantStatus, &record)
			if record.Hostname != tt.wantHost {
				t.Errorf("hostname = %q, want %q", record.Hostname, tt.wantHost)
			}
			if record.Attr(wrt.AttrIP) != "192.168.1.10" {
				t.Errorf("ip = %q", record.Attr(wrt.AttrIP))
			}
			if record.Attr(wrt.AttrSource) != "main" {
				t.Errorf("source = %q", record.Attr(wrt.AttrSource))
			}
		})
	}
}

func TestStatus(t *testing.T) {
	_, srv := newTestServer(t)

	var status StatusResponse
	getJSON(t, srv.URL+"/api/status", http.StatusOK, &status)
	if len(status.Hosts) != 1 {
		t.Fatalf("hosts = %+v", status.Hosts)
	}
	h := status.Hosts[0]
	if h.Device != "main" || !h.Primary || h.State != "online" {
		t.Errorf("host = %+v", h)
	}
	if status.Failures == nil || len(status.Failures) != 0 {
		t.Errorf("failures = %v, want empty object", status.Failures)
	}
}

func dialEvents(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEvents(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dialEvents(t, srv)

	getJSON(t, srv.URL+"/api/scan", http.StatusOK, nil)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event tracker.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if event.Type != tracker.EventScan {
		t.Errorf("event type = %q, want scan", event.Type)
	}
	if len(event.MACs) != 2 {
		t.Errorf("event MACs = %v", event.MACs)
	}
}

func TestEvents_ShutdownClosesStream(t *testing.T) {
	s, srv := newTestServer(t)
	conn := dialEvents(t, srv)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() error = %v, want going-away close", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(newTracker(t), nil)
	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() { errChan <- s.Run(ctx, "127.0.0.1:0") }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var status StatusResponse
	getJSON(t, "http://"+s.Addr().String()+"/api/status", http.StatusOK, &status)

	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
