package wrt

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

// timeoutError implements net.Error with Timeout() == true
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{
			name: "timeout wrapped in url.Error",
			err: &url.Error{
				Op:  "Get",
				URL: "http://192.168.1.1/Status_Wireless.live.asp",
				Err: &net.OpError{Op: "dial", Net: "tcp", Err: timeoutError{}},
			},
			wantType: ErrTypeTimeout,
		},
		{
			name: "connection refused",
			err: &url.Error{
				Op:  "Get",
				URL: "http://192.168.1.1",
				Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			},
			wantType: ErrTypeConnectionRefused,
		},
		{
			name:     "EOF during handshake",
			err:      fmt.Errorf("ssh: handshake failed: %w", io.EOF),
			wantType: ErrTypeConnectionRefused,
		},
		{
			name:     "dns failure",
			err:      &net.DNSError{Err: "no such host", Name: "router.lan", IsNotFound: true},
			wantType: ErrTypeDNS,
		},
		{
			name:     "host unreachable",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH},
			wantType: ErrTypeNetwork,
		},
		{
			name:     "generic",
			err:      errors.New("connection reset"),
			wantType: ErrTypeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetworkError(tt.err, "192.168.1.1")
			if got == nil {
				t.Fatal("ClassifyNetworkError() = nil")
			}
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if !got.Retryable {
				t.Error("connection-level errors should be retryable")
			}
			if got.Host != "192.168.1.1" {
				t.Errorf("Host = %q, want 192.168.1.1", got.Host)
			}
		})
	}
}

func TestClassifyNetworkError_Nil(t *testing.T) {
	if got := ClassifyNetworkError(nil, "h"); got != nil {
		t.Errorf("ClassifyNetworkError(nil) = %v, want nil", got)
	}
}

func TestNewNetworkError_KeepsTimeoutMessage(t *testing.T) {
	err := NewNetworkError("r1", "GET request failed", &net.OpError{Op: "read", Err: timeoutError{}})
	if err.Type != ErrTypeTimeout {
		t.Fatalf("Type = %v, want timeout", err.Type)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Error() = %q, want timeout message", err.Error())
	}
}

func TestErrorPredicates(t *testing.T) {
	auth := NewAuthError("r1", "Failed to authenticate")
	if !IsAuthError(auth) || IsConnectionError(auth) || IsRetryable(auth) {
		t.Error("auth error should be terminal and not a connection error")
	}

	wrapped := fmt.Errorf("probe: %w", auth)
	if !IsAuthError(wrapped) {
		t.Error("IsAuthError should see through wrapping")
	}

	refused := NewConnectionRefusedError("r1", "Connection refused. Is SSH enabled?", io.EOF)
	if !IsConnectionRefused(refused) || !IsConnectionError(refused) {
		t.Error("refused should be a connection error")
	}

	unexpected := NewUnexpectedResponseError("r1", "prompt not found", nil)
	if !IsUnexpectedResponse(unexpected) || IsConnectionError(unexpected) {
		t.Error("unexpected response misclassified")
	}

	cfg := NewConfigurationError("password and ssh_key are mutually exclusive")
	if !IsConfigurationError(cfg) || IsRetryable(cfg) {
		t.Error("configuration error misclassified")
	}

	if !IsHTTPError(NewHTTPError("r1", 444, "Invalid response from router")) {
		t.Error("IsHTTPError() = false")
	}
	if !IsNoDataError(NewNoDataError("r1", "no active_wireless")) {
		t.Error("IsNoDataError() = false")
	}

	if IsAuthError(errors.New("plain")) || IsRetryable(errors.New("plain")) {
		t.Error("plain errors should not match")
	}
}

func TestError_Message(t *testing.T) {
	err := NewHTTPError("192.168.1.1", 444, "Invalid response from router")
	got := err.Error()
	for _, want := range []string{"HTTP Error", "192.168.1.1", "Invalid response from router"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestTroubleshootingHint(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewAuthError("r", "x"), "Failed to authenticate"},
		{NewConnectionRefusedError("r", "x", nil), "Is SSH enabled?"},
		{NewHTTPError("r", 444, "x"), "HTTP 444"},
		{errors.New("boom"), "unexpected error"},
	}

	for _, tt := range tests {
		if got := TroubleshootingHint(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("TroubleshootingHint(%v) = %q, want substring %q", tt.err, got, tt.want)
		}
	}
}

func TestShortMessage(t *testing.T) {
	if got := ShortMessage(NewAuthError("r", "x")); got != "Authentication failed - check credentials" {
		t.Errorf("ShortMessage(auth) = %q", got)
	}
	if got := ShortMessage(errors.New("boom")); got != "boom" {
		t.Errorf("ShortMessage(plain) = %q", got)
	}
}
