package wrt

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred while talking to a router
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (unreachable, reset, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request or prompt wait timed out
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the router refused the connection or
	// closed it before a login prompt was reached
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeAuth indicates the router rejected the credentials
	ErrTypeAuth
	// ErrTypeHTTP indicates a non-200 HTTP status other than 401
	ErrTypeHTTP
	// ErrTypeParse indicates a payload that could not be decoded at all
	ErrTypeParse
	// ErrTypeUnexpectedResponse indicates the router answered but not in the
	// shape expected after login (prompt mismatch, command failure)
	ErrTypeUnexpectedResponse
	// ErrTypeNoData indicates the router answered without the requested data
	ErrTypeNoData
	// ErrTypeConfiguration indicates invalid or conflicting configuration
	ErrTypeConfiguration
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeUnexpectedResponse:
		return "Unexpected Response"
	case ErrTypeNoData:
		return "No Data"
	case ErrTypeConfiguration:
		return "Configuration Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error represents a failure talking to, or configuring, a router
type Error struct {
	Type       ErrorType // Category of error
	Message    string    // Human-readable error message
	Host       string    // Router host (for context)
	StatusCode int       // HTTP status code (if applicable)
	Err        error     // Underlying error (if any)
	Retryable  bool      // Whether a later scan may succeed without operator action
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Type.String()
	if e.Host != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, e.Host)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a dial/read error and returns a typed Error.
// Returns nil for a nil error.
func ClassifyNetworkError(err error, host string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{
			Type:      ErrTypeTimeout,
			Message:   "Connection to the router timed out",
			Host:      host,
			Err:       err,
			Retryable: true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Type:      ErrTypeDNS,
			Message:   fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Host:      host,
			Err:       err,
			Retryable: true,
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{
			Type:      ErrTypeConnectionRefused,
			Message:   "Router refused connection",
			Host:      host,
			Err:       err,
			Retryable: true,
		}
	}

	if errors.Is(err, syscall.EHOSTUNREACH) {
		return &Error{
			Type:      ErrTypeNetwork,
			Message:   "Host unreachable",
			Host:      host,
			Err:       err,
			Retryable: true,
		}
	}

	if errors.Is(err, syscall.ENETUNREACH) {
		return &Error{
			Type:      ErrTypeNetwork,
			Message:   "Network unreachable",
			Host:      host,
			Err:       err,
			Retryable: true,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err, host)
	}

	return &Error{
		Type:      ErrTypeNetwork,
		Message:   "Network error occurred",
		Host:      host,
		Err:       err,
		Retryable: true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(host, message string, err error) *Error {
	classified := ClassifyNetworkError(err, host)
	if classified == nil {
		return &Error{Type: ErrTypeNetwork, Message: message, Host: host, Retryable: true}
	}
	if classified.Type != ErrTypeTimeout {
		classified.Message = message
	}
	return classified
}

// NewAuthError creates an authentication error
func NewAuthError(host, message string) *Error {
	return &Error{
		Type:       ErrTypeAuth,
		Message:    message,
		Host:       host,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(host string, statusCode int, message string) *Error {
	return &Error{
		Type:       ErrTypeHTTP,
		Message:    message,
		Host:       host,
		StatusCode: statusCode,
		Retryable:  true,
	}
}

// NewConnectionRefusedError creates an error for a login that never reached a prompt
func NewConnectionRefusedError(host, message string, err error) *Error {
	return &Error{
		Type:      ErrTypeConnectionRefused,
		Message:   message,
		Host:      host,
		Err:       err,
		Retryable: true,
	}
}

// NewUnexpectedResponseError creates an error for a post-login protocol mismatch
func NewUnexpectedResponseError(host, message string, err error) *Error {
	return &Error{
		Type:      ErrTypeUnexpectedResponse,
		Message:   message,
		Host:      host,
		Err:       err,
		Retryable: true,
	}
}

// NewNoDataError creates an error for a response that carried none of the requested data
func NewNoDataError(host, message string) *Error {
	return &Error{
		Type:      ErrTypeNoData,
		Message:   message,
		Host:      host,
		Retryable: true,
	}
}

// NewParseError creates a parsing error
func NewParseError(host, message string, err error) *Error {
	return &Error{
		Type:    ErrTypeParse,
		Message: message,
		Host:    host,
		Err:     err,
	}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *Error {
	return &Error{
		Type:    ErrTypeConfiguration,
		Message: message,
	}
}

func typeOf(err error) (ErrorType, bool) {
	var wErr *Error
	if errors.As(err, &wErr) {
		return wErr.Type, true
	}
	return 0, false
}

// IsConnectionError reports whether err is a transport-level failure
// (network, timeout, refused, DNS). These drive ONLINE/OFFLINE transitions.
func IsConnectionError(err error) bool {
	t, ok := typeOf(err)
	if !ok {
		return false
	}
	return t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeAuth
}

// IsTimeoutError checks if an error is a timeout
func IsTimeoutError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeTimeout
}

// IsConnectionRefused checks if the router refused the connection
func IsConnectionRefused(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeConnectionRefused
}

// IsUnexpectedResponse checks if an error is a post-login protocol mismatch
func IsUnexpectedResponse(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeUnexpectedResponse
}

// IsHTTPError checks if an error is an HTTP status error
func IsHTTPError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeHTTP
}

// IsNoDataError checks if the router answered without the requested data
func IsNoDataError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeNoData
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeConfiguration
}

// IsRetryable checks if a later attempt could succeed without operator action
func IsRetryable(err error) bool {
	var wErr *Error
	if errors.As(err, &wErr) {
		return wErr.Retryable
	}
	return false
}

// TroubleshootingHint returns user-friendly troubleshooting advice for an error
func TroubleshootingHint(err error) string {
	var wErr *Error
	if !errors.As(err, &wErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch wErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The router did not respond in time.",
			"Troubleshooting:",
			"  • Check that the router is powered on and reachable",
			"  • Increase scan.http_timeout for slow firmware",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"Connection refused. Is SSH enabled?",
			"Troubleshooting:",
			"  • Enable SSH (or Telnet) under Services > Secure Shell in the router UI",
			"  • Verify the configured port (22 for ssh, 23 for telnet)",
			"  • Some firmware only accepts LAN-side connections",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			"Failed to authenticate, please check your username and password.",
			"Troubleshooting:",
			"  • DD-WRT web and SSH logins use the 'root' user by default",
			"  • For key authentication, check ssh_key points to the private key",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the router hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of hostname",
		}, "\n")

	case ErrTypeHTTP:
		return fmt.Sprintf("Invalid response from router (HTTP %d). Check that the web UI is DD-WRT.", wErr.StatusCode)

	case ErrTypeUnexpectedResponse:
		return strings.Join([]string{
			"Unexpected response from router.",
			"Troubleshooting:",
			"  • The shell prompt or command output was not recognised",
			"  • Check that the 'wl' utility exists on the firmware",
		}, "\n")

	case ErrTypeNoData:
		return "The router answered but did not include client data. Is the wireless radio enabled?"

	case ErrTypeConfiguration:
		return "The configuration is invalid. Check the error message for details."

	case ErrTypeNetwork:
		return strings.Join([]string{
			"Network communication failed.",
			"Troubleshooting:",
			"  • Check your network connection",
			"  • Verify the router host is correct",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// ShortMessage returns a concise, user-friendly error message
func ShortMessage(err error) string {
	var wErr *Error
	if !errors.As(err, &wErr) {
		return err.Error()
	}

	switch wErr.Type {
	case ErrTypeTimeout:
		return "Router not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Connection refused - is SSH enabled?"
	case ErrTypeAuth:
		return "Authentication failed - check credentials"
	case ErrTypeDNS:
		return "Cannot resolve router hostname"
	case ErrTypeHTTP:
		return fmt.Sprintf("Router error (HTTP %d)", wErr.StatusCode)
	case ErrTypeNoData:
		return "No client data received"
	default:
		return wErr.Message
	}
}
