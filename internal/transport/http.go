package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/muurk/wrtpresence/internal/logging"
	"github.com/muurk/wrtpresence/internal/version"
	"github.com/muurk/wrtpresence/internal/wrt"
)

// Web UI pages that expose {key::value} status tokens
const (
	LeasesPath   = "/Status_Lan.live.asp"
	WirelessPath = "/Status_Wireless.live.asp"
)

// HTTPClient fetches DD-WRT status pages with HTTP Basic Auth
type HTTPClient struct {
	// Username for HTTP Basic Auth
	Username string

	// Password for HTTP Basic Auth
	Password string

	// Port is appended to hosts without an explicit port (80 is omitted)
	Port int

	// Scheme is "http" unless overridden
	Scheme string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	logger *zap.Logger
}

// NewHTTPClient creates a web UI client
func NewHTTPClient(opts Options) *HTTPClient {
	port := opts.Port
	if port == 80 {
		port = 0
	}
	return &HTTPClient{
		Username:   opts.Username,
		Password:   opts.Password,
		Port:       port,
		Scheme:     "http",
		HTTPClient: &http.Client{Timeout: opts.timeout(DefaultHTTPTimeout)},
		logger:     opts.logger(),
	}
}

// URL returns the status page URL for op on host
func (c *HTTPClient) URL(host string, op wrt.Operation) string {
	path := WirelessPath
	if op == wrt.OpLeases {
		path = LeasesPath
	}
	return fmt.Sprintf("%s://%s%s", c.Scheme, hostPort(host, c.Port), path)
}

// Fetch performs one authenticated GET. There is no retry: a failed poll is
// reported and the next scan tries again.
func (c *HTTPClient) Fetch(ctx context.Context, host string, op wrt.Operation) ([]byte, error) {
	url := c.URL(host, op)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, wrt.NewNetworkError(host, "failed to create GET request", err)
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		wErr := wrt.NewNetworkError(host, "GET request failed", err)
		c.logger.Debug("Request failed", zap.String("url", url), zap.Error(wErr))
		return nil, wErr
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, wrt.NewAuthError(host, "Failed to authenticate, please check your username and password")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, wrt.NewHTTPError(host, resp.StatusCode, fmt.Sprintf("Invalid response from router: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, wrt.NewNetworkError(host, "failed to read response body", err)
	}

	logging.LogPayload(c.logger, "Received "+op.String()+" page", body)
	return body, nil
}

// Close drops idle keep-alive connections
func (c *HTTPClient) Close() error {
	c.HTTPClient.CloseIdleConnections()
	return nil
}
