package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/muurk/wrtpresence/internal/tracker"
	"github.com/muurk/wrtpresence/internal/wrt"
)

// Client is one associated MAC in a scan response. Hostname is filled from
// the lease cache as it stands; a scan never triggers a lease fetch.
type Client struct {
	MAC      string `json:"mac"`
	Hostname string `json:"hostname,omitempty"`
}

// ScanResponse is the body of GET /api/scan
type ScanResponse struct {
	Time    time.Time `json:"time"`
	Count   int       `json:"count"`
	Clients []Client  `json:"clients"`
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Hosts    []tracker.HostStatus `json:"hosts"`
	Failures map[string]string    `json:"failures"`
}

// LeasesResponse is the body of GET /api/leases
type LeasesResponse struct {
	Count   int                `json:"count"`
	Devices []wrt.DeviceRecord `json:"devices"`
	Error   string             `json:"error,omitempty"`
}

// handleScan handles GET /api/scan
func (s *Server) handleScan(c echo.Context) error {
	macs := s.backend.Scan(c.Request().Context())

	resp := ScanResponse{
		Time:    time.Now().UTC(),
		Count:   len(macs),
		Clients: make([]Client, 0, len(macs)),
	}
	for _, mac := range macs {
		client := Client{MAC: mac}
		if record, ok := s.backend.Known(mac); ok {
			client.Hostname = record.Hostname
		}
		resp.Clients = append(resp.Clients, client)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleDevice handles GET /api/devices/:mac
func (s *Server) handleDevice(c echo.Context) error {
	mac, ok := wrt.NormalizeMAC(c.Param("mac"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid MAC address")
	}

	record, ok := s.backend.Resolve(c.Request().Context(), mac)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown device")
	}
	return c.JSON(http.StatusOK, record)
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{
		Hosts:    s.backend.Status(),
		Failures: make(map[string]string),
	}
	if resp.Hosts == nil {
		resp.Hosts = []tracker.HostStatus{}
	}
	for name, err := range s.backend.Failures() {
		resp.Failures[name] = wrt.ShortMessage(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleLeases handles GET /api/leases. Sources that fail are reported in
// Error alongside the leases that were collected.
func (s *Server) handleLeases(c echo.Context) error {
	records, err := s.backend.Leases(c.Request().Context())

	resp := LeasesResponse{Devices: make([]wrt.DeviceRecord, 0, len(records))}
	for _, mac := range wrt.SortedMACs(records) {
		resp.Devices = append(resp.Devices, records[mac])
	}
	resp.Count = len(resp.Devices)
	if err != nil {
		s.logger.Warn("Lease rebuild incomplete", zap.Error(err))
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
