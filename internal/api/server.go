package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/muurk/wrtpresence/internal/tracker"
	"github.com/muurk/wrtpresence/internal/wrt"
)

// DefaultListen is the address `serve` binds when none is configured
const DefaultListen = "127.0.0.1:8086"

// shutdownTimeout bounds the graceful stop of the HTTP server
const shutdownTimeout = 5 * time.Second

// Backend is the presence engine behind the API. *tracker.Tracker
// satisfies it.
type Backend interface {
	Scan(ctx context.Context) []string
	Known(mac string) (wrt.DeviceRecord, bool)
	Resolve(ctx context.Context, mac string) (wrt.DeviceRecord, bool)
	Leases(ctx context.Context) (map[string]wrt.DeviceRecord, error)
	Status() []tracker.HostStatus
	Failures() map[string]error
	Subscribe() (<-chan tracker.Event, func())
}

// Server exposes a Backend as a JSON API with a websocket event stream
type Server struct {
	backend  Backend
	echo     *echo.Echo
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// done is closed on shutdown to end hijacked event streams
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Server for backend. A nil logger disables logging.
func New(backend Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		backend: backend,
		echo:    echo.New(),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		done: make(chan struct{}),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("Request served",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	g := s.echo.Group("/api")
	g.GET("/scan", s.handleScan)
	g.GET("/devices/:mac", s.handleDevice)
	g.GET("/status", s.handleStatus)
	g.GET("/leases", s.handleLeases)
	g.GET("/events", s.handleEvents)
}

// Handler returns the HTTP handler, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the bound address once Run has started listening
func (s *Server) Addr() net.Addr {
	return s.echo.ListenerAddr()
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	s.logger.Info("Starting API server", zap.String("addr", addr))

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.echo.Start(addr)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown requested, stopping API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown closes event streams and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("API server stopped")
	return nil
}
