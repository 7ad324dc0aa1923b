// Package server exposes the bridge's small operational HTTP surface.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Handler registers routes on the echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

type Server struct {
	echo *echo.Echo
	addr string
}

// New builds the HTTP server and registers the given handlers.
func New(log *slog.Logger, addr string, handlers ...Handler) *Server {
	if addr == "" {
		addr = ":8080"
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}
	return &Server{echo: e, addr: addr}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// StateReporter exposes the bridge connection state for /status.
type StateReporter interface {
	State() string
	Running() bool
}

// StatusHandler serves liveness and connection-state endpoints.
type StatusHandler struct {
	reporter  StateReporter
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler backed by the given reporter.
func NewStatusHandler(reporter StateReporter) *StatusHandler {
	return &StatusHandler{reporter: reporter, startedAt: time.Now().UTC()}
}

func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
	e.GET("/status", h.Status)
}

func (h *StatusHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *StatusHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *StatusHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"state":   h.reporter.State(),
		"running": h.reporter.Running(),
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	})
}
