// Package admin serves the HTTP administrative surface of a node: health,
// per-service statistics and the text commands.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/najoast/uboss/config"
	"github.com/najoast/uboss/core"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ModuleName is the module of the service context commands run under.
const ModuleName = "admin"

// ErrNotAttached is returned when the admin service is not running.
var ErrNotAttached = errors.New("admin service not attached")

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Cmd   string `json:"cmd"`
	Param string `json:"param"`
}

// CommandResponse is the result of a command.
type CommandResponse struct {
	Result string `json:"result"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Services  int    `json:"services"`
	StartTime uint32 `json:"start_time"`
	Now       uint64 `json:"now"`
}

// Server is the admin HTTP server.
type Server struct {
	node   *core.Node
	cfg    config.HTTPMonitorConfig
	logger *zap.Logger
	e      *echo.Echo

	// handle of the admin service, 0 when it is not running
	mu     sync.RWMutex
	handle core.Handle
}

// service is the instance backing the admin service context.
type service struct {
	s      *Server
	handle core.Handle
}

func (a *service) Init(ctx *core.Context, args string) error {
	s := a.s
	// notifications such as monitor-exit messages are only logged
	ctx.Callback(s, func(ctx *core.Context, ud any, typ core.MessageType, session int32, source core.Handle, data []byte) bool {
		s.logger.Debug("message", zap.Stringer("type", typ), zap.Stringer("source", source), zap.Int32("session", session))
		return false
	})
	a.handle = ctx.Handle()
	s.mu.Lock()
	s.handle = a.handle
	s.mu.Unlock()
	return nil
}

// Release detaches the server once the service is deleted, whether by
// Shutdown, EXIT, KILL or ABORT.
func (a *service) Release() {
	a.s.mu.Lock()
	if a.s.handle == a.handle {
		a.s.handle = 0
	}
	a.s.mu.Unlock()
}

// New creates the server and registers the admin module on node.
func New(node *core.Node, cfg config.HTTPMonitorConfig, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		node:   node,
		cfg:    cfg,
		logger: logger.Named("admin"),
	}

	if err := node.Modules().Register(ModuleName, core.ModuleFunc(func() core.Instance { return &service{s: s} })); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			s.logger.Debug("request", fields...)
			return nil
		},
	}))
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}
	e.GET(healthPath, s.health)
	e.GET("/services", s.services)
	e.GET("/services/:handle/stat", s.stat)
	e.POST("/command", s.command)

	s.e = e
	return s, nil
}

// Attach launches the admin service context.
func (s *Server) Attach() error {
	if _, err := s.node.Launch(ModuleName, ""); err != nil {
		return fmt.Errorf("launch admin service: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.e.Listener = l
	err := s.e.Start("")
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))
}

// Shutdown stops the HTTP server and retires the admin service.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.e.Shutdown(ctx)

	s.mu.RLock()
	h := s.handle
	s.mu.RUnlock()
	if h != 0 {
		s.node.Handles().Retire(h)
	}
	return err
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Services:  s.node.Total(),
		StartTime: s.node.Timer().StartTime(),
		Now:       s.node.Timer().Now(),
	})
}

func (s *Server) services(c echo.Context) error {
	handles := s.node.Handles().Handles()
	stats := make([]core.ServiceStat, 0, len(handles))
	for _, h := range handles {
		if st, ok := s.node.Stat(h); ok {
			stats = append(stats, st)
		}
	}
	return c.JSON(http.StatusOK, stats)
}

func parseHandle(s string) (core.Handle, error) {
	if !strings.HasPrefix(s, ":") {
		s = ":" + s
	}
	return core.ParseHandle(s)
}

func (s *Server) stat(c echo.Context) error {
	h, err := parseHandle(c.Param("handle"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, ok := s.node.Stat(h)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("service %s not found", h))
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) command(c echo.Context) error {
	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if req.Cmd == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing cmd")
	}

	s.mu.RLock()
	h := s.handle
	s.mu.RUnlock()
	actx := s.node.Handles().Grab(h)
	if actx == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, ErrNotAttached.Error())
	}
	defer actx.Release()

	result := actx.Command(strings.ToUpper(req.Cmd), req.Param)
	s.logger.Info("command", zap.String("cmd", req.Cmd), zap.String("param", req.Param), zap.String("result", result))
	return c.JSON(http.StatusOK, CommandResponse{Result: result})
}
