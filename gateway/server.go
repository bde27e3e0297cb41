package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
	"github.com/hupe1980/agentroom/metrics"
)

// DefaultKeepAlive is the keep-alive interval of the duplex channel.
const DefaultKeepAlive = 30 * time.Second

// Sessions hands out per-user sessions.
type Sessions interface {
	GetOrCreate(userID string) (*core.Session, bool)
	Len() int
}

// Options holds dependency overrides passed to New.
type Options struct {
	// KeepAlive is the interval of keep-alive frames on the duplex channel.
	KeepAlive time.Duration
	// Metrics records HTTP and connection metrics. Nil disables them.
	Metrics *metrics.Collector
	// Gatherer backs GET MetricsPath. Nil disables the endpoint.
	Gatherer    prometheus.Gatherer
	MetricsPath string
	Logger      logging.Logger
}

// Server is the client-facing HTTP surface: the per-user duplex channel, the
// request/response events endpoint, health and metrics.
type Server struct {
	echo     *echo.Echo
	handler  core.MessageHandler
	sessions Sessions
	opts     Options
	logger   logging.Logger

	mu       sync.Mutex
	channels map[string]*channel
}

// New creates a Server routing client text to handler.
func New(handler core.MessageHandler, sessions Sessions, optFns ...func(o *Options)) *Server {
	opts := Options{
		KeepAlive:   DefaultKeepAlive,
		MetricsPath: "/metrics",
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		handler:  handler,
		sessions: sessions,
		opts:     opts,
		logger:   logging.With(opts.Logger, "component", "gateway"),
		channels: make(map[string]*channel),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.observe)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ws/:user_id", s.handleChannel)
	s.echo.POST("/cli/events", s.handleEvent)

	if s.opts.Gatherer != nil {
		s.echo.GET(s.opts.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}
}

// observe logs every request and records it in the HTTP metrics.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		duration := time.Since(start)

		req := c.Request()
		status := c.Response().Status
		s.logger.Info("http.request",
			"method", req.Method,
			"uri", req.RequestURI,
			"status", status,
			"duration", duration,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		s.opts.Metrics.RecordHTTPRequest(req.Method, c.Path(), status, duration)
		return nil
	}
}

// EventRequest is the request body for POST /cli/events.
type EventRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// EventResponse is the response body for POST /cli/events.
type EventResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Sessions: s.sessions.Len()})
}

// handleEvent routes one request/response submission. Agent output still
// flows through the session outbox.
func (s *Server) handleEvent(c echo.Context) error {
	var req EventRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("gateway.event.invalid", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id field is required")
	}

	ack := s.handler.Handle(c.Request().Context(), req.UserID, req.Text, true)
	if !ack.OK {
		return c.JSON(http.StatusBadRequest, EventResponse{Message: ack.Message})
	}
	return c.JSON(http.StatusOK, EventResponse{Message: ack.Message})
}

// Handler exposes the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("gateway.start", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and closes every duplex channel.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gateway.shutdown")

	s.mu.Lock()
	channels := make([]*channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()
	for _, ch := range channels {
		ch.close("server shutting down")
	}

	return s.echo.Shutdown(ctx)
}
