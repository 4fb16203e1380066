package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hazixroland-ai/tiktoklive/internal/adapter/metrics"
	"github.com/hazixroland-ai/tiktoklive/internal/app"
	"github.com/hazixroland-ai/tiktoklive/internal/broadcast"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/hazixroland-ai/tiktoklive/internal/live"
	"github.com/hazixroland-ai/tiktoklive/internal/platform/config"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

type appService interface {
	CreateStreamer(ctx context.Context, params domain.CreateStreamerParams) (*domain.Streamer, error)
	GetStreamer(ctx context.Context, id string) (app.StreamerView, error)
	ListStreamers(ctx context.Context) ([]app.StreamerView, error)
	StartListening(ctx context.Context, id string) (live.StartResult, error)
	StopListening(ctx context.Context, id string) error
	RotateOverlayToken(ctx context.Context, id string) (string, error)
	DeleteStreamer(ctx context.Context, id string) error
	OverlayState(ctx context.Context, id, token string) (*domain.Streamer, domain.BottleState, error)
	UseBottle(ctx context.Context, id, token string) (int, domain.BottleState, error)
	SubscribeOverlay(ctx context.Context, id, token string, conn broadcast.Conn) (string, error)
	UnsubscribeOverlay(id string, conn broadcast.Conn)
	RuntimeSummary() app.RuntimeSummary
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app            appService
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler

	limits       *ConnectionLimits
	upgrader     websocket.Upgrader
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, app appService, clock clockwork.Clock, httpMetrics *metrics.HTTPMetrics, metricsHandler http.Handler, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		clock:          clock,
		app:            app,
		httpMetrics:    httpMetrics,
		metricsHandler: metricsHandler,
		limits: NewConnectionLimits(clock, int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP,
			cfg.OverlayRateLimit, cfg.OverlayRateBurst),
		upgrader:     newUpgrader(cfg.BaseURL, !cfg.IsProduction()),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) getBaseURL(c echo.Context) string {
	if s.config.BaseURL != "" {
		return s.config.BaseURL
	}
	scheme := "http"
	if c.Request().TLS != nil {
		scheme = "https"
	}
	if fwdProto := c.Request().Header.Get("X-Forwarded-Proto"); fwdProto == "http" || fwdProto == "https" {
		scheme = fwdProto
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request().Host)
}
