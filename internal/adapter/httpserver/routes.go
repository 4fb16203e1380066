package httpserver

import (
	"log/slog"

	apperrors "github.com/hazixroland-ai/tiktoklive/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) registerRoutes() {
	s.echo.Validator = newRequestValidator()

	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
		s.echo.Use(apperrors.Middleware(s.httpMetrics.Errors))
	} else {
		s.echo.Use(apperrors.Middleware(nil))
	}
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		HSTSPreloadEnabled:    true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	s.registerOverlayRoutes()
	s.registerStreamerRoutes()

	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}

func (s *Server) registerOverlayRoutes() {
	s.echo.GET("/ws", s.handleWebSocket)

	overlay := s.echo.Group("/api/overlay/:streamerId", newOverlayRateLimiter(s.config.OverlayRateLimit, s.config.OverlayRateBurst, s.httpMetrics))
	overlay.GET("/state", s.handleOverlayState)
	overlay.POST("/bottle/use", s.handleUseBottle)
}

func (s *Server) registerStreamerRoutes() {
	api := s.echo.Group("/api/streamers", requireAPIKey(s.config.APIKey))
	api.POST("", s.handleCreateStreamer)
	api.GET("", s.handleListStreamers)
	api.GET("/:id", s.handleGetStreamer)
	api.POST("/:id/listen/start", s.handleStartListening)
	api.POST("/:id/listen/stop", s.handleStopListening)
	api.POST("/:id/rotate-token", s.handleRotateToken)
	api.DELETE("/:id", s.handleDeleteStreamer)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health/live"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", redactToken(v.URI),
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
