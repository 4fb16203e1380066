package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/platform/version"
	"github.com/labstack/echo/v4"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck is a named dependency probe run by the startup and readiness endpoints.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type livenessResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Overlays      int64   `json:"overlays"`
	Streamers     int     `json:"streamers"`
	Connected     int     `json:"connected"`
	Retrying      int     `json:"retrying"`
}

type checkResult struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status string        `json:"status"`
	Checks []checkResult `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.probe(startupProbeTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.probe(readinessProbeTimeout))
	s.echo.GET("/version", s.handleVersion)
}

// handleLiveness never touches dependencies.
func (s *Server) handleLiveness(c echo.Context) error {
	summary := s.app.RuntimeSummary()
	return writeJSON(c, http.StatusOK, livenessResponse{
		Status:        "ok",
		UptimeSeconds: s.clock.Since(s.startTime).Seconds(),
		Overlays:      s.limits.Active(),
		Streamers:     summary.Streamers,
		Connected:     summary.Connected,
		Retrying:      summary.Retrying,
	})
}

// probe runs every check and reports each one. Any failure answers 503.
func (s *Server) probe(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		resp := readinessResponse{Status: "ready", Checks: make([]checkResult, 0, len(s.healthChecks))}
		for _, hc := range s.healthChecks {
			result := s.runCheck(ctx, hc)
			if result.Error != "" {
				resp.Status = "unhealthy"
			}
			resp.Checks = append(resp.Checks, result)
		}

		code := http.StatusOK
		if resp.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		return writeJSON(c, code, resp)
	}
}

func (s *Server) runCheck(ctx context.Context, hc HealthCheck) checkResult {
	start := s.clock.Now()
	err := hc.Check(ctx)
	result := checkResult{Name: hc.Name, Status: "ok", LatencyMs: s.clock.Since(start).Milliseconds()}
	if err != nil {
		slog.WarnContext(ctx, "Health check failed", "check", hc.Name, "error", err)
		result.Status = "failed"
		result.Error = err.Error()
	}
	return result
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, http.StatusOK, version.Get())
}

func writeJSON(c echo.Context, code int, body any) error {
	if err := c.JSON(code, body); err != nil {
		return fmt.Errorf("failed to write %s response: %w", c.Path(), err)
	}
	return nil
}
