package httpserver

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hazixroland-ai/tiktoklive/internal/broadcast"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	apperrors "github.com/hazixroland-ai/tiktoklive/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const (
	closeWriteWait    = time.Second
	maxClientFrameLen = 512
)

// handleWebSocket upgrades first and checks the overlay token afterwards, so
// a bad token is reported to the overlay as a close code it can show.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		if s.httpMetrics != nil {
			s.httpMetrics.WSRejected.WithLabelValues(string(reason)).Inc()
		}
		slog.Warn("WebSocket connection rejected", "remote_ip", ip, "reason", reason)
		return apperrors.RateLimitedError("too many connections").WithField("reason", string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote an HTTP error response.
		slog.Debug("WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}
	conn.SetReadLimit(maxClientFrameLen)

	ctx := c.Request().Context()
	streamerID := c.QueryParam("streamerId")

	clientID, err := s.app.SubscribeOverlay(ctx, streamerID, c.QueryParam("token"), conn)
	if err != nil {
		code, text := closeCodeFor(err)
		if code == websocket.CloseInternalServerErr {
			slog.ErrorContext(ctx, "Overlay subscribe failed", "streamer_id", streamerID, "error", err)
		} else {
			slog.InfoContext(ctx, "Overlay subscribe rejected", "streamer_id", streamerID, "reason", text)
		}
		closeWithCode(conn, code, text)
		return nil
	}
	slog.DebugContext(ctx, "Overlay connected", "streamer_id", streamerID, "client_id", clientID)

	// Overlays never send anything meaningful; reading drives pong handling
	// and notices the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.app.UnsubscribeOverlay(streamerID, conn)
	slog.DebugContext(ctx, "Overlay disconnected", "streamer_id", streamerID, "client_id", clientID)
	return nil
}

func closeCodeFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrStreamerNotFound):
		return websocket.ClosePolicyViolation, "Unauthorized"
	case errors.Is(err, broadcast.ErrTooManyClients):
		return websocket.CloseTryAgainLater, "Too many overlays"
	case errors.Is(err, broadcast.ErrHubStopped):
		return websocket.CloseGoingAway, "Server shutting down"
	default:
		return websocket.CloseInternalServerErr, "Server error"
	}
}

func closeWithCode(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	_ = conn.Close()
}
