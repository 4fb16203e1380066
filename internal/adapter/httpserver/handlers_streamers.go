package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/app"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/hazixroland-ai/tiktoklive/internal/live"
	apperrors "github.com/hazixroland-ai/tiktoklive/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

type createStreamerRequest struct {
	DisplayName      string `json:"displayName" validate:"required,max=100"`
	UniqueID         string `json:"uniqueId" validate:"required,max=64"`
	Capacity         int    `json:"capacity" validate:"gte=0,lte=1000000"`
	SourceCredential string `json:"sourceCredential" validate:"max=4096"`
}

type runtimeResponse struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Current   int    `json:"current"`
	Clients   int    `json:"clients"`
}

type streamerResponse struct {
	ID            string           `json:"id"`
	DisplayName   string           `json:"displayName"`
	UniqueID      string           `json:"uniqueId"`
	OverlayToken  string           `json:"overlayToken"`
	Capacity      int              `json:"capacity"`
	HasCredential bool             `json:"hasCredential"`
	CreatedAt     time.Time        `json:"createdAt"`
	OverlayWSURL  string           `json:"overlayWsUrl"`
	Runtime       *runtimeResponse `json:"runtime,omitempty"`
}

func (s *Server) newStreamerResponse(c echo.Context, st *domain.Streamer, rt *app.RuntimeStatus) streamerResponse {
	resp := streamerResponse{
		ID:            st.ID,
		DisplayName:   st.DisplayName,
		UniqueID:      st.UniqueID,
		OverlayToken:  st.OverlayToken,
		Capacity:      st.Capacity,
		HasCredential: st.SourceCredential != "",
		CreatedAt:     st.CreatedAt,
		OverlayWSURL:  overlayWSURL(s.getBaseURL(c), st.ID, st.OverlayToken),
	}
	if rt != nil {
		resp.Runtime = &runtimeResponse{
			State:     rt.State.String(),
			Connected: rt.Bottle.Connected,
			Current:   rt.Bottle.Current,
			Clients:   rt.Clients,
		}
	}
	return resp
}

// overlayWSURL builds the socket URL an overlay connects to.
func overlayWSURL(baseURL, streamerID, token string) string {
	base := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	q := url.Values{"streamerId": {streamerID}, "token": {token}}
	return base + "/ws?" + q.Encode()
}

func (s *Server) handleCreateStreamer(c echo.Context) error {
	var req createStreamerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	streamer, err := s.app.CreateStreamer(c.Request().Context(), domain.CreateStreamerParams{
		DisplayName:      req.DisplayName,
		UniqueID:         req.UniqueID,
		Capacity:         req.Capacity,
		SourceCredential: req.SourceCredential,
	})
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, s.newStreamerResponse(c, streamer, nil)); err != nil {
		return fmt.Errorf("failed to write streamer response: %w", err)
	}
	return nil
}

func (s *Server) handleListStreamers(c echo.Context) error {
	views, err := s.app.ListStreamers(c.Request().Context())
	if err != nil {
		return err
	}

	resp := make([]streamerResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, s.newStreamerResponse(c, v.Streamer, &v.Runtime))
	}
	if err := c.JSON(http.StatusOK, map[string]any{"streamers": resp}); err != nil {
		return fmt.Errorf("failed to write streamer list: %w", err)
	}
	return nil
}

func (s *Server) handleGetStreamer(c echo.Context) error {
	view, err := s.app.GetStreamer(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, s.newStreamerResponse(c, view.Streamer, &view.Runtime)); err != nil {
		return fmt.Errorf("failed to write streamer response: %w", err)
	}
	return nil
}

func (s *Server) handleStartListening(c echo.Context) error {
	id := c.Param("id")

	res, err := s.app.StartListening(c.Request().Context(), id)
	if err != nil {
		return runtimeError(err)
	}

	status := http.StatusAccepted
	if res == live.StartAlreadyRunning {
		status = http.StatusOK
	}
	if err := c.JSON(status, map[string]string{"streamerId": id, "result": res.String()}); err != nil {
		return fmt.Errorf("failed to write start response: %w", err)
	}
	return nil
}

func (s *Server) handleStopListening(c echo.Context) error {
	id := c.Param("id")

	if err := s.app.StopListening(c.Request().Context(), id); err != nil {
		return runtimeError(err)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"streamerId": id, "state": live.StateIdle.String()}); err != nil {
		return fmt.Errorf("failed to write stop response: %w", err)
	}
	return nil
}

func (s *Server) handleRotateToken(c echo.Context) error {
	id := c.Param("id")

	token, err := s.app.RotateOverlayToken(c.Request().Context(), id)
	if err != nil {
		return err
	}

	resp := map[string]string{
		"overlayToken": token,
		"overlayWsUrl": overlayWSURL(s.getBaseURL(c), id, token),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write rotate response: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteStreamer(c echo.Context) error {
	if err := s.app.DeleteStreamer(c.Request().Context(), c.Param("id")); err != nil {
		return runtimeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// runtimeError maps live-runtime failures the structured error package does
// not know about.
func runtimeError(err error) error {
	if errors.Is(err, live.ErrManagerClosed) {
		return apperrors.UnavailableError("server shutting down", err)
	}
	return err
}
