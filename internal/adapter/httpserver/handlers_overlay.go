package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	apperrors "github.com/hazixroland-ai/tiktoklive/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

type overlayStateResponse struct {
	StreamerID  string            `json:"streamerId"`
	DisplayName string            `json:"displayName"`
	UniqueID    string            `json:"uniqueId"`
	Connected   bool              `json:"connected"`
	Bottle      domain.BottleView `json:"bottle"`
}

type useBottleResponse struct {
	UsedAmount int               `json:"usedAmount"`
	Bottle     domain.BottleView `json:"bottle"`
}

func (s *Server) handleOverlayState(c echo.Context) error {
	streamerID := c.Param("streamerId")

	streamer, state, err := s.app.OverlayState(c.Request().Context(), streamerID, c.QueryParam("token"))
	if err != nil {
		return overlayError(err)
	}

	resp := overlayStateResponse{
		StreamerID:  streamer.ID,
		DisplayName: streamer.DisplayName,
		UniqueID:    streamer.UniqueID,
		Connected:   state.Connected,
		Bottle:      domain.NewBottleView(state),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write overlay state: %w", err)
	}
	return nil
}

func (s *Server) handleUseBottle(c echo.Context) error {
	streamerID := c.Param("streamerId")

	used, state, err := s.app.UseBottle(c.Request().Context(), streamerID, c.QueryParam("token"))
	if err != nil {
		return overlayError(err)
	}

	if err := c.JSON(http.StatusOK, useBottleResponse{UsedAmount: used, Bottle: domain.NewBottleView(state)}); err != nil {
		return fmt.Errorf("failed to write use response: %w", err)
	}
	return nil
}

// overlayError hides whether a streamer exists from overlay callers.
func overlayError(err error) error {
	if errors.Is(err, domain.ErrStreamerNotFound) || errors.Is(err, domain.ErrUnauthorized) {
		return apperrors.UnauthorizedError("unauthorized")
	}
	return runtimeError(err)
}
