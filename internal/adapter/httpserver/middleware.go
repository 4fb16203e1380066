package httpserver

import (
	"crypto/subtle"
	"net/url"

	"github.com/hazixroland-ai/tiktoklive/internal/platform/correlation"
	apperrors "github.com/hazixroland-ai/tiktoklive/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const apiKeyHeader = "X-API-Key"

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		c.Response().Header().Set(correlation.Header, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// requireAPIKey guards the management API.
func requireAPIKey(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			given := c.Request().Header.Get(apiKeyHeader)
			if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(apiKey)) != 1 {
				return apperrors.UnauthorizedError("invalid api key")
			}
			return next(c)
		}
	}
}

// redactToken hides overlay tokens from request logs.
func redactToken(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	q := u.Query()
	if !q.Has("token") {
		return uri
	}
	q.Set("token", "redacted")
	u.RawQuery = q.Encode()
	return u.String()
}
