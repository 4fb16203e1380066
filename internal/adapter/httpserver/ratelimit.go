package httpserver

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/adapter/metrics"
	apperrors "github.com/hazixroland-ai/tiktoklive/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newOverlayRateLimiter limits overlay API calls per client IP and streamer.
// Denied requests carry Retry-After and are counted by route.
func newOverlayRateLimiter(ratePerSecond float64, burst int, m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := strconv.Itoa(retryAfterSeconds(ratePerSecond))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: overlayLimitKey,
		Store:               store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			if m != nil {
				m.RateLimited.WithLabelValues(c.Path()).Inc()
			}
			c.Response().Header().Set("Retry-After", retryAfter)
			return c.JSON(http.StatusTooManyRequests,
				apperrors.RateLimitedError("rate limit exceeded").WithField("streamerId", c.Param("streamerId")).ToResponse())
		},
	})
}

func overlayLimitKey(c echo.Context) (string, error) {
	return c.RealIP() + "/" + c.Param("streamerId"), nil
}

// retryAfterSeconds is the time to refill one token, at least a second.
func retryAfterSeconds(ratePerSecond float64) int {
	if ratePerSecond <= 0 {
		return 60
	}
	return max(1, int(math.Ceil(1/ratePerSecond)))
}
