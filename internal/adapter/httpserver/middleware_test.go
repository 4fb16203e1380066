package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazixroland-ai/tiktoklive/internal/platform/correlation"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationMiddleware_KeepsValidHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(correlation.Header, "req-42")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(correlation.Header))
}

func TestCorrelationMiddleware_GeneratesID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(correlation.Header, "bad id with spaces")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return nil
	})(c)

	require.NoError(t, err)
	assert.Len(t, seen, 8)
	assert.NotEqual(t, "bad id with spaces", seen)
	assert.Equal(t, seen, rec.Header().Get(correlation.Header))
}

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{"valid", testAPIKey, false},
		{"missing", "", true},
		{"wrong", "not-the-key", true},
		{"prefix", testAPIKey[:5], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/streamers", nil)
			if tt.header != "" {
				req.Header.Set(apiKeyHeader, tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			called := false
			err := requireAPIKey(testAPIKey)(func(echo.Context) error {
				called = true
				return nil
			})(c)

			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, !tt.wantErr, called)
		})
	}
}

func TestRedactToken(t *testing.T) {
	assert.Equal(t, "/ws?streamerId=abc&token=redacted", redactToken("/ws?streamerId=abc&token=secret"))
	assert.Equal(t, "/api/streamers", redactToken("/api/streamers"))
	assert.Equal(t, "/health/live?x=1", redactToken("/health/live?x=1"))
}

func TestResponsesCarryCorrelationHeader(t *testing.T) {
	srv := newHealthServer(t)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Len(t, rec.Header().Get(correlation.Header), 8)
}
