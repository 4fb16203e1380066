package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/app"
	"github.com/hazixroland-ai/tiktoklive/internal/broadcast"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/hazixroland-ai/tiktoklive/internal/live"
	"github.com/hazixroland-ai/tiktoklive/internal/platform/config"
	"github.com/jonboulle/clockwork"
)

const testAPIKey = "test-api-key-0123456789"

// --- Mock implementations ---

type mockAppService struct {
	createStreamerFn   func(ctx context.Context, params domain.CreateStreamerParams) (*domain.Streamer, error)
	getStreamerFn      func(ctx context.Context, id string) (app.StreamerView, error)
	listStreamersFn    func(ctx context.Context) ([]app.StreamerView, error)
	startListeningFn   func(ctx context.Context, id string) (live.StartResult, error)
	stopListeningFn    func(ctx context.Context, id string) error
	rotateTokenFn      func(ctx context.Context, id string) (string, error)
	deleteStreamerFn   func(ctx context.Context, id string) error
	overlayStateFn     func(ctx context.Context, id, token string) (*domain.Streamer, domain.BottleState, error)
	useBottleFn        func(ctx context.Context, id, token string) (int, domain.BottleState, error)
	subscribeOverlayFn func(ctx context.Context, id, token string, conn broadcast.Conn) (string, error)
	unsubscribed       chan string
	summary            app.RuntimeSummary
}

func (m *mockAppService) CreateStreamer(ctx context.Context, params domain.CreateStreamerParams) (*domain.Streamer, error) {
	if m.createStreamerFn != nil {
		return m.createStreamerFn(ctx, params)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) GetStreamer(ctx context.Context, id string) (app.StreamerView, error) {
	if m.getStreamerFn != nil {
		return m.getStreamerFn(ctx, id)
	}
	return app.StreamerView{}, domain.ErrStreamerNotFound
}

func (m *mockAppService) ListStreamers(ctx context.Context) ([]app.StreamerView, error) {
	if m.listStreamersFn != nil {
		return m.listStreamersFn(ctx)
	}
	return nil, nil
}

func (m *mockAppService) StartListening(ctx context.Context, id string) (live.StartResult, error) {
	if m.startListeningFn != nil {
		return m.startListeningFn(ctx, id)
	}
	return live.StartConnecting, nil
}

func (m *mockAppService) StopListening(ctx context.Context, id string) error {
	if m.stopListeningFn != nil {
		return m.stopListeningFn(ctx, id)
	}
	return nil
}

func (m *mockAppService) RotateOverlayToken(ctx context.Context, id string) (string, error) {
	if m.rotateTokenFn != nil {
		return m.rotateTokenFn(ctx, id)
	}
	return "new-token", nil
}

func (m *mockAppService) DeleteStreamer(ctx context.Context, id string) error {
	if m.deleteStreamerFn != nil {
		return m.deleteStreamerFn(ctx, id)
	}
	return nil
}

func (m *mockAppService) OverlayState(ctx context.Context, id, token string) (*domain.Streamer, domain.BottleState, error) {
	if m.overlayStateFn != nil {
		return m.overlayStateFn(ctx, id, token)
	}
	return nil, domain.BottleState{}, domain.ErrStreamerNotFound
}

func (m *mockAppService) UseBottle(ctx context.Context, id, token string) (int, domain.BottleState, error) {
	if m.useBottleFn != nil {
		return m.useBottleFn(ctx, id, token)
	}
	return 0, domain.BottleState{}, domain.ErrStreamerNotFound
}

func (m *mockAppService) SubscribeOverlay(ctx context.Context, id, token string, conn broadcast.Conn) (string, error) {
	if m.subscribeOverlayFn != nil {
		return m.subscribeOverlayFn(ctx, id, token, conn)
	}
	return "", domain.ErrUnauthorized
}

func (m *mockAppService) UnsubscribeOverlay(id string, _ broadcast.Conn) {
	if m.unsubscribed != nil {
		m.unsubscribed <- id
	}
}

func (m *mockAppService) RuntimeSummary() app.RuntimeSummary {
	return m.summary
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "development",
		Port:                    "0",
		BaseURL:                 "https://live.example.com",
		APIKey:                  testAPIKey,
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     10,
		OverlayRateLimit:        100,
		OverlayRateBurst:        100,
	}
}

func newTestServer(t *testing.T, app appService, opts ...func(*config.Config)) *Server {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewServer(cfg, app, clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), nil, nil, nil)
}

func newHealthServer(t *testing.T, checks ...HealthCheck) *Server {
	t.Helper()
	srv := newTestServer(t, &mockAppService{})
	srv.healthChecks = checks
	return srv
}

// doRequest runs a request through the full router and middleware stack.
func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func testStreamer() *domain.Streamer {
	return &domain.Streamer{
		ID:               "abc123",
		DisplayName:      "Creator",
		UniqueID:         "creator",
		OverlayToken:     "overlay-token",
		Capacity:         50,
		SourceCredential: "cookie",
		CreatedAt:        time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}
