package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/hazixroland-ai/tiktoklive/internal/adapter/metrics"
	"github.com/hazixroland-ai/tiktoklive/internal/broadcast"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Mock implementations ---

type mockStreamerRepo struct {
	createFn             func(ctx context.Context, s *domain.Streamer) error
	getByIDFn            func(ctx context.Context, id string) (*domain.Streamer, error)
	listFn               func(ctx context.Context) ([]*domain.Streamer, error)
	rotateOverlayTokenFn func(ctx context.Context, id, token string) error
	deleteFn             func(ctx context.Context, id string) error
}

func (m *mockStreamerRepo) Create(ctx context.Context, s *domain.Streamer) error {
	if m.createFn != nil {
		return m.createFn(ctx, s)
	}
	return nil
}

func (m *mockStreamerRepo) GetByID(ctx context.Context, id string) (*domain.Streamer, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrStreamerNotFound
}

func (m *mockStreamerRepo) List(ctx context.Context) ([]*domain.Streamer, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStreamerRepo) RotateOverlayToken(ctx context.Context, id, token string) error {
	if m.rotateOverlayTokenFn != nil {
		return m.rotateOverlayTokenFn(ctx, id, token)
	}
	return nil
}

func (m *mockStreamerRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockProfileCache struct {
	getStreamerFn func(ctx context.Context, id string) (*domain.Streamer, error)
	invalidated   []string
}

func (m *mockProfileCache) GetStreamer(ctx context.Context, id string) (*domain.Streamer, error) {
	if m.getStreamerFn != nil {
		return m.getStreamerFn(ctx, id)
	}
	return nil, domain.ErrStreamerNotFound
}

func (m *mockProfileCache) InvalidateCache(_ context.Context, id string) error {
	m.invalidated = append(m.invalidated, id)
	return nil
}

type published struct {
	streamerID string
	msg        any
}

// mockHub records publishes and subscriptions; Subscribe evaluates the
// snapshot immediately, as the real hub does.
type mockHub struct {
	mu           sync.Mutex
	published    []published
	snapshots    map[string][]any
	subs         map[string]int
	disconnected []string
}

func newMockHub() *mockHub {
	return &mockHub{snapshots: make(map[string][]any), subs: make(map[string]int)}
}

func (h *mockHub) Publish(streamerID string, msg any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, published{streamerID: streamerID, msg: msg})
	return nil
}

func (h *mockHub) Subscribe(streamerID string, _ broadcast.Conn, snapshot func() any) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots[streamerID] = append(h.snapshots[streamerID], snapshot())
	h.subs[streamerID]++
	return fmt.Sprintf("client-%d", h.subs[streamerID]), nil
}

func (h *mockHub) Unsubscribe(streamerID string, _ broadcast.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[streamerID] > 0 {
		h.subs[streamerID]--
	}
}

func (h *mockHub) ClientCount(streamerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs[streamerID]
}

func (h *mockHub) Disconnect(streamerID, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, streamerID)
	delete(h.subs, streamerID)
}

func (h *mockHub) messagesFor(streamerID string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []any
	for _, p := range h.published {
		if p.streamerID == streamerID {
			out = append(out, p.msg)
		}
	}
	return out
}

type stubSession struct {
	events chan domain.WebcastEvent
	mu     sync.Mutex
	closed bool
}

func newStubSession() *stubSession {
	return &stubSession{events: make(chan domain.WebcastEvent, 8)}
}

func (s *stubSession) Events() <-chan domain.WebcastEvent { return s.events }

func (s *stubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubSource struct {
	mu      sync.Mutex
	configs []domain.BroadcasterConfig
	session *stubSession
}

func (s *stubSource) Open(_ context.Context, cfg domain.BroadcasterConfig) (domain.WebcastSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, cfg)
	return s.session, nil
}

func (s *stubSource) opened() []domain.BroadcasterConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BroadcasterConfig(nil), s.configs...)
}

func newTestRegistry(source domain.WebcastSource, hub Hub) *Registry {
	return NewRegistry(source, hub, clockwork.NewFakeClock(), metrics.NewLiveMetrics(prometheus.NewRegistry()), RegistryConfig{
		DefaultCapacity: 100,
	})
}
