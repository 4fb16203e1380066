package redis

import (
	"context"
	"sync"

	"github.com/hazixroland-ai/tiktoklive/internal/domain"
)

type mockStreamerRepo struct {
	mu        sync.Mutex
	calls     int
	streamers map[string]*domain.Streamer
}

func newMockRepo(streamers ...*domain.Streamer) *mockStreamerRepo {
	m := &mockStreamerRepo{streamers: make(map[string]*domain.Streamer)}
	for _, s := range streamers {
		m.streamers[s.ID] = s
	}
	return m
}

func (m *mockStreamerRepo) Create(context.Context, *domain.Streamer) error { return nil }

func (m *mockStreamerRepo) GetByID(_ context.Context, id string) (*domain.Streamer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	s, ok := m.streamers[id]
	if !ok {
		return nil, domain.ErrStreamerNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockStreamerRepo) List(context.Context) ([]*domain.Streamer, error) { return nil, nil }

func (m *mockStreamerRepo) RotateOverlayToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streamers[id]
	if !ok {
		return domain.ErrStreamerNotFound
	}
	s.OverlayToken = token
	return nil
}

func (m *mockStreamerRepo) Delete(context.Context, string) error { return nil }

func (m *mockStreamerRepo) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testProfile() *domain.Streamer {
	return &domain.Streamer{
		ID:               "s1",
		DisplayName:      "Creator",
		UniqueID:         "creator",
		OverlayToken:     "token",
		Capacity:         100,
		SourceCredential: "sessionid=secret",
	}
}
