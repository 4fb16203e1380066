package domain

import (
	"context"
	"time"
)

// Streamer is a persisted broadcaster profile.
type Streamer struct {
	ID               string
	DisplayName      string
	UniqueID         string
	OverlayToken     string
	Capacity         int
	SourceCredential string
	CreatedAt        time.Time
}

// BroadcasterConfig derives the live-connection config for one run.
func (s *Streamer) BroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		UniqueID:   s.UniqueID,
		Capacity:   s.Capacity,
		Credential: s.SourceCredential,
	}
}

type CreateStreamerParams struct {
	DisplayName      string
	UniqueID         string
	Capacity         int
	SourceCredential string
}

type StreamerRepository interface {
	Create(ctx context.Context, s *Streamer) error
	GetByID(ctx context.Context, id string) (*Streamer, error)
	List(ctx context.Context) ([]*Streamer, error)
	RotateOverlayToken(ctx context.Context, id, token string) error
	Delete(ctx context.Context, id string) error
}

// StreamerSource provides profile lookup with caching.
// Implementations should provide read-through caching (e.g., Redis → PostgreSQL).
type StreamerSource interface {
	GetStreamer(ctx context.Context, id string) (*Streamer, error)
}

// StreamerCacheInvalidator removes a streamer's profile from the cache.
type StreamerCacheInvalidator interface {
	InvalidateCache(ctx context.Context, id string) error
}
