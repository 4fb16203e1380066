package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

// InvalidationSubscriber drops in-memory profiles when another instance
// publishes an invalidation.
type InvalidationSubscriber struct {
	rdb   *goredis.Client
	cache *ProfileCache
}

func NewInvalidationSubscriber(rdb *goredis.Client, cache *ProfileCache) *InvalidationSubscriber {
	return &InvalidationSubscriber{rdb: rdb, cache: cache}
}

// Start blocks until ctx is cancelled or the subscription closes.
func (s *InvalidationSubscriber) Start(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, profileInvalidateChannel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handle(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (s *InvalidationSubscriber) handle(id string) {
	if id == "" {
		slog.Warn("Empty profile invalidation message")
		return
	}
	s.cache.invalidateLocal(id)
	slog.Debug("Profile cache invalidated via pub/sub", "streamer_id", id)
}
