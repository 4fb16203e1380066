package app

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazixroland-ai/tiktoklive/internal/broadcast"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/hazixroland-ai/tiktoklive/internal/live"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/singleflight"
)

const (
	streamerIDSize   = 10
	overlayTokenSize = 24
)

type ServiceConfig struct {
	DefaultCapacity int
	MinCapacity     int
}

// StreamerView is a profile enriched with its runtime state.
type StreamerView struct {
	Streamer *domain.Streamer
	Runtime  RuntimeStatus
}

// Service is the application layer. It checks overlay tokens, resolves
// profiles and drives the runtime registry.
type Service struct {
	streamers   domain.StreamerRepository
	profiles    domain.StreamerSource
	registry    *Registry
	lookupGroup singleflight.Group
	newID       func(size int) (string, error)
	cfg         ServiceConfig
}

// NewService creates the application layer service.
// profiles may be nil, in which case profile reads go straight to the repository.
func NewService(streamers domain.StreamerRepository, profiles domain.StreamerSource, registry *Registry, cfg ServiceConfig) *Service {
	if profiles == nil {
		profiles = repoSource{streamers}
	}
	return &Service{
		streamers: streamers,
		profiles:  profiles,
		registry:  registry,
		newID:     func(size int) (string, error) { return gonanoid.New(size) },
		cfg:       cfg,
	}
}

type repoSource struct{ repo domain.StreamerRepository }

func (s repoSource) GetStreamer(ctx context.Context, id string) (*domain.Streamer, error) {
	return s.repo.GetByID(ctx, id)
}

// NormalizeUniqueID trims whitespace and a leading "@".
func NormalizeUniqueID(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "@")
}

// CreateStreamer persists a new profile with a fresh ID and overlay token.
func (s *Service) CreateStreamer(ctx context.Context, params domain.CreateStreamerParams) (*domain.Streamer, error) {
	uniqueID := NormalizeUniqueID(params.UniqueID)
	displayName := strings.TrimSpace(params.DisplayName)
	if uniqueID == "" || displayName == "" {
		return nil, fmt.Errorf("%w: display name and unique id are required", domain.ErrInvalidConfig)
	}

	id, err := s.newID(streamerIDSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate streamer id: %w", err)
	}
	token, err := s.newID(overlayTokenSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate overlay token: %w", err)
	}

	streamer := &domain.Streamer{
		ID:               id,
		DisplayName:      displayName,
		UniqueID:         uniqueID,
		OverlayToken:     token,
		Capacity:         s.capacity(params.Capacity),
		SourceCredential: params.SourceCredential,
	}
	if err := s.streamers.Create(ctx, streamer); err != nil {
		return nil, err
	}

	s.registry.Entry(streamer.ID, streamer.Capacity)
	slog.Info("Streamer created", "streamer_id", streamer.ID, "unique_id", streamer.UniqueID, "capacity", streamer.Capacity)
	return streamer, nil
}

func (s *Service) capacity(requested int) int {
	if requested <= 0 {
		requested = s.cfg.DefaultCapacity
	}
	return max(s.cfg.MinCapacity, requested)
}

func (s *Service) GetStreamer(ctx context.Context, id string) (StreamerView, error) {
	st, err := s.streamers.GetByID(ctx, id)
	if err != nil {
		return StreamerView{}, err
	}
	return StreamerView{Streamer: st, Runtime: s.registry.Status(id)}, nil
}

func (s *Service) ListStreamers(ctx context.Context) ([]StreamerView, error) {
	streamers, err := s.streamers.List(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]StreamerView, 0, len(streamers))
	for _, st := range streamers {
		views = append(views, StreamerView{Streamer: st, Runtime: s.registry.Status(st.ID)})
	}
	return views, nil
}

// AuthorizeOverlay resolves a profile and checks the overlay token.
// Uses singleflight to collapse concurrent lookups from reconnecting overlays.
func (s *Service) AuthorizeOverlay(ctx context.Context, id, token string) (*domain.Streamer, error) {
	if id == "" || token == "" {
		return nil, domain.ErrUnauthorized
	}

	v, err, _ := s.lookupGroup.Do(id, func() (any, error) {
		return s.profiles.GetStreamer(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	streamer := v.(*domain.Streamer)
	if subtle.ConstantTimeCompare([]byte(streamer.OverlayToken), []byte(token)) != 1 {
		return nil, domain.ErrUnauthorized
	}
	return streamer, nil
}

func (s *Service) OverlayState(ctx context.Context, id, token string) (*domain.Streamer, domain.BottleState, error) {
	streamer, err := s.AuthorizeOverlay(ctx, id, token)
	if err != nil {
		return nil, domain.BottleState{}, err
	}
	return streamer, s.registry.Entry(id, streamer.Capacity).Store.Snapshot(), nil
}

func (s *Service) UseBottle(ctx context.Context, id, token string) (int, domain.BottleState, error) {
	streamer, err := s.AuthorizeOverlay(ctx, id, token)
	if err != nil {
		return 0, domain.BottleState{}, err
	}
	return s.registry.UseAndReset(ctx, id, streamer.Capacity)
}

func (s *Service) SubscribeOverlay(ctx context.Context, id, token string, conn broadcast.Conn) (string, error) {
	streamer, err := s.AuthorizeOverlay(ctx, id, token)
	if err != nil {
		return "", err
	}
	meta := OverlayMeta{DisplayName: streamer.DisplayName, UniqueID: streamer.UniqueID}
	return s.registry.Subscribe(id, streamer.Capacity, conn, meta)
}

func (s *Service) UnsubscribeOverlay(id string, conn broadcast.Conn) {
	s.registry.Unsubscribe(id, conn)
}

func (s *Service) RuntimeSummary() RuntimeSummary {
	return s.registry.Summary()
}

// StartListening reads the profile from the repository so the source
// credential is never served from the cache.
func (s *Service) StartListening(ctx context.Context, id string) (live.StartResult, error) {
	streamer, err := s.streamers.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	res, err := s.registry.Start(ctx, id, streamer.BroadcasterConfig())
	if err != nil {
		return 0, err
	}
	slog.Info("Listen start requested", "streamer_id", id, "unique_id", streamer.UniqueID, "result", res)
	return res, nil
}

func (s *Service) StopListening(ctx context.Context, id string) error {
	if _, err := s.streamers.GetByID(ctx, id); err != nil {
		return err
	}
	return s.registry.Stop(ctx, id)
}

// RotateOverlayToken issues a new token. Overlays already connected stay
// connected; the token is only checked when joining.
func (s *Service) RotateOverlayToken(ctx context.Context, id string) (string, error) {
	token, err := s.newID(overlayTokenSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate overlay token: %w", err)
	}
	if err := s.streamers.RotateOverlayToken(ctx, id, token); err != nil {
		return "", err
	}
	s.invalidate(ctx, id)
	return token, nil
}

// DeleteStreamer stops the live connection before removing the profile.
func (s *Service) DeleteStreamer(ctx context.Context, id string) error {
	if _, err := s.streamers.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.registry.Remove(ctx, id); err != nil {
		return err
	}
	if err := s.streamers.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	slog.Info("Streamer deleted", "streamer_id", id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	inv, ok := s.profiles.(domain.StreamerCacheInvalidator)
	if !ok {
		return
	}
	if err := inv.InvalidateCache(ctx, id); err != nil {
		slog.Error("Failed to invalidate profile cache", "streamer_id", id, "error", err)
	}
}
