package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/hazixroland-ai/tiktoklive/internal/platform/crypto"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// streamerColumns must match the Scan order in scanStreamer.
const streamerColumns = `id, display_name, tiktok_unique_id, overlay_token, capacity, source_credential, created_at`

// StreamerRepo implements domain.StreamerRepository. Source credentials are
// encrypted before they are written.
type StreamerRepo struct {
	pool   *pgxpool.Pool
	crypto crypto.Service
}

var _ domain.StreamerRepository = (*StreamerRepo)(nil)

func NewStreamerRepo(pool *pgxpool.Pool, cryptoSvc crypto.Service) *StreamerRepo {
	return &StreamerRepo{pool: pool, crypto: cryptoSvc}
}

func (r *StreamerRepo) scanStreamer(row pgx.Row) (*domain.Streamer, error) {
	var s domain.Streamer
	var credential string
	if err := row.Scan(&s.ID, &s.DisplayName, &s.UniqueID, &s.OverlayToken, &s.Capacity, &credential, &s.CreatedAt); err != nil {
		return nil, err
	}

	plain, err := r.crypto.Decrypt(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt source credential: %w", err)
	}
	s.SourceCredential = plain
	return &s, nil
}

// Create inserts s and fills in CreatedAt.
func (r *StreamerRepo) Create(ctx context.Context, s *domain.Streamer) error {
	credential, err := r.crypto.Encrypt(s.SourceCredential)
	if err != nil {
		return fmt.Errorf("failed to encrypt source credential: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO streamers (id, display_name, tiktok_unique_id, overlay_token, capacity, source_credential)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		s.ID, s.DisplayName, s.UniqueID, s.OverlayToken, s.Capacity, credential,
	)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert streamer: %w", err)
	}
	return nil
}

func (r *StreamerRepo) GetByID(ctx context.Context, id string) (*domain.Streamer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+streamerColumns+` FROM streamers WHERE id = $1`, id)
	s, err := r.scanStreamer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streamer by ID: %w", err)
	}
	return s, nil
}

// List returns all profiles, oldest first.
func (r *StreamerRepo) List(ctx context.Context) ([]*domain.Streamer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+streamerColumns+` FROM streamers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list streamers: %w", err)
	}

	streamers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Streamer, error) {
		return r.scanStreamer(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan streamers: %w", err)
	}
	return streamers, nil
}

func (r *StreamerRepo) RotateOverlayToken(ctx context.Context, id, token string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE streamers SET overlay_token = $2 WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("failed to rotate overlay token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}

func (r *StreamerRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM streamers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete streamer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}
