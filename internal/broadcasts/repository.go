package broadcasts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-rooms/backend/internal/models"
)

const columns = `id, room_id, provider_session_id, started_at, ended_at, peak_listeners, created_at, updated_at`

// Repository handles broadcasts persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a broadcasts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Start opens a broadcast for the room unless one is already open, and returns the open one.
func (r *Repository) Start(ctx context.Context, roomID uuid.UUID, providerSessionID string) (*models.Broadcast, error) {
	const insert = `INSERT INTO broadcasts (id, room_id, provider_session_id, started_at)
		VALUES (gen_random_uuid(), $1, $2, NOW())
		ON CONFLICT (room_id) WHERE ended_at IS NULL DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, roomID, providerSessionID); err != nil {
		return nil, fmt.Errorf("start broadcast: %w", err)
	}
	b, err := r.GetOpen(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("start broadcast: ended concurrently")
	}
	return b, nil
}

// GetOpen returns the room's broadcast that has not ended, or nil.
func (r *Repository) GetOpen(ctx context.Context, roomID uuid.UUID) (*models.Broadcast, error) {
	q := `SELECT ` + columns + ` FROM broadcasts WHERE room_id = $1 AND ended_at IS NULL`
	b, err := scan(r.pool.QueryRow(ctx, q, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open broadcast: %w", err)
	}
	return b, nil
}

// End closes the room's open broadcast, if any.
func (r *Repository) End(ctx context.Context, roomID uuid.UUID) error {
	const q = `UPDATE broadcasts SET ended_at = NOW(), updated_at = NOW() WHERE room_id = $1 AND ended_at IS NULL`
	_, err := r.pool.Exec(ctx, q, roomID)
	return err
}

// UpdatePeakListeners raises peak_listeners of the open broadcast to count if higher.
func (r *Repository) UpdatePeakListeners(ctx context.Context, roomID uuid.UUID, count int) error {
	const q = `UPDATE broadcasts SET peak_listeners = $1, updated_at = NOW()
		WHERE room_id = $2 AND ended_at IS NULL AND $1 > peak_listeners`
	_, err := r.pool.Exec(ctx, q, count, roomID)
	return err
}

// ListByRoom returns the room's broadcasts, newest first.
func (r *Repository) ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Broadcast, error) {
	q := `SELECT ` + columns + ` FROM broadcasts WHERE room_id = $1 ORDER BY started_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}
	defer rows.Close()

	list := []models.Broadcast{}
	for rows.Next() {
		b, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan broadcast: %w", err)
		}
		list = append(list, *b)
	}
	return list, rows.Err()
}

func scan(row pgx.Row) (*models.Broadcast, error) {
	var b models.Broadcast
	err := row.Scan(&b.ID, &b.RoomID, &b.ProviderSessionID, &b.StartedAt, &b.EndedAt, &b.PeakListeners, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
