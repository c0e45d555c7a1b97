package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-rooms/backend/internal/models"
)

// ErrNotFound is returned when a room does not exist.
var ErrNotFound = errors.New("room not found")

// Repository handles rooms and room_participants persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a room repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new room owned by r.OwnerID.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO rooms (id, name, owner_id, is_private, password_hash, max_members, max_viewers, style, category, tags)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	tags := room.Tags
	if tags == nil {
		tags = []string{}
	}
	return r.pool.QueryRow(ctx, q, room.Name, room.OwnerID, room.IsPrivate, room.PasswordHash, room.MaxMembers, room.MaxViewers, nullJSON(room.Style), room.Category, tags).
		Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
}

// GetByID returns a room with its members and viewers.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	const q = `SELECT id, name, owner_id, is_private, password_hash, max_members, max_viewers, is_live, is_recording,
		current_session_id, current_recording_id, style, category, tags, created_at, updated_at
		FROM rooms WHERE id = $1`
	var room models.Room
	var style []byte
	err := r.pool.QueryRow(ctx, q, id).Scan(&room.ID, &room.Name, &room.OwnerID, &room.IsPrivate, &room.PasswordHash,
		&room.MaxMembers, &room.MaxViewers, &room.IsLive, &room.IsRecording, &room.CurrentSessionID, &room.CurrentRecordingID,
		&style, &room.Category, &room.Tags, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	if len(style) > 0 {
		room.Style = style
	}
	if err := r.loadParticipants(ctx, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Snapshot implements session.MembershipSource.
func (r *Repository) Snapshot(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	return r.GetByID(ctx, roomID)
}

func (r *Repository) loadParticipants(ctx context.Context, room *models.Room) error {
	const q = `SELECT user_id, display_name, avatar_url, role, joined_at
		FROM room_participants WHERE room_id = $1 ORDER BY joined_at`
	rows, err := r.pool.Query(ctx, q, room.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.AvatarURL, &m.Role, &m.JoinedAt); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		switch m.Role {
		case models.RoleMember:
			room.Members = append(room.Members, m)
		case models.RoleViewer:
			room.Viewers = append(room.Viewers, m)
		}
	}
	return rows.Err()
}

// AddParticipant adds a member or viewer. It reports false if the user was already listed.
func (r *Repository) AddParticipant(ctx context.Context, roomID uuid.UUID, m models.Member) (bool, error) {
	const q = `INSERT INTO room_participants (room_id, user_id, display_name, avatar_url, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, user_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, roomID, m.UserID, m.DisplayName, m.AvatarURL, m.Role)
	if err != nil {
		return false, fmt.Errorf("add participant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveParticipant removes a member or viewer. It reports false if the user was not listed.
func (r *Repository) RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	const q = `DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, q, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("remove participant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetLiveState records whether the room is on air and with which provider session.
func (r *Repository) SetLiveState(ctx context.Context, roomID uuid.UUID, live bool, sessionID string) error {
	const q = `UPDATE rooms SET is_live = $1, current_session_id = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, live, sessionID, roomID)
	return err
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// LiveRoom is a room currently flagged as on air.
type LiveRoom struct {
	ID        uuid.UUID
	SessionID string
}

// ListLive returns every room flagged as on air.
func (r *Repository) ListLive(ctx context.Context) ([]LiveRoom, error) {
	const q = `SELECT id, current_session_id FROM rooms WHERE is_live ORDER BY updated_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list live rooms: %w", err)
	}
	defer rows.Close()

	var list []LiveRoom
	for rows.Next() {
		var lr LiveRoom
		if err := rows.Scan(&lr.ID, &lr.SessionID); err != nil {
			return nil, err
		}
		list = append(list, lr)
	}
	return list, rows.Err()
}
