package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/models"
)

// ReadStateRepo only ever writes chat_participants.last_read_message_id.
type ReadStateRepo struct {
	db *sqlx.DB
}

// NewReadStateRepo constructs a ReadStateRepo.
func NewReadStateRepo(db *sqlx.DB) *ReadStateRepo {
	return &ReadStateRepo{db: db}
}

// GetParticipant loads a membership row.
func (r *ReadStateRepo) GetParticipant(ctx context.Context, roomID int64, memberID int64) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p, `SELECT room_id, member_id, last_read_message_id, joined_at
        FROM chat_participants WHERE room_id=$1 AND member_id=$2`, roomID, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, chaterr.ErrNotAParticipant
	}
	return p, err
}

// AdvanceLastRead moves the pointer forward only; stale or repeated ids change nothing.
func (r *ReadStateRepo) AdvanceLastRead(ctx context.Context, roomID int64, memberID int64, messageID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_participants SET last_read_message_id=$1
        WHERE room_id=$2 AND member_id=$3
        AND (last_read_message_id IS NULL OR last_read_message_id < $1)`, messageID, roomID, memberID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListReadStatuses returns every participant's pointer.
func (r *ReadStateRepo) ListReadStatuses(ctx context.Context, roomID int64) ([]models.ReadStatus, error) {
	statuses := []models.ReadStatus{}
	err := r.db.SelectContext(ctx, &statuses, `SELECT room_id, member_id, last_read_message_id
        FROM chat_participants WHERE room_id=$1 ORDER BY member_id`, roomID)
	return statuses, err
}
