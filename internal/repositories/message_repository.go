package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/models"
)

const messageColumns = `id, room_id, sender_id, content, type, client_message_id, is_deleted, version, created_at, updated_at`

// MessageRepo is a sqlx-backed MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, chaterr.ErrMessageNotFound
	}
	return msg, err
}

// GetByClientMessageID retrieves the message stored under an idempotency key.
func (r *MessageRepo) GetByClientMessageID(ctx context.Context, clientMessageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM chat_messages WHERE client_message_id=$1`, clientMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, chaterr.ErrMessageNotFound
	}
	return msg, err
}

// InsertMessage stores msg unless its client_message_id is already taken, in
// which case the stored row is returned with inserted=false.
func (r *MessageRepo) InsertMessage(ctx context.Context, msg models.Message) (saved models.Message, inserted bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.QueryRowxContext(ctx, `INSERT INTO chat_messages (room_id, sender_id, content, type, client_message_id)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (client_message_id) DO NOTHING
        RETURNING `+messageColumns, msg.RoomID, msg.SenderID, msg.Content, msg.Type, msg.ClientMessageID).StructScan(&saved)
	if errors.Is(err, sql.ErrNoRows) && msg.ClientMessageID != nil {
		err = tx.GetContext(ctx, &saved, `SELECT `+messageColumns+` FROM chat_messages WHERE client_message_id=$1`, *msg.ClientMessageID)
		if err != nil {
			return models.Message{}, false, fmt.Errorf("load existing message: %w", err)
		}
		if err = tx.Commit(); err != nil {
			return models.Message{}, false, err
		}
		return saved, false, nil
	}
	if err != nil {
		return models.Message{}, false, fmt.Errorf("insert message: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE chat_rooms SET updated_at = NOW() WHERE id=$1`, msg.RoomID); err != nil {
		return models.Message{}, false, fmt.Errorf("touch room: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return models.Message{}, false, err
	}
	return saved, true, nil
}

// UpdateMessage writes content and is_deleted only if the stored version is
// still expectedVersion, bumping the version by one.
func (r *MessageRepo) UpdateMessage(ctx context.Context, msg models.Message, expectedVersion int64) (models.Message, error) {
	var updated models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE chat_messages
        SET content=$1, is_deleted=$2, version = version + 1, updated_at = NOW()
        WHERE id=$3 AND version=$4
        RETURNING `+messageColumns, msg.Content, msg.IsDeleted, msg.ID, expectedVersion).StructScan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, chaterr.ErrConcurrentModification
	}
	return updated, err
}

// ListByRoom returns one page of room messages, oldest first.
func (r *MessageRepo) ListByRoom(ctx context.Context, roomID int64, page models.PageRequest, excludeDeleted bool) ([]models.Message, int64, error) {
	filter := ``
	if excludeDeleted {
		filter = ` AND is_deleted = FALSE`
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM chat_messages WHERE room_id=$1`+filter, roomID); err != nil {
		return nil, 0, err
	}

	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM chat_messages WHERE room_id=$1`+filter+`
        ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`, roomID, page.Size, page.Offset())
	return msgs, total, err
}

// Recent returns the newest live messages of a room, newest first.
func (r *MessageRepo) Recent(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM chat_messages
        WHERE room_id=$1 AND is_deleted = FALSE
        ORDER BY created_at DESC, id DESC LIMIT $2`, roomID, limit)
	return msgs, err
}

// CountAfter counts live messages in a room with id greater than afterID.
func (r *MessageRepo) CountAfter(ctx context.Context, roomID int64, afterID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_messages WHERE room_id=$1 AND id > $2 AND is_deleted = FALSE`, roomID, afterID)
	return count, err
}
