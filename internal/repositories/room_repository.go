package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/models"
)

const roomColumns = `id, type, name, private_key, is_deleted, created_at, updated_at`

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetRoom fetches a room by id, deleted or not.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM chat_rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, chaterr.ErrRoomNotFound
	}
	return room, err
}

// FindPrivateRoom returns the live private room holding key.
func (r *RoomRepo) FindPrivateRoom(ctx context.Context, key string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM chat_rooms
        WHERE private_key=$1 AND type='PRIVATE' AND is_deleted = FALSE`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, chaterr.ErrRoomNotFound
	}
	return room, err
}

// CreateRoom inserts a room and its participants atomically.
func (r *RoomRepo) CreateRoom(ctx context.Context, room models.Room, memberIDs []int64) (created models.Room, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.QueryRowxContext(ctx, `INSERT INTO chat_rooms (type, name, private_key) VALUES ($1, $2, $3)
        ON CONFLICT (private_key) WHERE is_deleted = FALSE DO NOTHING
        RETURNING `+roomColumns, room.Type, room.Name, room.PrivateKey).StructScan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrPrivateRoomExists
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("insert room: %w", err)
	}

	ids := dedupe(memberIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_participants (room_id, member_id) VALUES ($1, $2)`, created.ID, id); err != nil {
			return models.Room{}, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return created, nil
}

// ListRoomsForMember returns the member's live rooms, most recently updated first.
func (r *RoomRepo) ListRoomsForMember(ctx context.Context, memberID int64, page models.PageRequest) ([]models.Room, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM chat_rooms r
        INNER JOIN chat_participants p ON p.room_id = r.id
        WHERE p.member_id=$1 AND r.is_deleted = FALSE`, memberID); err != nil {
		return nil, 0, err
	}

	rooms := []models.Room{}
	err := r.db.SelectContext(ctx, &rooms, `SELECT r.id, r.type, r.name, r.private_key, r.is_deleted, r.created_at, r.updated_at
        FROM chat_rooms r
        INNER JOIN chat_participants p ON p.room_id = r.id
        WHERE p.member_id=$1 AND r.is_deleted = FALSE
        ORDER BY r.updated_at DESC, r.id DESC
        LIMIT $2 OFFSET $3`, memberID, page.Size, page.Offset())
	return rooms, total, err
}

// ParticipantIDs returns the sorted member ids of a room.
func (r *RoomRepo) ParticipantIDs(ctx context.Context, roomID int64) ([]int64, error) {
	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids, `SELECT member_id FROM chat_participants WHERE room_id=$1 ORDER BY member_id`, roomID)
	return ids, err
}

// IsParticipant checks membership.
func (r *RoomRepo) IsParticipant(ctx context.Context, roomID int64, memberID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_participants WHERE room_id=$1 AND member_id=$2)`, roomID, memberID)
	return exists, err
}

// AddParticipants inserts the members that are not already in the room.
func (r *RoomRepo) AddParticipants(ctx context.Context, roomID int64, memberIDs []int64) (added int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, id := range dedupe(memberIDs) {
		res, execErr := tx.ExecContext(ctx, `INSERT INTO chat_participants (room_id, member_id) VALUES ($1, $2)
            ON CONFLICT (room_id, member_id) DO NOTHING`, roomID, id)
		if execErr != nil {
			err = fmt.Errorf("insert participant: %w", execErr)
			return 0, err
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// RemoveParticipant deletes the membership row and reports how many participants remain.
func (r *RoomRepo) RemoveParticipant(ctx context.Context, roomID int64, memberID int64) (remaining int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_participants WHERE room_id=$1 AND member_id=$2`, roomID, memberID); err != nil {
		return 0, fmt.Errorf("delete participant: %w", err)
	}
	if err = tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM chat_participants WHERE room_id=$1`, roomID); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return remaining, nil
}

// MarkDeleted flips is_deleted once; it reports false when the room was already deleted.
func (r *RoomRepo) MarkDeleted(ctx context.Context, roomID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_rooms SET is_deleted = TRUE, updated_at = NOW() WHERE id=$1 AND is_deleted = FALSE`, roomID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
