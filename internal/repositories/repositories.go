package repositories

import (
	"context"
	"errors"

	"chat-engine/internal/models"
)

// ErrPrivateRoomExists is returned when a live private room already holds the key.
var ErrPrivateRoomExists = errors.New("private room already exists")

// RoomRepository persists rooms and their participant rows.
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID int64) (models.Room, error)
	FindPrivateRoom(ctx context.Context, key string) (models.Room, error)
	CreateRoom(ctx context.Context, room models.Room, memberIDs []int64) (models.Room, error)
	ListRoomsForMember(ctx context.Context, memberID int64, page models.PageRequest) ([]models.Room, int64, error)
	ParticipantIDs(ctx context.Context, roomID int64) ([]int64, error)
	IsParticipant(ctx context.Context, roomID int64, memberID int64) (bool, error)
	AddParticipants(ctx context.Context, roomID int64, memberIDs []int64) (int, error)
	RemoveParticipant(ctx context.Context, roomID int64, memberID int64) (int, error)
	MarkDeleted(ctx context.Context, roomID int64) (bool, error)
}

// MessageRepository persists messages.
type MessageRepository interface {
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	GetByClientMessageID(ctx context.Context, clientMessageID string) (models.Message, error)
	InsertMessage(ctx context.Context, msg models.Message) (models.Message, bool, error)
	UpdateMessage(ctx context.Context, msg models.Message, expectedVersion int64) (models.Message, error)
	ListByRoom(ctx context.Context, roomID int64, page models.PageRequest, excludeDeleted bool) ([]models.Message, int64, error)
	Recent(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
	CountAfter(ctx context.Context, roomID int64, afterID int64) (int, error)
}

// ReadStateRepository is the narrow write path onto participant read pointers.
type ReadStateRepository interface {
	GetParticipant(ctx context.Context, roomID int64, memberID int64) (models.Participant, error)
	AdvanceLastRead(ctx context.Context, roomID int64, memberID int64, messageID int64) (bool, error)
	ListReadStatuses(ctx context.Context, roomID int64) ([]models.ReadStatus, error)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
