package services

import (
	"context"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
	"chat-engine/internal/telemetry"
)

// ReadTracker owns participant read pointers.
type ReadTracker struct {
	messages repositories.MessageRepository
	reads    repositories.ReadStateRepository
	events   *telemetry.Emitter
}

func NewReadTracker(messages repositories.MessageRepository, reads repositories.ReadStateRepository, events *telemetry.Emitter) *ReadTracker {
	return &ReadTracker{messages: messages, reads: reads, events: events}
}

// MarkRead advances the member's pointer to messageID. Stale or repeated
// signals return false without error.
func (t *ReadTracker) MarkRead(ctx context.Context, roomID, memberID, messageID int64) (bool, error) {
	msg, err := t.messages.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg.RoomID != roomID {
		return false, chaterr.ErrRoomMismatch
	}
	if _, err := t.reads.GetParticipant(ctx, roomID, memberID); err != nil {
		return false, err
	}

	advanced, err := t.reads.AdvanceLastRead(ctx, roomID, memberID, messageID)
	if err != nil {
		return false, err
	}
	if advanced {
		t.events.Emit(ctx, telemetry.EventReadAdvanced, roomID, models.ReadReceipt{RoomID: roomID, MemberID: memberID, MessageID: messageID})
	}
	return advanced, nil
}

// UnreadCount counts live messages after the member's pointer.
func (t *ReadTracker) UnreadCount(ctx context.Context, roomID, memberID int64) (int, error) {
	p, err := t.reads.GetParticipant(ctx, roomID, memberID)
	if err != nil {
		return 0, err
	}
	var after int64
	if p.LastReadMessageID != nil {
		after = *p.LastReadMessageID
	}
	return t.messages.CountAfter(ctx, roomID, after)
}

// Statuses snapshots every participant's pointer.
func (t *ReadTracker) Statuses(ctx context.Context, roomID int64) ([]models.ReadStatus, error) {
	return t.reads.ListReadStatuses(ctx, roomID)
}
