package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/logging"
	"chat-engine/internal/members"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/repositories"
	"chat-engine/internal/telemetry"
)

// EditWindow bounds how long after creation a sender may edit, delete or
// restore a message.
const EditWindow = 5 * time.Minute

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100

	// MaxClientMessageIDLength matches chat_messages.client_message_id.
	MaxClientMessageIDLength = 64
)

// SaveRequest is a client send after transport-level validation.
type SaveRequest struct {
	RoomID          int64
	SenderID        int64
	Content         string
	Type            models.MessageType
	ClientMessageID string
}

// MessageStore owns message persistence.
type MessageStore struct {
	messages repositories.MessageRepository
	rooms    repositories.RoomRepository
	members  members.Directory
	events   *telemetry.Emitter
	now      func() time.Time
}

// NewMessageStore builds a MessageStore. A nil clock uses time.Now.
func NewMessageStore(messages repositories.MessageRepository, rooms repositories.RoomRepository, directory members.Directory, events *telemetry.Emitter, now func() time.Time) *MessageStore {
	if now == nil {
		now = time.Now
	}
	return &MessageStore{messages: messages, rooms: rooms, members: directory, events: events, now: now}
}

// Save persists a member message at most once per ClientMessageID. A repeated
// key returns the stored message with replayed=true and skips validation.
func (s *MessageStore) Save(ctx context.Context, req SaveRequest) (msg models.Message, replayed bool, err error) {
	key := strings.TrimSpace(req.ClientMessageID)
	if key == "" {
		return models.Message{}, false, chaterr.ErrMissingIdempotencyKey
	}
	if utf8.RuneCountInString(key) > MaxClientMessageIDLength {
		return models.Message{}, false, chaterr.ErrIdempotencyKeyTooLong
	}
	switch req.Type {
	case models.MessageTypeText, models.MessageTypeImage, models.MessageTypeFile:
	default:
		return models.Message{}, false, chaterr.ErrUnsupportedType
	}

	existing, err := s.messages.GetByClientMessageID(ctx, key)
	if err == nil {
		observability.IncMessageSaved(string(existing.Type), true)
		return existing, true, nil
	}
	if !errors.Is(err, chaterr.ErrMessageNotFound) {
		return models.Message{}, false, err
	}

	if err := s.checkSender(ctx, req.RoomID, req.SenderID); err != nil {
		return models.Message{}, false, err
	}

	sender := req.SenderID
	saved, inserted, err := s.messages.InsertMessage(ctx, models.Message{
		RoomID:          req.RoomID,
		SenderID:        &sender,
		Content:         req.Content,
		Type:            req.Type,
		ClientMessageID: &key,
	})
	if err != nil {
		return models.Message{}, false, err
	}

	observability.IncMessageSaved(string(saved.Type), !inserted)
	if inserted {
		s.events.Emit(ctx, telemetry.EventMessageCreated, saved.RoomID, messageEvent(saved))
	}
	return saved, !inserted, nil
}

func (s *MessageStore) checkSender(ctx context.Context, roomID, senderID int64) error {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsDeleted {
		return chaterr.ErrRoomDeleted
	}
	if _, err := s.members.GetMember(ctx, senderID); err != nil {
		if errors.Is(err, chaterr.ErrMemberNotFound) {
			return chaterr.ErrSenderNotFound
		}
		return err
	}
	ok, err := s.rooms.IsParticipant(ctx, roomID, senderID)
	if err != nil {
		return err
	}
	if !ok {
		return chaterr.ErrNotAParticipant
	}
	return nil
}

// SaveSystemMessage stores a sender-less SYSTEM message. Deleted rooms take
// no new messages, system ones included.
func (s *MessageStore) SaveSystemMessage(ctx context.Context, roomID int64, content string) (models.Message, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.Message{}, err
	}
	if room.IsDeleted {
		return models.Message{}, chaterr.ErrRoomDeleted
	}
	saved, _, err := s.messages.InsertMessage(ctx, models.Message{
		RoomID:  roomID,
		Content: content,
		Type:    models.MessageTypeSystem,
	})
	if err != nil {
		return models.Message{}, err
	}
	observability.IncMessageSaved(string(models.MessageTypeSystem), false)
	return saved, nil
}

// Edit replaces the content of the member's own message.
func (s *MessageStore) Edit(ctx context.Context, memberID, messageID int64, newContent string) (models.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return models.Message{}, chaterr.ErrInvalidContent
	}
	updated, err := s.mutate(ctx, "edit", memberID, messageID, func(m *models.Message) { m.Content = newContent })
	if err != nil {
		return models.Message{}, err
	}
	s.events.Emit(ctx, telemetry.EventMessageEdited, updated.RoomID, messageEvent(updated))
	return updated, nil
}

// SoftDelete hides the member's own message from readers.
func (s *MessageStore) SoftDelete(ctx context.Context, memberID, messageID int64) (models.Message, error) {
	updated, err := s.mutate(ctx, "delete", memberID, messageID, func(m *models.Message) { m.IsDeleted = true })
	if err != nil {
		return models.Message{}, err
	}
	s.events.Emit(ctx, telemetry.EventMessageDeleted, updated.RoomID, messageEvent(updated))
	return updated, nil
}

// Restore undoes SoftDelete within the edit window of the original creation.
func (s *MessageStore) Restore(ctx context.Context, memberID, messageID int64) (models.Message, error) {
	updated, err := s.mutate(ctx, "restore", memberID, messageID, func(m *models.Message) { m.IsDeleted = false })
	if err != nil {
		return models.Message{}, err
	}
	s.events.Emit(ctx, telemetry.EventMessageRestored, updated.RoomID, messageEvent(updated))
	return updated, nil
}

// mutate applies change conditioned on the version that was read. A lost race
// surfaces as ErrConcurrentModification and is not retried here.
func (s *MessageStore) mutate(ctx context.Context, op string, memberID, messageID int64, change func(*models.Message)) (models.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if !msg.SentBy(memberID) {
		return models.Message{}, chaterr.ErrNotSender
	}
	if s.now().Sub(msg.CreatedAt) > EditWindow {
		return models.Message{}, chaterr.ErrEditWindowExpired
	}

	expected := msg.Version
	change(&msg)
	updated, err := s.messages.UpdateMessage(ctx, msg, expected)
	if err != nil {
		if errors.Is(err, chaterr.ErrConcurrentModification) {
			observability.IncMessageConflict(op)
			logging.Ctx(ctx).Info().Str("op", op).Int64(logging.FieldMessageID, messageID).Int64("version", expected).Msg("stale message write rejected")
		}
		return models.Message{}, err
	}
	return updated, nil
}

// GetMessage loads a message by id.
func (s *MessageStore) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return s.messages.GetMessage(ctx, messageID)
}

// ListByRoom pages through a room's messages, oldest first.
func (s *MessageStore) ListByRoom(ctx context.Context, roomID int64, page models.PageRequest, excludeDeleted bool) (models.Page[models.Message], error) {
	page = page.Normalize()
	msgs, total, err := s.messages.ListByRoom(ctx, roomID, page, excludeDeleted)
	if err != nil {
		return models.Page[models.Message]{}, err
	}
	return models.Page[models.Message]{Items: msgs, Page: page.Page, Size: page.Size, Total: total}, nil
}

// Recent returns up to limit live messages, newest first.
func (s *MessageStore) Recent(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	return s.messages.Recent(ctx, roomID, limit)
}

// Render converts messages into their outbound form. Deleted messages never
// expose their content or sender.
func (s *MessageStore) Render(ctx context.Context, msgs ...models.Message) []models.MessageView {
	senderIDs := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID != nil && !m.IsDeleted {
			senderIDs = append(senderIDs, *m.SenderID)
		}
	}

	profiles := map[int64]models.Member{}
	if len(senderIDs) > 0 {
		found, err := s.members.BulkMembers(ctx, senderIDs)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("sender lookup failed, rendering without profiles")
		} else {
			profiles = found
		}
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		view := models.MessageView{
			MessageID:       m.ID,
			RoomID:          m.RoomID,
			Content:         m.Content,
			Type:            m.Type,
			CreatedAt:       m.CreatedAt,
			ClientMessageID: m.ClientMessageID,
			Version:         m.Version,
		}
		switch {
		case m.IsDeleted:
			view.Type = models.MessageTypeSystem
			view.Content = models.DeletedPlaceholder
		case m.SenderID != nil:
			p := profiles[*m.SenderID]
			view.Sender = &models.SenderView{ID: *m.SenderID, Name: p.Name, AvatarRef: p.AvatarURL}
		}
		views = append(views, view)
	}
	return views
}

type messageEventPayload struct {
	MessageID int64              `json:"messageId"`
	RoomID    int64              `json:"roomId"`
	SenderID  *int64             `json:"senderId"`
	Type      models.MessageType `json:"type"`
	Version   int64              `json:"version"`
	IsDeleted bool               `json:"isDeleted"`
}

func messageEvent(m models.Message) messageEventPayload {
	return messageEventPayload{
		MessageID: m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Type:      m.Type,
		Version:   m.Version,
		IsDeleted: m.IsDeleted,
	}
}
