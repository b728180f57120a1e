package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-engine/internal/auth"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var id auth.Identity
	if val := args.Get(0); val != nil {
		id = val.(auth.Identity)
	}
	return id, args.Error(1)
}

type MemberSourceMock struct {
	mock.Mock
}

func (m *MemberSourceMock) BulkMembers(ctx context.Context, ids []int64) (map[int64]models.Member, error) {
	args := m.Called(ctx, ids)
	var found map[int64]models.Member
	if val := args.Get(0); val != nil {
		found = val.(map[int64]models.Member)
	}
	return found, args.Error(1)
}

type MemberCacheMock struct {
	mock.Mock
}

func (m *MemberCacheMock) Get(ctx context.Context, memberID int64) (models.Member, error) {
	args := m.Called(ctx, memberID)
	var member models.Member
	if val := args.Get(0); val != nil {
		member = val.(models.Member)
	}
	return member, args.Error(1)
}

func (m *MemberCacheMock) Set(ctx context.Context, member models.Member, ttl time.Duration) error {
	args := m.Called(ctx, member, ttl)
	return args.Error(0)
}

type RoomServiceMock struct {
	mock.Mock
}

func (m *RoomServiceMock) CreatePrivateRoom(ctx context.Context, requesterID, targetID int64) (models.RoomView, error) {
	args := m.Called(ctx, requesterID, targetID)
	var room models.RoomView
	if val := args.Get(0); val != nil {
		room = val.(models.RoomView)
	}
	return room, args.Error(1)
}

func (m *RoomServiceMock) CreateGroupRoom(ctx context.Context, requesterID int64, name string, memberIDs []int64) (models.RoomView, error) {
	args := m.Called(ctx, requesterID, name, memberIDs)
	var room models.RoomView
	if val := args.Get(0); val != nil {
		room = val.(models.RoomView)
	}
	return room, args.Error(1)
}

func (m *RoomServiceMock) ListRooms(ctx context.Context, memberID int64, page models.PageRequest) (models.Page[models.Room], error) {
	args := m.Called(ctx, memberID, page)
	var rooms models.Page[models.Room]
	if val := args.Get(0); val != nil {
		rooms = val.(models.Page[models.Room])
	}
	return rooms, args.Error(1)
}

func (m *RoomServiceMock) Invite(ctx context.Context, roomID int64, memberIDs []int64) (int, error) {
	args := m.Called(ctx, roomID, memberIDs)
	return args.Int(0), args.Error(1)
}

func (m *RoomServiceMock) Leave(ctx context.Context, roomID, memberID int64) error {
	args := m.Called(ctx, roomID, memberID)
	return args.Error(0)
}

func (m *RoomServiceMock) SoftDelete(ctx context.Context, roomID, memberID int64) error {
	args := m.Called(ctx, roomID, memberID)
	return args.Error(0)
}

func (m *RoomServiceMock) GetRoom(ctx context.Context, roomID int64) (models.RoomView, error) {
	args := m.Called(ctx, roomID)
	var room models.RoomView
	if val := args.Get(0); val != nil {
		room = val.(models.RoomView)
	}
	return room, args.Error(1)
}

func (m *RoomServiceMock) IsParticipant(ctx context.Context, roomID, memberID int64) (bool, error) {
	args := m.Called(ctx, roomID, memberID)
	return args.Bool(0), args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) ListByRoom(ctx context.Context, roomID int64, page models.PageRequest, excludeDeleted bool) (models.Page[models.Message], error) {
	args := m.Called(ctx, roomID, page, excludeDeleted)
	var msgs models.Page[models.Message]
	if val := args.Get(0); val != nil {
		msgs = val.(models.Page[models.Message])
	}
	return msgs, args.Error(1)
}

func (m *MessageServiceMock) Recent(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageServiceMock) Render(ctx context.Context, msgs ...models.Message) []models.MessageView {
	args := m.Called(ctx, msgs)
	var views []models.MessageView
	if val := args.Get(0); val != nil {
		views = val.([]models.MessageView)
	}
	return views
}

func (m *MessageServiceMock) Edit(ctx context.Context, memberID, messageID int64, newContent string) (models.Message, error) {
	args := m.Called(ctx, memberID, messageID, newContent)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) SoftDelete(ctx context.Context, memberID, messageID int64) (models.Message, error) {
	args := m.Called(ctx, memberID, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) Restore(ctx context.Context, memberID, messageID int64) (models.Message, error) {
	args := m.Called(ctx, memberID, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type ReadServiceMock struct {
	mock.Mock
}

func (m *ReadServiceMock) UnreadCount(ctx context.Context, roomID, memberID int64) (int, error) {
	args := m.Called(ctx, roomID, memberID)
	return args.Int(0), args.Error(1)
}

func (m *ReadServiceMock) Statuses(ctx context.Context, roomID int64) ([]models.ReadStatus, error) {
	args := m.Called(ctx, roomID)
	var statuses []models.ReadStatus
	if val := args.Get(0); val != nil {
		statuses = val.([]models.ReadStatus)
	}
	return statuses, args.Error(1)
}

// PublisherMock records published chat events.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Envelopes returns the published event envelopes named name, in call order.
func (m *PublisherMock) Envelopes(name string) []observability.EventEnvelope {
	var out []observability.EventEnvelope
	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}
		if env, ok := call.Arguments.Get(2).(observability.EventEnvelope); ok && env.Name == name {
			out = append(out, env)
		}
	}
	return out
}
