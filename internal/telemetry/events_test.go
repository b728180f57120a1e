package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chat-engine/internal/logging"
	"chat-engine/internal/mocks"
	"chat-engine/internal/observability"
)

func TestEmitterWrapsPayload(t *testing.T) {
	pub := new(mocks.PublisherMock)
	e := NewEmitter(pub, "chat-engine", "test")
	e.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	pub.On("Publish", mock.Anything, "chat.message.created", mock.MatchedBy(func(env observability.EventEnvelope) bool {
		return env.Name == EventMessageCreated &&
			env.ID != "" &&
			env.RoomID == 4 &&
			env.RequestID == "req-9" &&
			env.Source == "chat-engine" &&
			env.OccurredAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	})).Return(nil)

	ctx := logging.WithRequestID(context.Background(), "req-9")
	e.Emit(ctx, EventMessageCreated, 4, map[string]int64{"messageId": 1})
	pub.AssertExpectations(t)
	assert.Len(t, pub.Envelopes(EventMessageCreated), 1)
	assert.Empty(t, pub.Envelopes(EventRoomDeleted))
}

func TestEmitterSwallowsPublishErrors(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "chat.room.deleted", mock.Anything).Return(errors.New("broker down"))

	e := NewEmitter(pub, "chat-engine", "test")
	assert.NotPanics(t, func() { e.Emit(context.Background(), EventRoomDeleted, 1, nil) })

	var nilEmitter *Emitter
	assert.NotPanics(t, func() { nilEmitter.Emit(context.Background(), EventRoomDeleted, 1, nil) })
}
