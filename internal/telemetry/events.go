// Package telemetry publishes chat domain events for downstream consumers.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chat-engine/internal/logging"
	"chat-engine/internal/observability"
)

// Domain event names. The routing key is "chat." + name.
const (
	EventRoomCreated     = "room.created"
	EventRoomDeleted     = "room.deleted"
	EventMemberJoined    = "room.member_joined"
	EventMemberLeft      = "room.member_left"
	EventMessageCreated  = "message.created"
	EventMessageEdited   = "message.edited"
	EventMessageDeleted  = "message.deleted"
	EventMessageRestored = "message.restored"
	EventReadAdvanced    = "read.advanced"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Emitter publishes domain events. A nil Emitter is a no-op.
type Emitter struct {
	publisher   Publisher
	service     string
	environment string
	now         func() time.Time
}

func NewEmitter(publisher Publisher, service, environment string) *Emitter {
	return &Emitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes name for roomID. Publish failures are logged, never returned.
func (e *Emitter) Emit(ctx context.Context, name string, roomID int64, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := observability.EventEnvelope{
		ID:          uuid.NewString(),
		Name:        name,
		Version:     1,
		OccurredAt:  e.now().UTC(),
		Source:      e.service,
		Environment: e.environment,
		RoomID:      roomID,
		RequestID:   logging.RequestID(ctx),
		TraceID:     observability.TraceIDFromContext(ctx),
		Payload:     payload,
	}

	if err := e.publisher.Publish(ctx, "chat."+name, envelope); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_name", name).Int64(logging.FieldRoomID, roomID).Msg("event publish failed")
	}
}
