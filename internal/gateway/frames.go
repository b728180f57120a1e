package gateway

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/logging"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/ws"
)

type sendReply struct {
	Message  models.MessageView `json:"message"`
	Replayed bool               `json:"replayed"`
}

type readReply struct {
	Advanced bool `json:"advanced"`
}

// HandleFrame decodes one inbound frame, dispatches it by event and answers
// failures with an error frame. The connection stays open on every error.
func (g *Gateway) HandleFrame(ctx context.Context, sess Session, conn ws.Conn, raw []byte) {
	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		observability.ObserveWSFrame("invalid", "error", 0)
		g.reply(ctx, conn, errorFrame("", chaterr.ErrInvalidRequest))
		return
	}

	ctx, span := observability.Tracer().Start(ctx, "ws."+frame.Event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("chat.conn_id", sess.ConnID),
			attribute.Int64("chat.member_id", sess.MemberID),
			attribute.Int64("chat.room_id", sess.RoomID),
		))
	defer span.End()

	opCtx, cancel := context.WithTimeout(ctx, g.config.OpTimeout)
	defer cancel()

	start := time.Now()
	result, err := g.dispatch(opCtx, sess, frame)
	label := metricEvent(frame.Event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, chaterr.Code(err))
		observability.ObserveWSFrame(label, "error", time.Since(start))

		evt := logging.Ctx(ctx).Debug()
		if chaterr.KindOf(err) == chaterr.KindInternal {
			evt = logging.Ctx(ctx).Error()
		}
		evt.Err(err).
			Str("event", frame.Event).
			Str(logging.FieldConnID, sess.ConnID).
			Int64(logging.FieldMemberID, sess.MemberID).
			Msg("frame rejected")

		g.reply(ctx, conn, errorFrame(frame.RequestID, err))
		return
	}

	observability.ObserveWSFrame(label, "ok", time.Since(start))
	if result != nil {
		result.RequestID = frame.RequestID
		g.reply(ctx, conn, *result)
	}
}

// metricEvent keeps client-chosen event names out of metric labels.
func metricEvent(event string) string {
	switch event {
	case models.EventPing, models.EventSend, models.EventRead, models.EventTyping,
		models.EventEdit, models.EventDelete, models.EventRestore:
		return event
	}
	return "unknown"
}

func (g *Gateway) dispatch(ctx context.Context, sess Session, frame models.InboundFrame) (*models.OutboundFrame, error) {
	switch frame.Event {
	case models.EventPing:
		return &models.OutboundFrame{Event: models.EventPong}, nil

	case models.EventSend:
		var req models.SendRequest
		if err := decode(frame.Payload, &req); err != nil {
			return nil, err
		}
		view, replayed, err := g.OnSend(ctx, sess, req)
		if err != nil {
			return nil, err
		}
		return &models.OutboundFrame{Event: models.EventReply, Payload: sendReply{Message: view, Replayed: replayed}}, nil

	case models.EventRead:
		var req models.ReadRequest
		if err := decode(frame.Payload, &req); err != nil {
			return nil, err
		}
		advanced, err := g.OnRead(ctx, sess, req)
		if err != nil {
			return nil, err
		}
		return &models.OutboundFrame{Event: models.EventReply, Payload: readReply{Advanced: advanced}}, nil

	case models.EventTyping:
		var req models.TypingRequest
		if err := decode(frame.Payload, &req); err != nil {
			return nil, err
		}
		return nil, g.OnTyping(ctx, sess, req)

	case models.EventEdit:
		var req models.EditRequest
		if err := decode(frame.Payload, &req); err != nil {
			return nil, err
		}
		return messageReply(g.OnEdit(ctx, sess, req))

	case models.EventDelete:
		var req models.MessageRef
		if err := decode(frame.Payload, &req); err != nil {
			return nil, err
		}
		return messageReply(g.OnDelete(ctx, sess, req))

	case models.EventRestore:
		var req models.MessageRef
		if err := decode(frame.Payload, &req); err != nil {
			return nil, err
		}
		return messageReply(g.OnRestore(ctx, sess, req))
	}
	return nil, chaterr.ErrInvalidRequest
}

func (g *Gateway) reply(ctx context.Context, conn ws.Conn, frame models.OutboundFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("event", frame.Event).Msg("encode reply frame")
		return
	}
	if err := conn.Send(payload); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str(logging.FieldConnID, conn.ID()).Msg("reply not delivered")
	}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return chaterr.ErrInvalidRequest
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return chaterr.ErrInvalidRequest
	}
	return nil
}

func messageReply(view models.MessageView, err error) (*models.OutboundFrame, error) {
	if err != nil {
		return nil, err
	}
	return &models.OutboundFrame{Event: models.EventReply, Payload: view}, nil
}

func errorFrame(requestID string, err error) models.OutboundFrame {
	return models.OutboundFrame{
		Event:     models.EventError,
		RequestID: requestID,
		Payload: models.ErrorPayload{
			Code:      chaterr.Code(err),
			Message:   chaterr.Message(err),
			Retryable: chaterr.Retryable(err),
		},
	}
}
