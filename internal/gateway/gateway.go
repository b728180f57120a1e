// Package gateway runs the chat protocol for authenticated WebSocket
// connections. Each connection belongs to exactly one room.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chat-engine/internal/auth"
	"chat-engine/internal/chaterr"
	"chat-engine/internal/config"
	"chat-engine/internal/logging"
	"chat-engine/internal/members"
	"chat-engine/internal/models"
	"chat-engine/internal/services"
	"chat-engine/internal/ws"
)

const defaultOpTimeout = 5 * time.Second

// Session is fixed at handshake and never changes for the connection.
type Session struct {
	ConnID   string
	MemberID int64
	Role     string
	RoomID   int64
	Info     ws.ConnInfo
}

// HandshakeRequest carries the raw connection parameters.
type HandshakeRequest struct {
	Token  string
	RoomID string
	Info   ws.ConnInfo
}

// Deps are the collaborators of a Gateway.
type Deps struct {
	Verifier auth.Verifier
	Rooms    *services.RoomDirectory
	Messages *services.MessageStore
	Reads    *services.ReadTracker
	Members  members.Directory
	Registry *ws.Registry
}

type Gateway struct {
	verifier auth.Verifier
	rooms    *services.RoomDirectory
	messages *services.MessageStore
	reads    *services.ReadTracker
	members  members.Directory
	registry *ws.Registry
	config   config.GatewayConfig
}

func New(deps Deps, cfg config.GatewayConfig) *Gateway {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	return &Gateway{
		verifier: deps.Verifier,
		rooms:    deps.Rooms,
		messages: deps.Messages,
		reads:    deps.Reads,
		members:  deps.Members,
		registry: deps.Registry,
		config:   cfg,
	}
}

// Handshake authenticates the connection and resolves its room. Nothing is
// registered when it fails.
func (g *Gateway) Handshake(ctx context.Context, req HandshakeRequest) (Session, error) {
	identity, err := g.verifier.Verify(ctx, req.Token)
	if err != nil {
		return Session{}, err
	}

	roomID, err := strconv.ParseInt(strings.TrimSpace(req.RoomID), 10, 64)
	if err != nil || roomID <= 0 {
		return Session{}, chaterr.ErrInvalidRequest
	}
	if _, err := g.rooms.RequireParticipant(ctx, roomID, identity.MemberID); err != nil {
		return Session{}, err
	}

	connID := req.Info.ConnID
	if connID == "" {
		connID = ws.NewConnID()
		req.Info.ConnID = connID
	}
	return Session{
		ConnID:   connID,
		MemberID: identity.MemberID,
		Role:     identity.Role,
		RoomID:   roomID,
		Info:     req.Info,
	}, nil
}

// OnConnect registers conn in the session room and announces the member.
func (g *Gateway) OnConnect(ctx context.Context, sess Session, conn ws.Conn) {
	g.registry.Register(sess.RoomID, sess.MemberID, conn)
	logging.Ctx(ctx).Info().
		Object("conn", sess.Info).
		Int64(logging.FieldMemberID, sess.MemberID).
		Int64(logging.FieldRoomID, sess.RoomID).
		Msg("websocket joined")
	g.announce(ctx, sess, "%s joined.")
}

// OnDisconnect unregisters conn and announces the departure. It runs on a
// context detached from the closed connection.
func (g *Gateway) OnDisconnect(ctx context.Context, sess Session, conn ws.Conn) {
	g.registry.Unregister(conn)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.OpTimeout)
	defer cancel()
	logging.Ctx(ctx).Info().
		Object("conn", sess.Info).
		Int64(logging.FieldMemberID, sess.MemberID).
		Int64(logging.FieldRoomID, sess.RoomID).
		Msg("websocket left")
	g.announce(ctx, sess, "%s left.")
}

func (g *Gateway) announce(ctx context.Context, sess Session, format string) {
	name := fmt.Sprintf("member %d", sess.MemberID)
	if g.members != nil {
		if m, err := g.members.GetMember(ctx, sess.MemberID); err == nil && m.Name != "" {
			name = m.Name
		}
	}
	msg, err := g.messages.SaveSystemMessage(ctx, sess.RoomID, fmt.Sprintf(format, name))
	if errors.Is(err, chaterr.ErrRoomDeleted) {
		logging.Ctx(ctx).Debug().Int64(logging.FieldRoomID, sess.RoomID).Msg("room deleted, announcement skipped")
		return
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Int64(logging.FieldRoomID, sess.RoomID).Msg("save system message")
		return
	}
	g.broadcastMessage(ctx, msg)
}

// EvictMember closes the member's sockets in a room they no longer belong to.
// Each closed socket then runs its own disconnect path.
func (g *Gateway) EvictMember(ctx context.Context, roomID, memberID int64) int {
	evicted := g.registry.Evict(roomID, memberID)
	for _, conn := range evicted {
		_ = conn.Close()
	}
	if len(evicted) > 0 {
		logging.Ctx(ctx).Info().
			Int64(logging.FieldRoomID, roomID).
			Int64(logging.FieldMemberID, memberID).
			Int("connections", len(evicted)).
			Msg("evicted member connections")
	}
	return len(evicted)
}

// OnSend persists a member message and fans it out to the room. A replayed
// send is answered to the caller only.
func (g *Gateway) OnSend(ctx context.Context, sess Session, req models.SendRequest) (view models.MessageView, replayed bool, err error) {
	content := req.Content
	switch req.Type {
	case models.MessageTypeText:
		if strings.TrimSpace(content) == "" {
			return models.MessageView{}, false, chaterr.ErrInvalidContent
		}
	case models.MessageTypeImage, models.MessageTypeFile:
		if strings.TrimSpace(req.FileURL) == "" {
			return models.MessageView{}, false, chaterr.ErrInvalidContent
		}
		content = req.FileURL
	default:
		return models.MessageView{}, false, chaterr.ErrUnsupportedType
	}

	msg, replayed, err := g.messages.Save(ctx, services.SaveRequest{
		RoomID:          roomOf(sess, req.RoomID),
		SenderID:        sess.MemberID,
		Content:         content,
		Type:            req.Type,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		return models.MessageView{}, false, err
	}

	view = g.messages.Render(ctx, msg)[0]
	if !replayed {
		g.broadcast(ctx, msg.RoomID, models.OutboundFrame{Event: models.EventMessage, Payload: view})
	}
	return view, replayed, nil
}

// OnRead advances the caller's read pointer and broadcasts a receipt when it moved.
func (g *Gateway) OnRead(ctx context.Context, sess Session, req models.ReadRequest) (bool, error) {
	if req.MemberID != sess.MemberID {
		return false, chaterr.ErrIdentityMismatch
	}
	roomID := roomOf(sess, req.RoomID)
	advanced, err := g.reads.MarkRead(ctx, roomID, sess.MemberID, req.MessageID)
	if err != nil {
		return false, err
	}
	if advanced {
		g.broadcast(ctx, roomID, models.OutboundFrame{
			Event:   models.EventReadReceipt,
			Payload: models.ReadReceipt{RoomID: roomID, MemberID: sess.MemberID, MessageID: req.MessageID},
		})
	}
	return advanced, nil
}

// OnTyping relays a typing indicator. Nothing is stored.
func (g *Gateway) OnTyping(ctx context.Context, sess Session, req models.TypingRequest) error {
	if sess.MemberID == 0 {
		return nil
	}
	if !req.Status.Valid() {
		return chaterr.ErrInvalidTypingStatus
	}
	roomID := roomOf(sess, req.RoomID)
	if roomID != sess.RoomID {
		if _, err := g.rooms.RequireParticipant(ctx, roomID, sess.MemberID); err != nil {
			return err
		}
	}
	g.broadcast(ctx, roomID, models.OutboundFrame{
		Event:   models.EventTyping,
		Payload: models.TypingEvent{RoomID: roomID, MemberID: sess.MemberID, Status: req.Status},
	})
	return nil
}

func (g *Gateway) OnEdit(ctx context.Context, sess Session, req models.EditRequest) (models.MessageView, error) {
	msg, err := g.messages.Edit(ctx, sess.MemberID, req.MessageID, req.NewContent)
	return g.mutated(ctx, msg, err)
}

func (g *Gateway) OnDelete(ctx context.Context, sess Session, req models.MessageRef) (models.MessageView, error) {
	msg, err := g.messages.SoftDelete(ctx, sess.MemberID, req.MessageID)
	return g.mutated(ctx, msg, err)
}

func (g *Gateway) OnRestore(ctx context.Context, sess Session, req models.MessageRef) (models.MessageView, error) {
	msg, err := g.messages.Restore(ctx, sess.MemberID, req.MessageID)
	return g.mutated(ctx, msg, err)
}

func (g *Gateway) mutated(ctx context.Context, msg models.Message, err error) (models.MessageView, error) {
	if err != nil {
		return models.MessageView{}, err
	}
	view := g.messages.Render(ctx, msg)[0]
	if g.config.BroadcastMutations {
		g.broadcast(ctx, msg.RoomID, models.OutboundFrame{Event: models.EventMessage, Payload: view})
	}
	return view, nil
}

func (g *Gateway) broadcastMessage(ctx context.Context, msg models.Message) {
	view := g.messages.Render(ctx, msg)[0]
	g.broadcast(ctx, msg.RoomID, models.OutboundFrame{Event: models.EventMessage, Payload: view})
}

func (g *Gateway) broadcast(ctx context.Context, roomID int64, frame models.OutboundFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("event", frame.Event).Msg("encode broadcast frame")
		return
	}
	g.registry.Broadcast(ctx, roomID, payload)
}

func roomOf(sess Session, requested int64) int64 {
	if requested == 0 {
		return sess.RoomID
	}
	return requested
}
