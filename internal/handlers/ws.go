package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chat-engine/internal/auth"
	"chat-engine/internal/config"
	"chat-engine/internal/gateway"
	"chat-engine/internal/logging"
	"chat-engine/internal/observability"
	"chat-engine/internal/ws"
)

const headerRoomID = "X-Room-ID"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades authenticated room connections and hands their frames
// to the gateway.
type WSHandler struct {
	gateway *gateway.Gateway
	config  config.WebSocketConfig
}

func NewWSHandler(gw *gateway.Gateway, cfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{gateway: gw, config: cfg}
}

// Handle serves GET /ws/chat?roomId=<id>&token=<jwt>. The handshake fails
// with a plain HTTP error before any upgrade.
func (h *WSHandler) Handle(c *gin.Context) {
	ctx, span := observability.Tracer().Start(c.Request.Context(), "ws.handshake")

	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		if bearer, err := auth.BearerToken(header); err == nil {
			token = bearer
		}
	}
	roomID := c.Query("roomId")
	if roomID == "" {
		roomID = c.GetHeader(headerRoomID)
	}

	info := ws.NewConnInfo(c.Request, requestIDFromContext(c), span.SpanContext().TraceID().String())
	sess, err := h.gateway.Handshake(ctx, gateway.HandshakeRequest{Token: token, RoomID: roomID, Info: info})
	span.End()
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str(logging.FieldConnID, info.ConnID).Msg("websocket handshake rejected")
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	logger := logging.Ctx(ctx).With().
		Str(logging.FieldConnID, sess.ConnID).
		Int64(logging.FieldMemberID, sess.MemberID).
		Int64(logging.FieldRoomID, sess.RoomID).
		Logger()
	connCtx := logging.WithLogger(context.WithoutCancel(ctx), logger)

	client := ws.NewClient(sess.ConnID, conn, h.config)
	observability.IncWSActive()
	defer observability.DecWSActive()

	h.gateway.OnConnect(connCtx, sess, client)
	go client.WritePump()
	client.ReadPump(func(raw []byte) {
		h.gateway.HandleFrame(connCtx, sess, client, raw)
	})
	h.gateway.OnDisconnect(connCtx, sess, client)
}
