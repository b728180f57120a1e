package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/models"
)

// MessageService is the message store as seen by HTTP handlers.
type MessageService interface {
	ListByRoom(ctx context.Context, roomID int64, page models.PageRequest, excludeDeleted bool) (models.Page[models.Message], error)
	Recent(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
	Render(ctx context.Context, msgs ...models.Message) []models.MessageView
	Edit(ctx context.Context, memberID, messageID int64, newContent string) (models.Message, error)
	SoftDelete(ctx context.Context, memberID, messageID int64) (models.Message, error)
	Restore(ctx context.Context, memberID, messageID int64) (models.Message, error)
}

// MessageHandler serves room history and message mutations.
type MessageHandler struct {
	rooms    RoomService
	messages MessageService
}

func NewMessageHandler(rooms RoomService, messages MessageService) *MessageHandler {
	return &MessageHandler{rooms: rooms, messages: messages}
}

// ListMessages pages a room's history oldest first. Deleted messages are
// left out unless the caller asks for excludeDeleted=false, in which case
// they come back as placeholders.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	roomID, ok := h.historyRoom(c)
	if !ok {
		return
	}
	page := models.PageRequest{Page: intQuery(c, "page", 0), Size: intQuery(c, "size", models.DefaultPageSize)}
	excludeDeleted := true
	if raw, ok := c.GetQuery("excludeDeleted"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, chaterr.ErrInvalidRequest)
			return
		}
		excludeDeleted = v
	}
	result, err := h.messages.ListByRoom(c.Request.Context(), roomID, page, excludeDeleted)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Page[models.MessageView]{
		Items: h.messages.Render(c.Request.Context(), result.Items...),
		Page:  result.Page,
		Size:  result.Size,
		Total: result.Total,
	})
}

// RecentMessages returns the newest live messages, newest first.
func (h *MessageHandler) RecentMessages(c *gin.Context) {
	roomID, ok := h.historyRoom(c)
	if !ok {
		return
	}
	msgs, err := h.messages.Recent(c.Request.Context(), roomID, intQuery(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": h.messages.Render(c.Request.Context(), msgs...)})
}

func (h *MessageHandler) EditMessage(c *gin.Context) {
	var req struct {
		NewContent string `json:"newContent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, chaterr.ErrInvalidRequest)
		return
	}
	h.mutate(c, func(ctx context.Context, memberID, messageID int64) (models.Message, error) {
		return h.messages.Edit(ctx, memberID, messageID, req.NewContent)
	})
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	h.mutate(c, h.messages.SoftDelete)
}

func (h *MessageHandler) RestoreMessage(c *gin.Context) {
	h.mutate(c, h.messages.Restore)
}

func (h *MessageHandler) mutate(c *gin.Context, op func(ctx context.Context, memberID, messageID int64) (models.Message, error)) {
	id, ok := identity(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}
	msg, err := op(c.Request.Context(), id.MemberID, messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.messages.Render(c.Request.Context(), msg)[0])
}

func (h *MessageHandler) historyRoom(c *gin.Context) (int64, bool) {
	return historyRoom(c, h.rooms)
}

// historyRoom resolves :room_id and checks read access. Admins may read
// deleted rooms they never joined.
func historyRoom(c *gin.Context, rooms RoomService) (int64, bool) {
	id, ok := identity(c)
	if !ok {
		return 0, false
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return 0, false
	}
	if _, err := rooms.GetRoom(c.Request.Context(), roomID); err != nil {
		respondError(c, err)
		return 0, false
	}
	if err := authorizeHistory(c.Request.Context(), rooms, roomID, id); err != nil {
		respondError(c, err)
		return 0, false
	}
	return roomID, true
}
