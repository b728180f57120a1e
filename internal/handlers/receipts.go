package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/models"
)

// ReadService is the read tracker as seen by HTTP handlers.
type ReadService interface {
	UnreadCount(ctx context.Context, roomID, memberID int64) (int, error)
	Statuses(ctx context.Context, roomID int64) ([]models.ReadStatus, error)
}

type ReceiptHandler struct {
	rooms RoomService
	reads ReadService
}

func NewReceiptHandler(rooms RoomService, reads ReadService) *ReceiptHandler {
	return &ReceiptHandler{rooms: rooms, reads: reads}
}

// ReadStatuses lists every participant's read pointer.
func (h *ReceiptHandler) ReadStatuses(c *gin.Context) {
	roomID, ok := historyRoom(c, h.rooms)
	if !ok {
		return
	}
	statuses, err := h.reads.Statuses(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "statuses": statuses})
}

// UnreadCount counts the caller's unread live messages.
func (h *ReceiptHandler) UnreadCount(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	count, err := h.reads.UnreadCount(c.Request.Context(), roomID, id.MemberID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "memberId": id.MemberID, "count": count})
}
