package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/auth"
	"chat-engine/internal/chaterr"
	"chat-engine/internal/logging"
	"chat-engine/internal/models"
)

// RoomService is the room directory as seen by HTTP handlers.
type RoomService interface {
	CreatePrivateRoom(ctx context.Context, requesterID, targetID int64) (models.RoomView, error)
	CreateGroupRoom(ctx context.Context, requesterID int64, name string, memberIDs []int64) (models.RoomView, error)
	ListRooms(ctx context.Context, memberID int64, page models.PageRequest) (models.Page[models.Room], error)
	Invite(ctx context.Context, roomID int64, memberIDs []int64) (int, error)
	Leave(ctx context.Context, roomID, memberID int64) error
	SoftDelete(ctx context.Context, roomID, memberID int64) error
	GetRoom(ctx context.Context, roomID int64) (models.RoomView, error)
	IsParticipant(ctx context.Context, roomID, memberID int64) (bool, error)
}

// SessionEvictor drops live sockets of a member from a room.
type SessionEvictor interface {
	EvictMember(ctx context.Context, roomID, memberID int64) int
}

// RoomHandler manages room endpoints.
type RoomHandler struct {
	rooms    RoomService
	sessions SessionEvictor
}

// NewRoomHandler builds a RoomHandler. sessions may be nil.
func NewRoomHandler(rooms RoomService, sessions SessionEvictor) *RoomHandler {
	return &RoomHandler{rooms: rooms, sessions: sessions}
}

// CreatePrivateRoom returns the one live private room between the caller and
// the target, creating it when needed.
func (h *RoomHandler) CreatePrivateRoom(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		MemberID int64 `json:"memberId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, chaterr.ErrInvalidRequest)
		return
	}

	room, err := h.rooms.CreatePrivateRoom(c.Request.Context(), id.MemberID, req.MemberID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) CreateGroupRoom(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Name      string  `json:"name"`
		MemberIDs []int64 `json:"memberIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, chaterr.ErrInvalidRequest)
		return
	}

	room, err := h.rooms.CreateGroupRoom(c.Request.Context(), id.MemberID, strings.TrimSpace(req.Name), req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	logging.Audit(c.Request.Context(), "room.create", id.MemberID, "group room created")
	c.JSON(http.StatusCreated, room)
}

// ListRooms pages the caller's live rooms, most recently active first.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	page := models.PageRequest{Page: intQuery(c, "page", 0), Size: intQuery(c, "size", models.DefaultPageSize)}
	rooms, err := h.rooms.ListRooms(c.Request.Context(), id.MemberID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := authorizeHistory(c.Request.Context(), h.rooms, roomID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// Invite adds members to a group room. Only participants may invite.
func (h *RoomHandler) Invite(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	var req struct {
		MemberIDs []int64 `json:"memberIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, chaterr.ErrInvalidRequest)
		return
	}

	member, err := h.rooms.IsParticipant(c.Request.Context(), roomID, id.MemberID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		respondError(c, chaterr.ErrNotAParticipant)
		return
	}

	added, err := h.rooms.Invite(c.Request.Context(), roomID, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "added": added})
}

func (h *RoomHandler) Leave(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	if err := h.rooms.Leave(c.Request.Context(), roomID, id.MemberID); err != nil {
		respondError(c, err)
		return
	}
	if h.sessions != nil {
		h.sessions.EvictMember(c.Request.Context(), roomID, id.MemberID)
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	if err := h.rooms.SoftDelete(c.Request.Context(), roomID, id.MemberID); err != nil {
		respondError(c, err)
		return
	}
	logging.Audit(c.Request.Context(), "room.delete", id.MemberID, "room deleted")
	c.Status(http.StatusNoContent)
}

// authorizeHistory lets participants and admins read a room, deleted or not.
func authorizeHistory(ctx context.Context, rooms RoomService, roomID int64, id auth.Identity) error {
	if id.IsAdmin() {
		return nil
	}
	member, err := rooms.IsParticipant(ctx, roomID, id.MemberID)
	if err != nil {
		return err
	}
	if !member {
		return chaterr.ErrNotAParticipant
	}
	return nil
}
