package models

import (
	"fmt"
	"time"
)

// RoomType is fixed when a room is created.
type RoomType string

const (
	RoomTypePrivate RoomType = "PRIVATE"
	RoomTypeGroup   RoomType = "GROUP"
)

// Room is a chat room. IsDeleted only ever moves from false to true.
type Room struct {
	ID         int64     `db:"id" json:"id"`
	Type       RoomType  `db:"type" json:"type"`
	Name       *string   `db:"name" json:"name,omitempty"`
	PrivateKey *string   `db:"private_key" json:"-"`
	IsDeleted  bool      `db:"is_deleted" json:"isDeleted"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Participant is the membership row joining a member to a room.
type Participant struct {
	RoomID            int64     `db:"room_id" json:"roomId"`
	MemberID          int64     `db:"member_id" json:"memberId"`
	LastReadMessageID *int64    `db:"last_read_message_id" json:"lastReadMessageId"`
	JoinedAt          time.Time `db:"joined_at" json:"joinedAt"`
}

// RoomView is a room together with its sorted participant ids.
type RoomView struct {
	Room
	ParticipantIDs []int64 `json:"participantIds"`
}

// PrivateRoomKey returns the order-independent key of a private room between a and b.
func PrivateRoomKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
