package models

import "time"

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// DeletedPlaceholder replaces the content of soft-deleted messages for readers.
const DeletedPlaceholder = "message deleted"

// Message is a persisted chat message. A nil SenderID marks a SYSTEM message.
type Message struct {
	ID              int64       `db:"id" json:"id"`
	RoomID          int64       `db:"room_id" json:"roomId"`
	SenderID        *int64      `db:"sender_id" json:"senderId"`
	Content         string      `db:"content" json:"content"`
	Type            MessageType `db:"type" json:"type"`
	ClientMessageID *string     `db:"client_message_id" json:"clientMessageId"`
	IsDeleted       bool        `db:"is_deleted" json:"isDeleted"`
	Version         int64       `db:"version" json:"version"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// SentBy reports whether memberID sent the message.
func (m Message) SentBy(memberID int64) bool {
	return m.SenderID != nil && *m.SenderID == memberID
}

// SenderView is the public profile attached to rendered messages.
type SenderView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarRef string `json:"avatarRef"`
}

// MessageView is the outbound representation of a message.
type MessageView struct {
	MessageID       int64       `json:"messageId"`
	RoomID          int64       `json:"roomId"`
	Content         string      `json:"content"`
	Type            MessageType `json:"type"`
	CreatedAt       time.Time   `json:"createdAt"`
	Sender          *SenderView `json:"sender"`
	ClientMessageID *string     `json:"clientMessageId"`
	Version         int64       `json:"version"`
}

// ReadStatus is one participant's read pointer.
type ReadStatus struct {
	RoomID    int64  `db:"room_id" json:"roomId"`
	MemberID  int64  `db:"member_id" json:"memberId"`
	MessageID *int64 `db:"last_read_message_id" json:"messageId"`
}
