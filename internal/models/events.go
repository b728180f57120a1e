package models

import "encoding/json"

// Frame event names carried over WebSocket connections.
const (
	EventSend        = "send"
	EventRead        = "read"
	EventTyping      = "typing"
	EventEdit        = "edit"
	EventDelete      = "delete"
	EventRestore     = "restore"
	EventPing        = "ping"
	EventMessage     = "message"
	EventReadReceipt = "read_receipt"
	EventReply       = "reply"
	EventError       = "error"
	EventPong        = "pong"
)

// TypingStatus is an ephemeral indicator, never persisted.
type TypingStatus string

const (
	TypingStatusTyping TypingStatus = "typing"
	TypingStatusStop   TypingStatus = "stop"
)

// Valid reports whether s is a known status.
func (s TypingStatus) Valid() bool {
	return s == TypingStatusTyping || s == TypingStatusStop
}

// InboundFrame is the envelope of every client frame.
type InboundFrame struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// OutboundFrame is the envelope of every server frame.
type OutboundFrame struct {
	Event     string `json:"event"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// SendRequest is the payload of a send frame.
type SendRequest struct {
	RoomID          int64       `json:"roomId"`
	Content         string      `json:"content,omitempty"`
	Type            MessageType `json:"type"`
	FileURL         string      `json:"fileUrl,omitempty"`
	ClientMessageID string      `json:"clientMessageId"`
}

// ReadRequest is the payload of a read frame.
type ReadRequest struct {
	RoomID    int64 `json:"roomId"`
	MemberID  int64 `json:"memberId"`
	MessageID int64 `json:"messageId"`
}

// TypingRequest is the payload of a typing frame.
type TypingRequest struct {
	RoomID int64        `json:"roomId"`
	Status TypingStatus `json:"status"`
}

// EditRequest is the payload of an edit frame.
type EditRequest struct {
	MessageID  int64  `json:"messageId"`
	NewContent string `json:"newContent"`
}

// MessageRef is the payload of delete and restore frames.
type MessageRef struct {
	MessageID int64 `json:"messageId"`
}

// ReadReceipt is broadcast when a read pointer advances.
type ReadReceipt struct {
	RoomID    int64 `json:"roomId"`
	MemberID  int64 `json:"memberId"`
	MessageID int64 `json:"messageId"`
}

// TypingEvent is broadcast for typing indicators.
type TypingEvent struct {
	RoomID   int64        `json:"roomId"`
	MemberID int64        `json:"memberId"`
	Status   TypingStatus `json:"status"`
}

// ErrorPayload describes a rejected frame.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
