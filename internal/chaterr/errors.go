// Package chaterr defines the stable error kinds surfaced to chat clients.
package chaterr

import (
	"errors"
	"net/http"
)

// Kind groups errors by how a client is expected to react.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindAuthorization   Kind = "authorization"
	KindUnauthenticated Kind = "unauthenticated"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// Error is a sentinel carrying a stable wire code.
type Error struct {
	code    string
	kind    Kind
	message string
}

func (e *Error) Error() string { return e.message }

// Code returns the stable wire code.
func (e *Error) Code() string { return e.code }

// Kind returns the error kind.
func (e *Error) Kind() Kind { return e.kind }

func newError(code string, kind Kind, message string) *Error {
	return &Error{code: code, kind: kind, message: message}
}

var (
	ErrInvalidName           = newError("INVALID_NAME", KindValidation, "room name must not be blank")
	ErrInvalidMembers        = newError("INVALID_MEMBERS", KindValidation, "one or more member ids are invalid")
	ErrInvalidRoomType       = newError("INVALID_ROOM_TYPE", KindValidation, "operation not allowed for this room type")
	ErrMissingIdempotencyKey = newError("MISSING_IDEMPOTENCY_KEY", KindValidation, "clientMessageId is required")
	ErrIdempotencyKeyTooLong = newError("IDEMPOTENCY_KEY_TOO_LONG", KindValidation, "clientMessageId must be at most 64 characters")
	ErrUnsupportedType       = newError("UNSUPPORTED_MESSAGE_TYPE", KindValidation, "unsupported message type")
	ErrInvalidContent        = newError("INVALID_CONTENT", KindValidation, "message content must not be blank")
	ErrInvalidTypingStatus   = newError("INVALID_TYPING_STATUS", KindValidation, "typing status must be typing or stop")
	ErrInvalidRequest        = newError("INVALID_REQUEST", KindValidation, "invalid request")
	ErrEditWindowExpired     = newError("EDIT_WINDOW_EXPIRED", KindValidation, "message can only be changed within 5 minutes")
	ErrAlreadyDeleted        = newError("ALREADY_DELETED", KindValidation, "room is already deleted")
	ErrRoomMismatch          = newError("ROOM_MISMATCH", KindValidation, "message does not belong to room")

	ErrRoomNotFound    = newError("ROOM_NOT_FOUND", KindNotFound, "room not found")
	ErrRoomDeleted     = newError("ROOM_DELETED", KindNotFound, "room is deleted")
	ErrMessageNotFound = newError("MESSAGE_NOT_FOUND", KindNotFound, "message not found")
	ErrMemberNotFound  = newError("MEMBER_NOT_FOUND", KindNotFound, "member not found")
	ErrSenderNotFound  = newError("SENDER_NOT_FOUND", KindNotFound, "sender not found")

	ErrNotAParticipant  = newError("NOT_A_PARTICIPANT", KindAuthorization, "member is not a participant of the room")
	ErrNotSender        = newError("NOT_SENDER", KindAuthorization, "only the sender may change this message")
	ErrIdentityMismatch = newError("IDENTITY_MISMATCH", KindAuthorization, "request member does not match connection")

	ErrUnauthenticated = newError("UNAUTHENTICATED", KindUnauthenticated, "invalid or missing credential")

	ErrConcurrentModification = newError("CONCURRENT_MODIFICATION", KindConflict, "message was modified concurrently, retry")
)

// KindOf reports the kind of err, KindInternal when err is not a chat error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.kind
	}
	return KindInternal
}

// Code reports the wire code of err.
func Code(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.code
	}
	return "INTERNAL"
}

// Message returns a client-safe description of err.
func Message(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.message
	}
	return "internal error"
}

// Retryable is true only for concurrency conflicts.
func Retryable(err error) bool {
	return KindOf(err) == KindConflict
}

// HTTPStatus maps err onto a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
