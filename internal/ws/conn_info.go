package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-engine/internal/logging"
	"chat-engine/internal/observability"
)

// ConnInfo is the transport metadata of one socket, captured at upgrade time.
type ConnInfo struct {
	ConnID      string
	IP          string
	UserAgent   string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// NewConnInfo reads client metadata from the upgrade request and assigns a
// fresh connection id.
func NewConnInfo(r *http.Request, requestID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      NewConnID(),
		IP:          observability.ClientIP(r),
		UserAgent:   r.UserAgent(),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now().UTC(),
	}
}

// MarshalZerologObject lets a ConnInfo be logged with Object("conn", info).
func (i ConnInfo) MarshalZerologObject(e *zerolog.Event) {
	e.Str(logging.FieldConnID, i.ConnID).
		Str(logging.FieldClientIP, i.IP)
	if i.UserAgent != "" {
		e.Str("user_agent", i.UserAgent)
	}
	if i.RequestID != "" {
		e.Str(logging.FieldRequestID, i.RequestID)
	}
	if !i.ConnectedAt.IsZero() {
		e.Dur("connected_for", time.Since(i.ConnectedAt))
	}
}

func NewConnID() string {
	return "c-" + uuid.NewString()
}
