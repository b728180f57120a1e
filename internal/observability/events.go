package observability

import "time"

// EventEnvelope is the body of every chat event on the broker.
type EventEnvelope struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     int       `json:"version"`
	OccurredAt  time.Time `json:"occurredAt"`
	Source      string    `json:"source"`
	Environment string    `json:"environment,omitempty"`
	RoomID      int64     `json:"roomId,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
	TraceID     string    `json:"traceId,omitempty"`
	Payload     any       `json:"payload"`
}

// Headers are the AMQP headers consumers filter and correlate on.
func (e EventEnvelope) Headers() map[string]interface{} {
	headers := map[string]interface{}{
		"event-name":    e.Name,
		"event-version": int32(e.Version),
	}
	if e.RoomID != 0 {
		headers["room-id"] = e.RoomID
	}
	if e.RequestID != "" {
		headers["x-request-id"] = e.RequestID
	}
	if e.TraceID != "" {
		headers["trace-id"] = e.TraceID
	}
	return headers
}
