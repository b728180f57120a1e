package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID     = "X-Request-ID"
	RequestIDContextKey = "request_id"
)

// GinMiddleware attaches a request-scoped logger and logs each completed request.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		child := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()

		c.Set(RequestIDContextKey, reqID)
		c.Header(HeaderRequestID, reqID)
		c.Request = c.Request.WithContext(WithRequestID(WithLogger(c.Request.Context(), child), reqID))

		c.Next()

		evt := child.Info().
			Int(FieldStatus, c.Writer.Status()).
			Int64(FieldLatency, time.Since(start).Milliseconds())
		if memberID := c.GetInt64("memberID"); memberID != 0 {
			evt = evt.Int64(FieldMemberID, memberID)
		}
		evt.Msg("request completed")
	}
}
