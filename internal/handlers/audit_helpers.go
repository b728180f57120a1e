package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-engine/internal/auth"
	"chat-engine/internal/chaterr"
	"chat-engine/internal/logging"
	"chat-engine/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if id := logging.RequestID(c.Request.Context()); id != "" {
		return id
	}
	if id := c.GetString(logging.RequestIDContextKey); id != "" {
		return id
	}

	requestID := c.GetHeader(logging.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(logging.RequestIDContextKey, requestID)
	return requestID
}

// identity aborts with 401 when AuthMiddleware did not run.
func identity(c *gin.Context) (auth.Identity, bool) {
	id, ok := middleware.Identity(c)
	if !ok {
		respondError(c, chaterr.ErrUnauthenticated)
		return auth.Identity{}, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, chaterr.ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// respondError writes the stable error body for err. Internal errors are
// logged and never exposed.
func respondError(c *gin.Context, err error) {
	status := chaterr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).
			Str(logging.FieldRequestID, requestIDFromContext(c)).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":     chaterr.Code(err),
		"message":   chaterr.Message(err),
		"retryable": chaterr.Retryable(err),
	})
}
