package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/auth"
	"chat-engine/internal/chaterr"
	"chat-engine/internal/logging"
)

const (
	MemberIDKey = "memberID"
	RoleKey     = "role"
)

// AuthMiddleware validates the bearer token and stores the member identity
// on the gin context.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthenticated(c, "missing authorization")
			return
		}

		token, err := auth.BearerToken(header)
		if err != nil {
			abortUnauthenticated(c, "invalid authorization header")
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			logging.Ctx(c.Request.Context()).Debug().Err(err).Msg("token rejected")
			abortUnauthenticated(c, "invalid token")
			return
		}

		c.Set(MemberIDKey, identity.MemberID)
		c.Set(RoleKey, identity.Role)
		c.Next()
	}
}

// Identity returns the identity stored by AuthMiddleware.
func Identity(c *gin.Context) (auth.Identity, bool) {
	memberID, ok := c.Get(MemberIDKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := memberID.(int64)
	if !ok || id == 0 {
		return auth.Identity{}, false
	}
	return auth.Identity{MemberID: id, Role: c.GetString(RoleKey)}, true
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   chaterr.Code(chaterr.ErrUnauthenticated),
		"message": message,
	})
}
