package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/auth"
	"chat-engine/internal/chaterr"
	"chat-engine/internal/mocks"
)

func setupRouter(verifier auth.Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(verifier), func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"member": id.MemberID, "role": id.Role})
	})
	return r
}

func TestAuthMiddlewareStoresIdentity(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "good").Return(auth.Identity{MemberID: 7, Role: auth.RoleAdmin}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	setupRouter(verifier).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"member":7,"role":"ADMIN"}`, rec.Body.String())
	verifier.AssertExpectations(t)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "bad").Return(auth.Identity{}, chaterr.ErrUnauthenticated).Once()

	cases := map[string]string{
		"missing":   "",
		"malformed": "Token abc",
		"invalid":   "Bearer bad",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			setupRouter(verifier).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
		})
	}
	verifier.AssertExpectations(t)
}
