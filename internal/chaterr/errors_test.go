package chaterr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("edit message 7: %w", ErrConcurrentModification)

	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "CONCURRENT_MODIFICATION", Code(err))
	assert.True(t, Retryable(err))
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestUnknownErrorIsInternal(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "INTERNAL", Code(err))
	assert.Equal(t, "internal error", Message(err))
	assert.False(t, Retryable(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestHTTPStatusByKind(t *testing.T) {
	cases := map[error]int{
		ErrInvalidName:       http.StatusBadRequest,
		ErrRoomNotFound:      http.StatusNotFound,
		ErrNotAParticipant:   http.StatusForbidden,
		ErrUnauthenticated:   http.StatusUnauthorized,
		ErrEditWindowExpired: http.StatusBadRequest,
	}
	for err, status := range cases {
		assert.Equal(t, status, HTTPStatus(err), Code(err))
		assert.False(t, Retryable(err), Code(err))
	}
}
