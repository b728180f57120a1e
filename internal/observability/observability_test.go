package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", ClientIP(r))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", ClientIP(r))
}

func TestEnvelopeHeaders(t *testing.T) {
	h := EventEnvelope{Name: "message.created", Version: 1}.Headers()
	assert.Equal(t, "message.created", h["event-name"])
	assert.Equal(t, int32(1), h["event-version"])
	assert.NotContains(t, h, "room-id")
	assert.NotContains(t, h, "x-request-id")

	h = EventEnvelope{Name: "read.advanced", Version: 1, RoomID: 9, RequestID: "req", TraceID: "trace"}.Headers()
	assert.Equal(t, int64(9), h["room-id"])
	assert.Equal(t, "req", h["x-request-id"])
	assert.Equal(t, "trace", h["trace-id"])
}

func TestSplitFullMethod(t *testing.T) {
	s, m := splitFullMethod("/auth.AuthService/ValidateToken")
	assert.Equal(t, "auth.AuthService", s)
	assert.Equal(t, "ValidateToken", m)

	s, m = splitFullMethod("bogus")
	assert.Equal(t, "unknown", s)
	assert.Equal(t, "unknown", m)
}

func TestHTTPMetricsMiddlewareCountsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMetricsMiddleware())
	router.GET("/rooms/:room_id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/rooms/:room_id", "204"))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rooms/7", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/rooms/:room_id", "204"))
	assert.Equal(t, before+1, after)
}

func TestBroadcastDeliveries(t *testing.T) {
	before := testutil.ToFloat64(broadcastDeliveriesTotal.WithLabelValues("dropped"))
	AddBroadcastDeliveries(3, 2)
	assert.Equal(t, before+2, testutil.ToFloat64(broadcastDeliveriesTotal.WithLabelValues("dropped")))
}
