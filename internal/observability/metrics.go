package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat engine.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcClientHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_grpc_client_handled_total",
			Help: "Total number of outbound gRPC calls by result code.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of registered websocket connections.",
		},
	)
	wsFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_frames_total",
			Help: "Inbound websocket frames by event and outcome.",
		},
		[]string{"event", "outcome"},
	)
	wsFrameDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_ws_frame_duration_seconds",
			Help:    "Time spent handling an inbound websocket frame.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"event"},
	)
	broadcastDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_broadcast_deliveries_total",
			Help: "Per-connection broadcast deliveries by result.",
		},
		[]string{"result"},
	)
	messagesSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_saved_total",
			Help: "Messages accepted by the store, split by type and replay.",
		},
		[]string{"type", "replayed"},
	)
	messageConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_message_conflicts_total",
			Help: "Message edits, deletes and restores rejected by the version check.",
		},
		[]string{"op"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcClientHandledTotal,
		wsActiveConnections,
		wsFramesTotal,
		wsFrameDuration,
		broadcastDeliveriesTotal,
		messagesSavedTotal,
		messageConflictsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// GRPCClientMetricsUnaryInterceptor counts outbound calls by status code.
func GRPCClientMetricsUnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		err := invoker(ctx, method, req, reply, cc, opts...)
		service, name := splitFullMethod(method)
		grpcClientHandledTotal.WithLabelValues(service, name, status.Code(err).String()).Inc()
		return err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

// ObserveWSFrame counts a handled frame. A zero elapsed skips the latency
// histogram, which is used for frames that never reached dispatch.
func ObserveWSFrame(event, outcome string, elapsed time.Duration) {
	wsFramesTotal.WithLabelValues(event, outcome).Inc()
	if elapsed > 0 {
		wsFrameDuration.WithLabelValues(event).Observe(elapsed.Seconds())
	}
}

func AddBroadcastDeliveries(delivered, dropped int) {
	if delivered > 0 {
		broadcastDeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	}
	if dropped > 0 {
		broadcastDeliveriesTotal.WithLabelValues("dropped").Add(float64(dropped))
	}
}

func IncMessageSaved(messageType string, replayed bool) {
	messagesSavedTotal.WithLabelValues(messageType, strconv.FormatBool(replayed)).Inc()
}

func IncMessageConflict(op string) {
	messageConflictsTotal.WithLabelValues(op).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
