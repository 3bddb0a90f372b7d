package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/hnpl/libapps/internal/agent"
	"github.com/hnpl/libapps/internal/protocol"
	"github.com/hnpl/libapps/internal/protocol/frame"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "libapps"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	agentFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "frames_total",
			Help:      "Agent protocol frames by direction and message type.",
		},
		[]string{"direction", "type"},
	)
	agentFrameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "frame_bytes_total",
			Help:      "Agent protocol bytes by direction, excluding length prefixes.",
		},
		[]string{"direction"},
	)
	agentFrameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "frame_errors_total",
			Help:      "Malformed frames that ended a session.",
		},
		[]string{"reason"},
	)
	agentDecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "decode_errors_total",
			Help:      "Payloads that failed to decode, by message type and reason.",
		},
		[]string{"type", "reason"},
	)
	agentRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "requests_total",
			Help:      "Agent requests by message type and outcome.",
		},
		[]string{"type", "outcome"},
	)
	agentRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "request_duration_seconds",
			Help:      "Agent request handling time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	agentConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "connections_active",
			Help:      "Open agent client connections.",
		},
	)
	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Calls forwarded to the upstream agent.",
		},
		[]string{"op", "success"},
	)
	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Upstream agent call duration in seconds, including dials.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			agentFrames,
			agentFrameBytes,
			agentFrameErrors,
			agentDecodeErrors,
			agentRequests,
			agentRequestDuration,
			agentConnections,
			upstreamCalls,
			upstreamDuration,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordUpstreamCall matches upstream.Observer.
func RecordUpstreamCall(op string, duration time.Duration, err error) {
	RegisterMetrics()
	upstreamCalls.WithLabelValues(op, strconv.FormatBool(err == nil)).Inc()
	upstreamDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// AgentMetrics reports agent and session events to prometheus.
type AgentMetrics struct{}

var _ agent.Metrics = AgentMetrics{}

func NewAgentMetrics() AgentMetrics {
	RegisterMetrics()
	return AgentMetrics{}
}

func (AgentMetrics) FrameRead(t protocol.MessageNumber, size int) {
	agentFrames.WithLabelValues("in", t.String()).Inc()
	agentFrameBytes.WithLabelValues("in").Add(float64(size))
}

func (AgentMetrics) FrameWritten(t protocol.MessageNumber, size int) {
	agentFrames.WithLabelValues("out", t.String()).Inc()
	agentFrameBytes.WithLabelValues("out").Add(float64(size))
}

func (AgentMetrics) FrameFailed(err error) {
	agentFrameErrors.WithLabelValues(FrameErrorReason(err)).Inc()
}

func (AgentMetrics) DecodeFailed(t protocol.MessageNumber, err error) {
	agentDecodeErrors.WithLabelValues(t.String(), DecodeErrorReason(err)).Inc()
}

func (AgentMetrics) ConnectionOpened() {
	agentConnections.Inc()
}

func (AgentMetrics) ConnectionClosed() {
	agentConnections.Dec()
}

func (AgentMetrics) RequestHandled(t protocol.MessageNumber, outcome string, elapsed time.Duration) {
	agentRequests.WithLabelValues(t.String(), outcome).Inc()
	agentRequestDuration.WithLabelValues(t.String()).Observe(elapsed.Seconds())
}

// FrameErrorReason maps a frame error to a metric label.
func FrameErrorReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrShortFrame):
		return "short"
	case errors.Is(err, frame.ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, frame.ErrEmptyFrame):
		return "empty"
	case errors.Is(err, frame.ErrFrameTooLarge):
		return "too_large"
	default:
		return "other"
	}
}

// DecodeErrorReason maps a payload decode error to a metric label.
func DecodeErrorReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTruncated):
		return "truncated"
	case errors.Is(err, protocol.ErrTrailingData):
		return "trailing_data"
	case errors.Is(err, protocol.ErrInvalidLength):
		return "invalid_length"
	default:
		return "other"
	}
}
