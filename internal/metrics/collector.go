// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records coordination service metrics.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Registry metrics
	agentsRegistered prometheus.Gauge
	agentEvents      *prometheus.CounterVec

	// Session metrics
	sessionsByState    *prometheus.GaugeVec
	sessionTransitions *prometheus.CounterVec

	// Router metrics
	messagesTotal     *prometheus.CounterVec
	messageSeqAssign  prometheus.Histogram
	deliveryFailures  prometheus.Counter
	rejectionsTotal   *prometheus.CounterVec
	evaluatorDuration prometheus.Histogram
	evaluatorFailures prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith creates a collector on an explicit registerer. For tests.
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.agentsRegistered = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_registered",
			Help:      "Number of currently registered agents",
		},
	)

	c.agentEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_events_total",
			Help:      "Total number of registry events",
		},
		[]string{"event"},
	)

	c.sessionsByState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of sessions by state",
		},
		[]string{"state"},
	)

	c.sessionTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Total number of session state transitions",
		},
		[]string{"to_state"},
	)

	c.messagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of routed messages",
		},
		[]string{"kind", "outcome"},
	)

	c.messageSeqAssign = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_commit_duration_seconds",
			Help:      "Duration of the sequence assignment and history append pair",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	c.deliveryFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of per-recipient delivery failures",
		},
	)

	c.rejectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Total number of gate rejections",
		},
		[]string{"reason"},
	)

	c.evaluatorDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluator_duration_seconds",
			Help:      "External evaluator call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	c.evaluatorFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluator_failures_total",
			Help:      "Total number of evaluator timeouts and failures",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records an HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetAgentsRegistered sets the registered agent gauge.
func (c *Collector) SetAgentsRegistered(n int) {
	c.agentsRegistered.Set(float64(n))
}

// RecordAgentEvent records a registry event by type.
func (c *Collector) RecordAgentEvent(event string) {
	c.agentEvents.WithLabelValues(event).Inc()
}

// SetSessions sets the session gauge for a state.
func (c *Collector) SetSessions(state string, n int) {
	c.sessionsByState.WithLabelValues(state).Set(float64(n))
}

// RecordSessionTransition records a session state transition.
func (c *Collector) RecordSessionTransition(toState string) {
	c.sessionTransitions.WithLabelValues(toState).Inc()
}

// RecordMessage records a routed message outcome.
func (c *Collector) RecordMessage(kind, outcome string) {
	c.messagesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordCommitDuration records the seq-assign plus history-append duration.
func (c *Collector) RecordCommitDuration(d time.Duration) {
	c.messageSeqAssign.Observe(d.Seconds())
}

// RecordDeliveryFailures adds to the delivery failure counter.
func (c *Collector) RecordDeliveryFailures(n int) {
	if n > 0 {
		c.deliveryFailures.Add(float64(n))
	}
}

// RecordRejection records a gate rejection by primary reason.
func (c *Collector) RecordRejection(reason string) {
	c.rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordEvaluatorCall records an evaluator call and whether it failed.
func (c *Collector) RecordEvaluatorCall(duration time.Duration, failed bool) {
	c.evaluatorDuration.Observe(duration.Seconds())
	if failed {
		c.evaluatorFailures.Inc()
	}
}

// statusCode folds an HTTP status into its class.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
