package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWith(reg, "coordination", zap.NewNop())

	c.RecordHTTPRequest("POST", "/v1/tools/send_message", 200, 10*time.Millisecond)
	c.SetAgentsRegistered(3)
	c.RecordAgentEvent("registered")
	c.SetSessions("active", 2)
	c.RecordSessionTransition("closed")
	c.RecordMessage("broadcast", "accepted")
	c.RecordCommitDuration(time.Millisecond)
	c.RecordDeliveryFailures(2)
	c.RecordDeliveryFailures(0)
	c.RecordRejection("EvaluatorUnavailable")
	c.RecordEvaluatorCall(50*time.Millisecond, true)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.agentsRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentEvents.WithLabelValues("registered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sessionsByState.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesTotal.WithLabelValues("broadcast", "accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.deliveryFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejectionsTotal.WithLabelValues("EvaluatorUnavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluatorFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(301))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(42))
}
