package metrics

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.classificationsTotal)
	assert.NotNil(t, collector.routingDecisionsTotal)
	assert.NotNil(t, collector.agentTasksTotal)
	assert.NotNil(t, collector.coordinationSessionsTotal)
	assert.NotNil(t, collector.turnsTotal)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotNil(t, NewCollector(nextTestNamespace(), nil))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/health", 204, 50*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/chat", 503, 10*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/chat", "5xx")))
}

func TestCollector_RecordClassification(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordClassification(false, 2*time.Millisecond)
	collector.RecordClassification(true, time.Second)
	collector.RecordClassification(true, time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.classificationsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.classificationsTotal.WithLabelValues("degraded")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.classifyDuration))
}

func TestCollector_RoutingAndHandoff(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRoutingDecision("dispatch")
	collector.RecordRoutingDecision("delegate")
	collector.RecordRoutingDecision("dispatch")
	collector.RecordHandoff("flight", "rerouted")
	collector.RecordHandoff("flight", "exceeded")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.routingDecisionsTotal.WithLabelValues("dispatch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.handoffsTotal.WithLabelValues("flight", "exceeded")))
}

func TestCollector_AgentAndCoordination(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAgentTask("hotel", "coordinator", "ok", time.Second)
	collector.RecordAgentTask("hotel", "coordinator", "error", 30*time.Second)
	collector.SetMailboxDepth("hotel_booking", 3)
	collector.RecordCoordination("partial", 31*time.Second)
	collector.RecordTurn("completed")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.agentTasksTotal.WithLabelValues("hotel", "coordinator", "error")))
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.mailboxDepth.WithLabelValues("hotel_booking")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.coordinationSessionsTotal.WithLabelValues("partial")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.turnsTotal.WithLabelValues("completed")))
}

func TestCollector_ConversationsAndTransport(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ConversationOpened()
	collector.ConversationOpened()
	collector.ConversationClosed()
	collector.RecordTransportEvent("accepted")
	collector.SetClassifierBreakerState(1)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.activeConversations))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.transportConnections.WithLabelValues("accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.classifierBreaker))
}

func TestCollector_RecordStoreOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordStoreOperation("redis", "incr", nil)
	collector.RecordStoreOperation("redis", "incr", errors.New("down"))

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.storeOperationsTotal.WithLabelValues("redis", "incr", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.storeOperationsTotal.WithLabelValues("redis", "incr", "error")))
}

func TestCollector_NilReceiver(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		collector.RecordClassification(true, time.Millisecond)
		collector.SetClassifierBreakerState(2)
		collector.RecordRoutingDecision("dispatch")
		collector.RecordHandoff("car", "rerouted")
		collector.RecordAgentTask("car", "router", "ok", time.Millisecond)
		collector.SetMailboxDepth("car_rental", 1)
		collector.RecordCoordination("completed", time.Millisecond)
		collector.RecordTurn("completed")
		collector.ConversationOpened()
		collector.ConversationClosed()
		collector.RecordTransportEvent("closed")
		collector.RecordStoreOperation("db", "insert", nil)
	})
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
