// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全，便于在测试中省略指标。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 分类与路由指标
	classificationsTotal  *prometheus.CounterVec
	classifyDuration      prometheus.Histogram
	classifierBreaker     prometheus.Gauge
	routingDecisionsTotal *prometheus.CounterVec
	handoffsTotal         *prometheus.CounterVec

	// Agent 指标
	agentTasksTotal   *prometheus.CounterVec
	agentTaskDuration *prometheus.HistogramVec
	mailboxDepth      *prometheus.GaugeVec

	// 协调与会话指标
	coordinationSessionsTotal *prometheus.CounterVec
	coordinationDuration      prometheus.Histogram
	turnsTotal                *prometheus.CounterVec
	activeConversations       prometheus.Gauge
	transportConnections      *prometheus.CounterVec

	// 存储指标
	storeOperationsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器（注册到默认 registry，namespace 需唯一）
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 分类与路由指标
	c.classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Intent classifications by outcome (ok, degraded)",
		},
		[]string{"outcome"},
	)
	c.classifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Intent classification latency in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5},
		},
	)
	c.classifierBreaker = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "classifier_breaker_state",
			Help:      "Intent service circuit state (0 closed, 1 open, 2 half-open)",
		},
	)
	c.routingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by kind (dispatch, delegate, terminate)",
		},
		[]string{"decision"},
	)
	c.handoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Agent handoffs by source capability and result",
		},
		[]string{"from_capability", "result"},
	)

	// Agent 指标
	c.agentTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tasks_total",
			Help:      "Agent tasks by capability, origin and result status",
		},
		[]string{"capability", "origin", "status"},
	)
	c.agentTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_task_duration_seconds",
			Help:      "Time from dispatch to result per capability",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"capability"},
	)
	c.mailboxDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_mailbox_depth",
			Help:      "Queued tasks per agent mailbox",
		},
		[]string{"agent"},
	)

	// 协调与会话指标
	c.coordinationSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordination_sessions_total",
			Help:      "Coordination sessions by outcome",
		},
		[]string{"outcome"},
	)
	c.coordinationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "coordination_duration_seconds",
			Help:      "Coordination session lifetime in seconds",
			Buckets:   []float64{.05, .1, .5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome",
		},
		[]string{"outcome"},
	)
	c.activeConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Currently open conversations",
		},
	)
	c.transportConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_connections_total",
			Help:      "User proxy connection events (accepted, closed, rejected)",
		},
		[]string{"event"},
	)

	// 存储指标
	c.storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "External store operations by store, operation and status",
		},
		[]string{"store", "operation", "status"},
	)

	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordClassification 记录一次意图分类
func (c *Collector) RecordClassification(degraded bool, duration time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	c.classificationsTotal.WithLabelValues(outcome).Inc()
	c.classifyDuration.Observe(duration.Seconds())
}

// SetClassifierBreakerState 记录理解服务熔断状态
func (c *Collector) SetClassifierBreakerState(state int) {
	if c == nil {
		return
	}
	c.classifierBreaker.Set(float64(state))
}

// RecordRoutingDecision 记录路由决策
func (c *Collector) RecordRoutingDecision(decision string) {
	if c == nil {
		return
	}
	c.routingDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordHandoff 记录移交（result: rerouted / exceeded / unroutable）
func (c *Collector) RecordHandoff(fromCapability, result string) {
	if c == nil {
		return
	}
	c.handoffsTotal.WithLabelValues(fromCapability, result).Inc()
}

// RecordAgentTask 记录 Agent 任务结果
func (c *Collector) RecordAgentTask(capability, origin, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.agentTasksTotal.WithLabelValues(capability, origin, status).Inc()
	c.agentTaskDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// SetMailboxDepth 记录邮箱积压
func (c *Collector) SetMailboxDepth(agent string, depth int) {
	if c == nil {
		return
	}
	c.mailboxDepth.WithLabelValues(agent).Set(float64(depth))
}

// RecordCoordination 记录协调会话
func (c *Collector) RecordCoordination(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.coordinationSessionsTotal.WithLabelValues(outcome).Inc()
	c.coordinationDuration.Observe(duration.Seconds())
}

// RecordTurn 记录一轮对话的终态
func (c *Collector) RecordTurn(outcome string) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(outcome).Inc()
}

// ConversationOpened / ConversationClosed 维护活跃会话数
func (c *Collector) ConversationOpened() {
	if c == nil {
		return
	}
	c.activeConversations.Inc()
}

func (c *Collector) ConversationClosed() {
	if c == nil {
		return
	}
	c.activeConversations.Dec()
}

// RecordTransportEvent 记录用户连接事件
func (c *Collector) RecordTransportEvent(event string) {
	if c == nil {
		return
	}
	c.transportConnections.WithLabelValues(event).Inc()
}

// RecordStoreOperation 记录外部存储操作
func (c *Collector) RecordStoreOperation(store, operation string, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeOperationsTotal.WithLabelValues(store, operation, status).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
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
