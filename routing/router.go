package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/intent"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/tripflow/routing"

// UnservableText is the answer sent when a request cannot be routed.
const UnservableText = "I'm sorry, I could not complete your request. " +
	"None of our agents was able to handle it."

// DecisionKind discriminates Decision.
type DecisionKind string

const (
	// DecisionDispatch sends one task to one agent.
	DecisionDispatch DecisionKind = "dispatch"
	// DecisionDelegate hands the label set to the coordinator.
	DecisionDelegate DecisionKind = "delegate"
	// DecisionTerminate ends the turn with Answer.
	DecisionTerminate DecisionKind = "terminate"
)

// Decision is the single outbound message of one routing step. Exactly one of
// Task, Labels or Answer is meaningful, as selected by Kind.
type Decision struct {
	Kind DecisionKind

	// DecisionDispatch
	Agent agent.ID
	Task  types.AgentTask

	// DecisionDelegate
	Labels types.LabelSet

	// DecisionTerminate
	Answer types.FinalAnswer

	// Degraded is set when classification failed and fell back to general.
	Degraded bool
}

// Config 路由配置
type Config struct {
	// HandoffLimit 单轮允许的最大移交次数
	HandoffLimit int `yaml:"handoff_limit" env:"HANDOFF_LIMIT" json:"handoff_limit"`
	// ClassifyTimeout 单次分类超时
	ClassifyTimeout time.Duration `yaml:"classify_timeout" env:"CLASSIFY_TIMEOUT" json:"classify_timeout"`
	// TripPlan {multi} 在移交重分类时展开成的能力序列
	TripPlan []types.IntentLabel `yaml:"trip_plan" json:"trip_plan"`
}

// DefaultConfig 返回默认路由配置
func DefaultConfig() Config {
	return Config{
		HandoffLimit:    3,
		ClassifyTimeout: 10 * time.Second,
		TripPlan:        types.DefaultTripPlan(),
	}
}

// Router turns classifications into routing decisions.
type Router struct {
	classifier intent.Classifier
	table      *Table
	counters   CounterStore
	fallback   *MemoryCounterStore
	config     Config
	logger     *zap.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
	newTaskID  func() string
}

// NewRouter wires a router. A nil counters store uses the in-memory store.
func NewRouter(classifier intent.Classifier, table *Table, counters CounterStore, config Config, logger *zap.Logger, collector *metrics.Collector) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := NewMemoryCounterStore()
	if counters == nil {
		counters = fallback
	}
	if config.HandoffLimit < 0 {
		config.HandoffLimit = 0
	}
	if config.ClassifyTimeout <= 0 {
		config.ClassifyTimeout = DefaultConfig().ClassifyTimeout
	}
	if len(config.TripPlan) == 0 {
		config.TripPlan = types.DefaultTripPlan()
	}
	return &Router{
		classifier: classifier,
		table:      table,
		counters:   counters,
		fallback:   fallback,
		config:     config,
		logger:     logger.With(zap.String("component", "router")),
		metrics:    collector,
		tracer:     otel.Tracer(instrumentationName),
		newTaskID:  uuid.NewString,
	}
}

// Table returns the routing table.
func (r *Router) Table() *Table { return r.table }

// HandoffLimit returns the configured bound.
func (r *Router) HandoffLimit() int { return r.config.HandoffLimit }

// Route classifies req and decides where it goes.
func (r *Router) Route(ctx context.Context, req types.UserRequest) Decision {
	ctx, span := r.tracer.Start(ctx, "routing.route",
		trace.WithAttributes(attribute.String("conversation.id", string(req.ConversationID))))
	defer span.End()

	labels, degraded := r.classify(ctx, req.Text)
	d := r.decide(req.ConversationID, req.Text, labels)
	d.Degraded = degraded

	span.SetAttributes(
		attribute.String("routing.labels", labels.String()),
		attribute.String("routing.decision", string(d.Kind)))
	return d
}

// HandleHandoff counts the handoff and either terminates the turn or
// re-routes the remaining text away from the handing-off capability.
func (r *Router) HandleHandoff(ctx context.Context, h types.HandoffRequest) Decision {
	ctx, span := r.tracer.Start(ctx, "routing.handoff",
		trace.WithAttributes(
			attribute.String("conversation.id", string(h.ConversationID)),
			attribute.String("handoff.from", string(h.FromCapability))))
	defer span.End()

	logger := r.logger.With(
		zap.String("conversation_id", string(h.ConversationID)),
		zap.String("capability", string(h.FromCapability)))

	count := r.countHandoff(ctx, h.ConversationID, logger)
	span.SetAttributes(attribute.Int("handoff.count", count))

	if count > r.config.HandoffLimit {
		logger.Warn("handoff limit exceeded",
			zap.Int("count", count),
			zap.Int("limit", r.config.HandoffLimit))
		r.metrics.RecordHandoff(string(h.FromCapability), "exceeded")
		return r.terminate(h.ConversationID, types.NewError(types.ErrHandoffLoopExceeded,
			fmt.Sprintf("request handed off %d times, limit is %d", count, r.config.HandoffLimit)))
	}

	labels, degraded := r.classify(ctx, h.RemainingText)
	labels = labels.Expand(r.config.TripPlan).Without(h.FromCapability)
	if labels.Empty() {
		if h.FromCapability == types.LabelGeneral {
			r.metrics.RecordHandoff(string(h.FromCapability), "unroutable")
			return r.terminate(h.ConversationID, types.NewError(types.ErrHandoffLoopExceeded,
				"no capability left to take over the request"))
		}
		labels = types.GeneralOnly()
	}

	logger.Info("handoff rerouted",
		zap.Int("count", count),
		zap.String("reason", h.Reason),
		zap.Stringer("labels", labels))
	r.metrics.RecordHandoff(string(h.FromCapability), "rerouted")

	d := r.decide(h.ConversationID, h.RemainingText, labels)
	d.Degraded = degraded
	return d
}

// countHandoff increments both the configured store and the in-memory
// shadow and returns the higher count, so store errors never lower it.
func (r *Router) countHandoff(ctx context.Context, id types.ConversationID, logger *zap.Logger) int {
	local, _ := r.fallback.Incr(ctx, id)
	if r.counters == CounterStore(r.fallback) {
		return local
	}
	count, err := r.counters.Incr(ctx, id)
	if err != nil {
		logger.Warn("handoff counter unavailable, using in-memory count",
			zap.Int("count", local), zap.Error(err))
		return local
	}
	return max(count, local)
}

// ResetHandoffs clears the conversation's handoff count.
func (r *Router) ResetHandoffs(ctx context.Context, id types.ConversationID) {
	if err := r.counters.Reset(ctx, id); err != nil {
		r.logger.Warn("reset handoff counter failed",
			zap.String("conversation_id", string(id)), zap.Error(err))
	}
	if r.counters != CounterStore(r.fallback) {
		_ = r.fallback.Reset(ctx, id)
	}
}

// classify never fails: errors degrade to {general}.
func (r *Router) classify(ctx context.Context, text string) (types.LabelSet, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.config.ClassifyTimeout)
	defer cancel()

	start := time.Now()
	labels, err := r.classifier.Classify(ctx, text)
	degraded := err != nil
	if degraded {
		r.logger.Warn("classification degraded to general",
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		labels = types.GeneralOnly()
	}
	if labels.Empty() {
		labels = types.GeneralOnly()
	}
	r.metrics.RecordClassification(degraded, time.Since(start))
	return labels, degraded
}

func (r *Router) decide(id types.ConversationID, text string, labels types.LabelSet) Decision {
	if labels.Len() > 1 || labels.IsMultiOnly() {
		r.metrics.RecordRoutingDecision(string(DecisionDelegate))
		return Decision{Kind: DecisionDelegate, Labels: labels}
	}

	label := labels.First()
	target, ok := r.table.Lookup(label)
	if !ok {
		r.logger.Warn("no agent routed for label, using general",
			zap.String("conversation_id", string(id)),
			zap.String("capability", string(label)))
		label = types.LabelGeneral
		if target, ok = r.table.Lookup(label); !ok {
			return r.terminate(id, types.NewError(types.ErrUnknownCapability, "no general agent routed"))
		}
	}

	r.metrics.RecordRoutingDecision(string(DecisionDispatch))
	return Decision{
		Kind:  DecisionDispatch,
		Agent: target,
		Task: types.AgentTask{
			ConversationID: id,
			TaskID:         r.newTaskID(),
			Capability:     label,
			Payload:        types.TaskPayload{Text: text},
			Origin:         types.OriginRouter,
		},
	}
}

func (r *Router) terminate(id types.ConversationID, cause *types.Error) Decision {
	r.metrics.RecordRoutingDecision(string(DecisionTerminate))
	return Decision{Kind: DecisionTerminate, Answer: UnservableAnswer(id, cause)}
}

// UnservableAnswer builds the terminal answer for a request nobody could serve.
func UnservableAnswer(id types.ConversationID, cause *types.Error) types.FinalAnswer {
	answer := types.FinalAnswer{
		ConversationID: id,
		Text:           UnservableText,
		Outcome:        types.OutcomeUnservable,
	}
	if cause != nil {
		if data, err := json.Marshal(map[string]any{"error": cause}); err == nil {
			answer.Data = data
		}
	}
	return answer
}
