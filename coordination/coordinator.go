package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/routing"
	"github.com/BaSui01/tripflow/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/BaSui01/tripflow/coordination"

// ErrCancelled is returned when the conversation is cancelled before the
// session resolves. No answer is produced.
var ErrCancelled = errors.New("coordination cancelled")

// Dispatcher delivers one task and always returns one result.
type Dispatcher interface {
	Dispatch(ctx context.Context, id agent.ID, task types.AgentTask, timeout time.Duration) types.AgentResult
}

// Config 协调配置
type Config struct {
	// AgentTimeout 单个能力的等待上限
	AgentTimeout time.Duration `yaml:"agent_timeout" env:"AGENT_TIMEOUT" json:"agent_timeout"`
	// SessionTimeout 整个会话的等待上限
	SessionTimeout time.Duration `yaml:"session_timeout" env:"SESSION_TIMEOUT" json:"session_timeout"`
	// MaxInFlight 同时在途的任务数上限
	MaxInFlight int `yaml:"max_in_flight" env:"MAX_IN_FLIGHT" json:"max_in_flight"`
	// TripPlan {multi} 展开成的能力序列
	TripPlan []types.IntentLabel `yaml:"trip_plan" json:"trip_plan"`
}

// DefaultConfig 返回默认协调配置
func DefaultConfig() Config {
	return Config{
		AgentTimeout:   30 * time.Second,
		SessionTimeout: 2 * time.Minute,
		MaxInFlight:    5,
		TripPlan:       types.DefaultTripPlan(),
	}
}

// Coordinator is the group-chat manager for multi-capability turns.
type Coordinator struct {
	dispatcher Dispatcher
	table      *routing.Table
	config     Config
	logger     *zap.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
	newTaskID  func() string
	now        func() time.Time
}

// NewCoordinator wires a coordinator over dispatcher.
func NewCoordinator(dispatcher Dispatcher, table *routing.Table, config Config, logger *zap.Logger, collector *metrics.Collector) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.AgentTimeout <= 0 {
		config.AgentTimeout = def.AgentTimeout
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = def.SessionTimeout
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = def.MaxInFlight
	}
	if len(config.TripPlan) == 0 {
		config.TripPlan = def.TripPlan
	}
	return &Coordinator{
		dispatcher: dispatcher,
		table:      table,
		config:     config,
		logger:     logger.With(zap.String("component", "coordinator")),
		metrics:    collector,
		tracer:     otel.Tracer(instrumentationName),
		newTaskID:  uuid.NewString,
		now:        time.Now,
	}
}

// Coordinate dispatches one task per capability in labels and compiles the
// results into one answer. It only fails with ErrCancelled.
func (c *Coordinator) Coordinate(ctx context.Context, id types.ConversationID, labels types.LabelSet) (types.FinalAnswer, error) {
	return c.CoordinateRequest(ctx, id, labels, "")
}

// CoordinateRequest is Coordinate with the user's text forwarded to every
// agent. An empty text sends a generic per-capability prompt.
func (c *Coordinator) CoordinateRequest(ctx context.Context, id types.ConversationID, labels types.LabelSet, text string) (types.FinalAnswer, error) {
	labels = labels.Expand(c.config.TripPlan)
	if labels.Empty() {
		labels = types.GeneralOnly()
	}

	ctx, span := c.tracer.Start(ctx, "coordination.session",
		trace.WithAttributes(
			attribute.String("conversation.id", string(id)),
			attribute.String("coordination.labels", labels.String())))
	defer span.End()

	logger := c.logger.With(zap.String("conversation_id", string(id)))
	session := NewSession(id, labels.Labels(), c.now())
	logger.Info("coordination session opened", zap.Stringer("labels", labels))

	sessCtx, cancel := context.WithTimeout(ctx, c.config.SessionTimeout)
	defer cancel()

	results := c.issue(sessCtx, id, session.Order(), text)

	expired := false
collect:
	for !session.Done() {
		select {
		case res, ok := <-results:
			if !ok {
				break collect
			}
			if !session.Record(res) {
				logger.Debug("ignoring replayed result",
					zap.String("capability", string(res.Capability)),
					zap.String("task_id", res.TaskID))
				continue
			}
			logger.Debug("capability resolved",
				zap.String("capability", string(res.Capability)),
				zap.String("status", string(res.Status)))
		case <-sessCtx.Done():
			if ctx.Err() != nil {
				break collect
			}
			logger.Warn("coordination session timed out",
				zap.Strings("pending", labelStrings(session.Pending())),
				zap.Duration("timeout", c.config.SessionTimeout))
			session.Expire(c.config.SessionTimeout)
			expired = true
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Info("coordination cancelled", zap.Error(err))
		c.metrics.RecordCoordination("cancelled", c.now().Sub(session.CreatedAt))
		span.SetAttributes(attribute.String("coordination.outcome", "cancelled"))
		return types.FinalAnswer{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	answer := session.Compile()
	c.metrics.RecordCoordination(string(answer.Outcome), c.now().Sub(session.CreatedAt))
	span.SetAttributes(
		attribute.String("coordination.outcome", string(answer.Outcome)),
		attribute.Bool("coordination.expired", expired))
	logger.Info("coordination session compiled", zap.String("outcome", string(answer.Outcome)))
	return answer, nil
}

// issue dispatches one task per label in order, at most MaxInFlight at a time,
// and streams the results. The channel is closed once every task resolved.
func (c *Coordinator) issue(ctx context.Context, id types.ConversationID, order []types.IntentLabel, text string) <-chan types.AgentResult {
	results := make(chan types.AgentResult, len(order))

	var g errgroup.Group
	g.SetLimit(c.config.MaxInFlight)

	go func() {
		defer close(results)
		for _, label := range order {
			prompt := text
			if prompt == "" {
				prompt = fmt.Sprintf("Provide %s details for the travel plan", label)
			}
			task := types.AgentTask{
				ConversationID: id,
				TaskID:         c.newTaskID(),
				Capability:     label,
				Payload:        types.TaskPayload{Text: prompt},
				Origin:         types.OriginCoordinator,
			}
			g.Go(func() error {
				results <- c.dispatch(ctx, task)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return results
}

func (c *Coordinator) dispatch(ctx context.Context, task types.AgentTask) types.AgentResult {
	if err := ctx.Err(); err != nil {
		return types.ErrorResult(task, types.NewError(types.ErrTransportDisconnect, "session closed before dispatch").WithCause(err))
	}
	target, ok := c.table.Lookup(task.Capability)
	if !ok {
		return types.ErrorResult(task, types.NewError(types.ErrUnknownCapability,
			fmt.Sprintf("no agent routed for %s", task.Capability)))
	}
	return c.dispatcher.Dispatch(ctx, target, task, c.config.AgentTimeout)
}

func labelStrings(labels []types.IntentLabel) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}
