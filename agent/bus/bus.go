package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/BaSui01/tripflow/agent/bus"

var (
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("agent bus closed")
	// ErrUnknownAgent is the cause carried by UNKNOWN_CAPABILITY results.
	ErrUnknownAgent = errors.New("unknown agent")
)

// Config 总线配置
type Config struct {
	// MailboxSize 每个 Agent 邮箱容量
	MailboxSize int `yaml:"mailbox_size" env:"MAILBOX_SIZE" json:"mailbox_size"`
	// Workers 每个 Agent 的并发处理数
	Workers int `yaml:"workers" env:"WORKERS" json:"workers"`
	// RateLimitRPS 每个 Agent 的处理速率上限，0 表示不限速
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" json:"rate_limit_rps"`
	// RateLimitBurst 突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" json:"rate_limit_burst"`
	// TaskTimeout Dispatch 未指定超时时使用
	TaskTimeout time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT" json:"task_timeout"`
}

// DefaultConfig 返回默认总线配置
func DefaultConfig() Config {
	return Config{
		MailboxSize:    64,
		Workers:        4,
		RateLimitRPS:   0,
		RateLimitBurst: 10,
		TaskTimeout:    30 * time.Second,
	}
}

type envelope struct {
	ctx    context.Context
	cancel context.CancelFunc
	task   types.AgentTask
	reply  chan types.AgentResult
}

type mailbox struct {
	id      agent.ID
	agent   agent.Agent
	queue   chan envelope
	limiter *rate.Limiter
}

// Bus delivers tasks to agent mailboxes and returns exactly one result per
// Dispatch. The agent population is fixed at construction.
type Bus struct {
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	mailboxes map[agent.ID]*mailbox

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New builds a bus for the given agents. Workers start with Start.
func New(agents agent.Set, config Config, logger *zap.Logger, collector *metrics.Collector) (*Bus, error) {
	if err := agents.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.MailboxSize <= 0 {
		config.MailboxSize = def.MailboxSize
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.RateLimitBurst <= 0 {
		config.RateLimitBurst = def.RateLimitBurst
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = def.TaskTimeout
	}

	b := &Bus{
		config:    config,
		logger:    logger.With(zap.String("component", "agent_bus")),
		metrics:   collector,
		tracer:    otel.Tracer(instrumentationName),
		mailboxes: make(map[agent.ID]*mailbox, len(agents)),
		done:      make(chan struct{}),
	}
	for id, a := range agents {
		limit := rate.Inf
		if config.RateLimitRPS > 0 {
			limit = rate.Limit(config.RateLimitRPS)
		}
		b.mailboxes[id] = &mailbox{
			id:      id,
			agent:   a,
			queue:   make(chan envelope, config.MailboxSize),
			limiter: rate.NewLimiter(limit, config.RateLimitBurst),
		}
	}
	return b, nil
}

// Start launches the mailbox workers.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}
	b.started = true
	for _, mb := range b.mailboxes {
		for i := 0; i < b.config.Workers; i++ {
			b.wg.Add(1)
			go b.worker(mb)
		}
	}
	b.logger.Info("agent bus started",
		zap.Int("agents", len(b.mailboxes)),
		zap.Int("workers_per_agent", b.config.Workers))
	return nil
}

// Close stops the workers and waits for in-flight handlers to return.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("agent bus stopped")
	return nil
}

// Has reports whether id has a mailbox.
func (b *Bus) Has(id agent.ID) bool {
	_, ok := b.mailboxes[id]
	return ok
}

// Agents lists registered identities in stable order.
func (b *Bus) Agents() []agent.ID {
	ids := make([]agent.ID, 0, len(b.mailboxes))
	for id := range b.mailboxes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Capability returns the label served by id.
func (b *Bus) Capability(id agent.ID) (types.IntentLabel, bool) {
	mb, ok := b.mailboxes[id]
	if !ok {
		return "", false
	}
	return mb.agent.Capability(), true
}

// Dispatch sends task to agent id and waits at most timeout for its result.
// It never returns without a result: an elapsed timeout yields AGENT_TIMEOUT,
// a cancelled ctx yields TRANSPORT_DISCONNECT. The agent keeps running on its
// own deadline after ctx is cancelled; its late result is discarded.
func (b *Bus) Dispatch(ctx context.Context, id agent.ID, task types.AgentTask, timeout time.Duration) types.AgentResult {
	if timeout <= 0 {
		timeout = b.config.TaskTimeout
	}
	start := time.Now()

	ctx, span := b.tracer.Start(ctx, "agent.dispatch",
		trace.WithAttributes(
			attribute.String("agent.id", string(id)),
			attribute.String("agent.capability", string(task.Capability)),
			attribute.String("task.id", task.TaskID),
			attribute.String("task.origin", string(task.Origin)),
			attribute.String("conversation.id", string(task.ConversationID)),
		))
	defer span.End()

	res := b.dispatch(ctx, id, task, timeout)

	span.SetAttributes(attribute.String("result.status", string(res.Status)))
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Message)
	}
	b.metrics.RecordAgentTask(string(task.Capability), string(task.Origin), string(res.Status), time.Since(start))
	return res
}

func (b *Bus) dispatch(ctx context.Context, id agent.ID, task types.AgentTask, timeout time.Duration) types.AgentResult {
	mb, ok := b.mailboxes[id]
	if !ok {
		return types.ErrorResult(task, types.NewError(types.ErrUnknownCapability,
			fmt.Sprintf("no agent registered as %s", id)).WithCause(ErrUnknownAgent))
	}

	// 任务上下文与会话上下文解耦，仅受自身超时约束
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	env := envelope{ctx: taskCtx, cancel: cancel, task: task, reply: make(chan types.AgentResult, 1)}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case mb.queue <- env:
		b.metrics.SetMailboxDepth(string(id), len(mb.queue))
	case <-timer.C:
		cancel()
		b.logger.Warn("agent mailbox full until deadline",
			zap.String("agent", string(id)),
			zap.String("task_id", task.TaskID))
		return types.TimeoutResult(task, timeout)
	case <-ctx.Done():
		cancel()
		return disconnected(task, ctx.Err())
	case <-b.done:
		cancel()
		return types.ErrorResult(task, types.NewError(types.ErrServiceUnavailable, "agent bus closed"))
	}

	select {
	case res := <-env.reply:
		return res
	case <-timer.C:
		cancel()
		b.logger.Warn("agent task timed out",
			zap.String("agent", string(id)),
			zap.String("task_id", task.TaskID),
			zap.Duration("timeout", timeout))
		return types.TimeoutResult(task, timeout)
	case <-ctx.Done():
		return disconnected(task, ctx.Err())
	case <-b.done:
		return types.ErrorResult(task, types.NewError(types.ErrServiceUnavailable, "agent bus closed"))
	}
}

func disconnected(task types.AgentTask, cause error) types.AgentResult {
	return types.ErrorResult(task, types.NewError(types.ErrTransportDisconnect,
		"conversation closed before the agent answered").WithCause(cause))
}

func (b *Bus) worker(mb *mailbox) {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case env := <-mb.queue:
			b.metrics.SetMailboxDepth(string(mb.id), len(mb.queue))
			b.process(mb, env)
		}
	}
}

func (b *Bus) process(mb *mailbox, env envelope) {
	defer env.cancel()
	if env.ctx.Err() != nil {
		// caller already gave up
		return
	}
	if err := mb.limiter.Wait(env.ctx); err != nil {
		env.reply <- types.ErrorResult(env.task, types.NewError(types.ErrAgentError,
			"agent rate limit wait aborted").WithCause(err).WithRetryable(true))
		return
	}
	env.reply <- b.invoke(mb, env)
}

// invoke runs the agent and normalizes whatever it produced into a result
// that belongs to the task.
func (b *Bus) invoke(mb *mailbox, env envelope) (res types.AgentResult) {
	task := env.task
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("agent panicked",
				zap.String("agent", string(mb.id)),
				zap.String("task_id", task.TaskID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = types.ErrorResult(task, types.NewError(types.ErrAgentError,
				fmt.Sprintf("%s agent crashed", task.Capability)))
		}
	}()

	out, err := mb.agent.Handle(env.ctx, task)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.ErrorResult(task, types.NewError(types.ErrAgentTimeout,
				fmt.Sprintf("%s agent ran out of time", task.Capability)).WithCause(err))
		}
		var typed *types.Error
		if errors.As(err, &typed) {
			return types.ErrorResult(task, typed)
		}
		return types.ErrorResult(task, types.NewError(types.ErrAgentError, err.Error()).WithCause(err))
	}

	switch out.Status {
	case types.StatusOK, types.StatusHandoff, types.StatusError:
	default:
		return types.ErrorResult(task, types.NewError(types.ErrAgentError,
			fmt.Sprintf("%s agent returned unknown status %q", task.Capability, out.Status)))
	}
	out.ConversationID = task.ConversationID
	out.TaskID = task.TaskID
	out.Capability = task.Capability
	if out.Status == types.StatusError && out.Err == nil {
		return types.ErrorResult(task, types.NewError(types.ErrAgentError, out.Reason))
	}
	if out.Status == types.StatusHandoff && out.RemainingText == "" {
		out.RemainingText = task.Payload.Text
	}
	return out
}
