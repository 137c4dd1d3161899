package intent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🔌 理解服务熔断器
// =============================================================================

// BreakerState 熔断器状态
type BreakerState int

const (
	// BreakerClosed 关闭状态（正常调用预测服务）
	BreakerClosed BreakerState = iota
	// BreakerOpen 打开状态（直接降级为 general）
	BreakerOpen
	// BreakerHalfOpen 半开状态（试探性恢复）
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// Threshold 连续失败次数阈值
	Threshold int `yaml:"threshold" env:"THRESHOLD"`
	// ResetTimeout Open -> HalfOpen 的等待时间
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	// HalfOpenMaxCalls 半开状态下允许的试探请求数
	HalfOpenMaxCalls int `yaml:"half_open_max_calls" env:"HALF_OPEN_MAX_CALLS"`
}

// DefaultBreakerConfig 返回默认熔断配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:        5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("intent service circuit open")
	ErrTooManyCallsInHalfOpen = errors.New("intent service half-open probe in flight")
)

// breaker 保护外部理解服务，失败达到阈值后短路
type breaker struct {
	cfg    BreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu                sync.Mutex
	state             BreakerState
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int
	onStateChange     func(from, to BreakerState)
}

func newBreaker(cfg BreakerConfig, logger *zap.Logger) *breaker {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return &breaker{cfg: cfg, logger: logger, now: time.Now}
}

// call 执行调用：状态检查 → 调用 → 记录结果
func (b *breaker) call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterCall(err == nil)
	return err
}

func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailureTime) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.setState(BreakerHalfOpen)
		b.halfOpenCallCount = 1
		return nil
	case BreakerHalfOpen:
		if b.halfOpenCallCount >= b.cfg.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenCallCount++
		return nil
	default:
		return nil
	}
}

func (b *breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state == BreakerHalfOpen {
			b.logger.Info("intent service recovered")
		}
		b.failureCount = 0
		b.halfOpenCallCount = 0
		b.setState(BreakerClosed)
		return
	}

	b.failureCount++
	b.lastFailureTime = b.now()
	switch b.state {
	case BreakerClosed:
		if b.failureCount >= b.cfg.Threshold {
			b.logger.Warn("intent service circuit opened",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.cfg.Threshold),
			)
			b.setState(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.logger.Warn("intent service probe failed, reopening circuit")
		b.halfOpenCallCount = 0
		b.setState(BreakerOpen)
	}
}

// setState 需持有锁调用
func (b *breaker) setState(next BreakerState) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	if b.onStateChange != nil {
		b.onStateChange(prev, next)
	}
}

func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
