package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task is one unit of background work.
type Task func(ctx context.Context) error

// Config 池配置
type Config struct {
	// Name 出现在日志中
	Name string `yaml:"name" json:"name"`
	// MaxWorkers 并发 worker 上限
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
	// QueueSize 等待执行的任务上限
	QueueSize int `yaml:"queue_size" json:"queue_size"`
	// IdleTimeout 多余 worker 空闲多久后退出
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	// PanicHandler 任务 panic 时调用
	PanicHandler func(any) `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Name:        "workers",
		MaxWorkers:  4,
		QueueSize:   256,
		IdleTimeout: 30 * time.Second,
	}
}

// WorkerPool runs submitted tasks on a bounded set of goroutines.
type WorkerPool struct {
	config Config
	logger *zap.Logger

	// mu guards queue sends against close
	mu     sync.RWMutex
	closed bool
	queue  chan queued

	workers atomic.Int32
	active  atomic.Int32
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

type queued struct {
	ctx  context.Context
	task Task
}

// New creates a pool. Invalid sizes fall back to the defaults.
func New(config Config, logger *zap.Logger) *WorkerPool {
	def := DefaultConfig()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = def.MaxWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	if config.Name == "" {
		config.Name = def.Name
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		config: config,
		logger: logger.With(zap.String("component", "pool"), zap.String("pool", config.Name)),
		queue:  make(chan queued, config.QueueSize),
	}
}

// Submit queues task without blocking. ctx is passed to the task as is.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- queued{ctx: ctx, task: task}:
		p.submitted.Add(1)
		p.spawn()
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *WorkerPool) spawn() {
	for {
		n := p.workers.Load()
		if n >= int32(p.config.MaxWorkers) {
			return
		}
		if p.workers.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	idle := time.NewTimer(p.config.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case q, ok := <-p.queue:
			if !ok {
				return
			}
			p.active.Add(1)
			err := p.run(q)
			p.active.Add(-1)
			if err != nil {
				p.failed.Add(1)
				p.logger.Debug("task failed", zap.Error(err))
			} else {
				p.completed.Add(1)
			}
			idle.Reset(p.config.IdleTimeout)

		case <-idle.C:
			// 保留一个 worker 以免队列中的任务无人处理
			if p.workers.Load() > 1 {
				return
			}
			idle.Reset(p.config.IdleTimeout)
		}
	}
}

func (p *WorkerPool) run(q queued) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(r)
			}
			p.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return q.task(q.ctx)
}

// Close stops accepting tasks and waits for queued ones to finish, or for
// ctx to expire. It is safe to call more than once.
func (p *WorkerPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	// idle 回收可能让剩余任务无人处理
	if len(p.queue) > 0 {
		p.spawn()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("pool close timed out", zap.Int("queued", len(p.queue)))
		return ctx.Err()
	}
}

// Stats 池统计
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Stats returns a snapshot of the counters.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Workers:   int(p.workers.Load()),
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
