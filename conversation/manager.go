package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/types"
	"go.uber.org/zap"
)

// Config 会话配置
type Config struct {
	// Greeting 会话建立时发送的问候，空表示不发送
	Greeting string `yaml:"greeting" env:"GREETING" json:"greeting"`
	// InboxSize 每个会话收件箱容量
	InboxSize int `yaml:"inbox_size" env:"INBOX_SIZE" json:"inbox_size"`
	// HistorySize 每个会话保留的历史条数
	HistorySize int `yaml:"history_size" env:"HISTORY_SIZE" json:"history_size"`
	// AgentTimeout 单 Agent 派发的等待上限
	AgentTimeout time.Duration `yaml:"agent_timeout" env:"AGENT_TIMEOUT" json:"agent_timeout"`
}

// DefaultConfig 返回默认会话配置
func DefaultConfig() Config {
	return Config{
		InboxSize:    16,
		HistorySize:  100,
		AgentTimeout: 30 * time.Second,
	}
}

// Manager owns the live conversations.
type Manager struct {
	router      Router
	coordinator Coordinator
	dispatcher  Dispatcher
	recorder    Recorder
	config      Config
	logger      *zap.Logger
	metrics     *metrics.Collector
	now         func() time.Time

	mu    sync.RWMutex
	convs map[types.ConversationID]*Conversation
	wg    sync.WaitGroup
}

// NewManager wires the conversation layer. recorder may be nil.
func NewManager(router Router, coordinator Coordinator, dispatcher Dispatcher, recorder Recorder, config Config, logger *zap.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.InboxSize <= 0 {
		config.InboxSize = def.InboxSize
	}
	if config.HistorySize <= 0 {
		config.HistorySize = def.HistorySize
	}
	if config.AgentTimeout <= 0 {
		config.AgentTimeout = def.AgentTimeout
	}
	return &Manager{
		router:      router,
		coordinator: coordinator,
		dispatcher:  dispatcher,
		recorder:    recorder,
		config:      config,
		logger:      logger.With(zap.String("component", "conversation")),
		metrics:     collector,
		now:         time.Now,
		convs:       make(map[types.ConversationID]*Conversation),
	}
}

// Open starts the worker for id. The conversation ends when ctx is cancelled
// or Close is called.
func (m *Manager) Open(ctx context.Context, id types.ConversationID) (*Conversation, error) {
	if id == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty conversation id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[id]; ok {
		return nil, ErrExists
	}

	cctx, cancel := context.WithCancel(types.WithConversationID(ctx, id))
	c := &Conversation{
		id:      id,
		m:       m,
		logger:  m.logger.With(zap.String("conversation_id", string(id))),
		inbox:   make(chan types.UserRequest, m.config.InboxSize),
		answers: make(chan types.FinalAnswer, 1),
		history: NewHistory(m.config.HistorySize),
		ctx:     cctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.convs[id] = c
	m.metrics.ConversationOpened()
	c.logger.Info("conversation opened")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.run()
	}()
	return c, nil
}

// Get returns the live conversation for id.
func (m *Manager) Get(id types.ConversationID) (*Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[id]
	return c, ok
}

// Len returns the number of live conversations.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.convs)
}

func (m *Manager) remove(id types.ConversationID) {
	m.mu.Lock()
	c, ok := m.convs[id]
	if ok {
		delete(m.convs, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	c.cancel()
	m.router.ResetHandoffs(context.Background(), id)
	m.metrics.ConversationClosed()
	c.logger.Info("conversation closed")
}

// Shutdown cancels every conversation and waits for the workers to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, c := range m.convs {
		c.cancel()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
