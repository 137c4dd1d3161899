package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/agent/bus"
	"github.com/BaSui01/tripflow/api/handlers"
	"github.com/BaSui01/tripflow/config"
	"github.com/BaSui01/tripflow/conversation"
	"github.com/BaSui01/tripflow/coordination"
	"github.com/BaSui01/tripflow/intent"
	"github.com/BaSui01/tripflow/internal/cache"
	"github.com/BaSui01/tripflow/internal/database"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/internal/migration"
	"github.com/BaSui01/tripflow/internal/server"
	"github.com/BaSui01/tripflow/internal/telemetry"
	"github.com/BaSui01/tripflow/internal/tlsutil"
	"github.com/BaSui01/tripflow/internal/transcript"
	"github.com/BaSui01/tripflow/proxy"
	"github.com/BaSui01/tripflow/routing"
	"github.com/BaSui01/tripflow/types"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装 TripFlow 的全部组件并管理其生命周期
type Server struct {
	cfg    *config.Config
	loader *config.Loader
	level  zap.AtomicLevel
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector
	reloader  *config.Reloader

	// 可选的外部依赖，未启用或不可用时为 nil
	cache       *cache.Manager
	pool        *database.PoolManager
	transcripts *transcript.Store
	writer      *transcript.Writer

	bus           *bus.Bus
	router        *routing.Router
	conversations *conversation.Manager

	httpManager    *server.Manager
	metricsManager *server.Manager

	limiterCancel context.CancelFunc
}

// NewServer 创建服务器实例，loader 用于热重载
func NewServer(cfg *config.Config, loader *config.Loader, level zap.AtomicLevel, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		loader: loader,
		level:  level,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 按依赖顺序初始化组件并启动 HTTP 与 Metrics 服务
func (s *Server) Start() error {
	providers, err := telemetry.Init(s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	s.collector = metrics.NewCollector("tripflow", s.logger)

	if err := s.initReloader(); err != nil {
		return fmt.Errorf("failed to init config reloader: %w", err)
	}

	s.initCache()
	s.initDatabase()

	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
		zap.Bool("hot_reload_enabled", s.reloader != nil),
		zap.Bool("transcripts_enabled", s.transcripts != nil),
		zap.Bool("redis_enabled", s.cache != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initReloader 仅在指定了配置文件时启用热重载
func (s *Server) initReloader() error {
	if s.loader == nil || s.loader.ConfigPath() == "" {
		s.logger.Info("no config file, hot reload disabled")
		return nil
	}

	reloader, err := config.NewReloader(s.loader, s.cfg, config.WithReloaderLogger(s.logger))
	if err != nil {
		return err
	}
	reloader.OnReload(s.applyReload)
	if err := reloader.Start(context.Background()); err != nil {
		return err
	}
	s.reloader = reloader
	return nil
}

// applyReload 应用可热更新的字段，其余字段记录为需要重启
func (s *Server) applyReload(_, current *config.Config, changes []config.Change) {
	for _, c := range changes {
		switch c.Path {
		case "Log.Level":
			s.level.SetLevel(parseLevel(current.Log.Level))
			s.logger.Info("log level updated", zap.String("level", s.level.String()))
		default:
			s.logger.Warn("config change requires restart", zap.String("path", c.Path))
		}
	}
}

// initCache 连接 Redis，失败时移交计数退回内存
func (s *Server) initCache() {
	if !s.cfg.Redis.Enabled {
		return
	}
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = s.cfg.Redis.Addr
	cacheCfg.Password = s.cfg.Redis.Password
	cacheCfg.DB = s.cfg.Redis.DB
	cacheCfg.PoolSize = s.cfg.Redis.PoolSize
	cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
	if s.cfg.Redis.KeyPrefix != "" {
		cacheCfg.KeyPrefix = s.cfg.Redis.KeyPrefix
	}

	mgr, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn("Redis not available, handoff counters kept in memory", zap.Error(err))
		return
	}
	s.cache = mgr
}

// initDatabase 打开对话记录库，失败时禁用记录
func (s *Server) initDatabase() {
	if !s.cfg.Database.Enabled {
		return
	}

	if s.cfg.Database.AutoMigrate {
		if err := s.migrate(); err != nil {
			s.logger.Error("database auto-migrate failed, transcripts disabled", zap.Error(err))
			return
		}
	}

	pool, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		s.logger.Warn("database not available, transcripts disabled", zap.Error(err))
		return
	}
	s.pool = pool
	s.transcripts = transcript.NewStore(pool, s.logger, s.collector)
	s.writer = transcript.NewWriter(s.transcripts, transcript.WriterConfig{
		Workers:   s.cfg.Database.WriteWorkers,
		QueueSize: s.cfg.Database.WriteQueueSize,
	}, s.logger, s.collector)
}

func (s *Server) migrate() error {
	m, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := m.Up(ctx); err != nil {
		return err
	}
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// initPipeline 组装 分类器 → 路由 → Agent 总线 → 协调器 → 会话管理
func (s *Server) initPipeline() error {
	tripPlan, err := s.cfg.Routing.TripPlanLabels()
	if err != nil {
		return err
	}

	classifier, err := s.buildClassifier(tripPlan)
	if err != nil {
		return err
	}

	sim := agent.DefaultSimulationConfig()
	sim.Seed = s.cfg.Agents.Seed
	sim.Latency = s.cfg.Agents.Latency
	if s.cfg.Agents.DefaultCity != "" {
		sim.DefaultCity = s.cfg.Agents.DefaultCity
	}
	b, err := bus.New(agent.NewTravelAgents(sim, intent.IsGreeting, s.logger), bus.Config{
		MailboxSize:    s.cfg.Agents.MailboxSize,
		Workers:        s.cfg.Agents.Workers,
		RateLimitRPS:   s.cfg.Agents.RateLimitRPS,
		RateLimitBurst: s.cfg.Agents.RateLimitBurst,
		TaskTimeout:    s.cfg.Routing.AgentTimeout,
	}, s.logger, s.collector)
	if err != nil {
		return err
	}
	if err := b.Start(); err != nil {
		return err
	}
	s.bus = b

	table := routing.DefaultTable()
	if err := table.Validate(b.Has); err != nil {
		return err
	}

	var counters routing.CounterStore
	if s.cache != nil {
		counters = routing.NewRedisCounterStore(s.cache, s.cfg.Redis.HandoffTTL, s.collector)
	}
	s.router = routing.NewRouter(classifier, table, counters, routing.Config{
		HandoffLimit:    s.cfg.Routing.HandoffLimit,
		ClassifyTimeout: s.cfg.Routing.ClassifyTimeout,
		TripPlan:        tripPlan,
	}, s.logger, s.collector)

	coord := coordination.NewCoordinator(b, table, coordination.Config{
		AgentTimeout:   s.cfg.Routing.AgentTimeout,
		SessionTimeout: s.cfg.Routing.SessionTimeout,
		MaxInFlight:    s.cfg.Routing.MaxInFlight,
		TripPlan:       tripPlan,
	}, s.logger, s.collector)

	var recorder conversation.Recorder
	if s.writer != nil {
		recorder = s.writer
	}
	s.conversations = conversation.NewManager(s.router, coord, b, recorder, conversation.Config{
		Greeting:     s.cfg.Proxy.Greeting,
		InboxSize:    s.cfg.Proxy.InboxSize,
		HistorySize:  s.cfg.Proxy.HistorySize,
		AgentTimeout: s.cfg.Routing.AgentTimeout,
	}, s.logger, s.collector)
	return nil
}

// buildClassifier 按配置选择关键字分类器或外部 LLM 分类服务
func (s *Server) buildClassifier(tripPlan []types.IntentLabel) (intent.Classifier, error) {
	switch s.cfg.Intent.Provider {
	case "", "rules":
		rules := intent.DefaultRuleConfig()
		rules.TripPlan = tripPlan
		return intent.NewRuleClassifier(rules), nil
	case "llm":
		predictor := intent.NewHTTPPredictor(intent.HTTPPredictorConfig{
			BaseURL: s.cfg.Intent.BaseURL,
			APIKey:  s.cfg.Intent.APIKey,
			Model:   s.cfg.Intent.Model,
			Timeout: s.cfg.Intent.Timeout,
		}, tlsutil.SecureHTTPClient(s.cfg.Intent.Timeout), s.logger)

		svc := intent.DefaultServiceConfig()
		svc.Timeout = s.cfg.Intent.Timeout
		svc.CacheTTL = s.cfg.Intent.CacheTTL
		svc.MinConfidence = s.cfg.Intent.MinConfidence
		if s.cfg.Intent.BreakerThreshold > 0 {
			svc.Breaker.Threshold = s.cfg.Intent.BreakerThreshold
		}
		if s.cfg.Intent.BreakerResetTimeout > 0 {
			svc.Breaker.ResetTimeout = s.cfg.Intent.BreakerResetTimeout
		}
		svc.OnBreakerStateChange = func(from, to intent.BreakerState) {
			s.collector.SetClassifierBreakerState(int(to))
			s.logger.Warn("intent classifier breaker changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		}
		return intent.NewServiceClassifier(predictor, svc, s.logger), nil
	default:
		return nil, fmt.Errorf("unknown intent provider %q", s.cfg.Intent.Provider)
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// publicPaths 不需要认证
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

func (s *Server) startHTTPServer() error {
	tripPlan, _ := s.cfg.Routing.TripPlanLabels()

	chat := proxy.NewHandler(s.conversations, proxy.Config{
		AnswerFormat:   proxy.AnswerFormat(s.cfg.Proxy.AnswerFormat),
		ReadLimit:      s.cfg.Proxy.ReadLimit,
		WriteTimeout:   s.cfg.Proxy.WriteTimeout,
		OriginPatterns: s.cfg.Proxy.OriginPatterns,
	}, s.logger, s.collector)

	health := handlers.NewHealthHandler(s.logger)
	if s.pool != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", s.pool.Ping))
	}
	if s.cache != nil {
		health.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	var transcripts handlers.TranscriptReader
	if s.transcripts != nil {
		transcripts = s.transcripts
	}
	capabilities := handlers.NewCapabilityHandler(s.router.Table(), tripPlan, s.router.HandoffLimit())
	conversations := handlers.NewConversationHandler(s.conversations, transcripts, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	mux.Handle("GET /chat", chat)

	mux.HandleFunc("GET /api/v1/capabilities", capabilities.HandleList)
	mux.HandleFunc("GET /api/v1/conversations", conversations.HandleList)
	mux.HandleFunc("GET /api/v1/conversations/{id}/history", conversations.HandleHistory)
	mux.HandleFunc("GET /api/v1/transcripts/stats", conversations.HandleStats)

	var source handlers.ConfigSource = staticConfig{s.cfg}
	if s.reloader != nil {
		source = s.reloader
	}
	admin := handlers.NewAdminHandler(source, s.level, s.logger)
	mux.HandleFunc("GET /api/v1/config", admin.HandleConfig)
	mux.HandleFunc("POST /api/v1/config/reload", admin.HandleReload)
	mux.HandleFunc("GET /api/v1/log/level", admin.HandleLogLevel)
	mux.HandleFunc("PUT /api/v1/log/level", admin.HandleLogLevel)

	limiterCtx, limiterCancel := context.WithCancel(context.Background())
	s.limiterCancel = limiterCancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		Metrics(s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(limiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Auth.APIKeys, publicPaths, s.cfg.Auth.AllowQueryAPIKey, s.logger),
		JWTAuth(s.cfg.Auth.JWT, publicPaths, s.cfg.Auth.AllowQueryAPIKey, s.logger),
	)

	serverConfig := server.DefaultConfig()
	serverConfig.Name = "http"
	serverConfig.Addr = fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)
	serverConfig.ReadTimeout = s.cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = s.cfg.Server.WriteTimeout
	serverConfig.IdleTimeout = 2 * s.cfg.Server.ReadTimeout
	serverConfig.ShutdownTimeout = s.cfg.Server.ShutdownTimeout
	serverConfig.TLSCertFile = s.cfg.Server.TLSCertFile
	serverConfig.TLSKeyFile = s.cfg.Server.TLSKeyFile

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.DefaultConfig()
	serverConfig.Name = "metrics"
	serverConfig.Addr = fmt.Sprintf(":%d", s.cfg.Server.MetricsPort)
	serverConfig.ReadTimeout = s.cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = s.cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = s.cfg.Server.ShutdownTimeout

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// staticConfig 无配置文件时的只读配置源
type staticConfig struct{ cfg *config.Config }

func (c staticConfig) Current() *config.Config          { return c.cfg }
func (c staticConfig) Version() int                     { return 0 }
func (c staticConfig) Reload() ([]config.Change, error) { return nil, config.ErrNoConfigFile }

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞至收到信号或服务异常退出，然后优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) {
	var managers []*server.Manager
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m != nil {
			managers = append(managers, m)
		}
	}
	server.WaitForSignal(ctx, s.logger, managers...)
	s.Shutdown()
}

// Shutdown 先停止接入新连接，再排空会话，最后释放外部资源
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.limiterCancel != nil {
		s.limiterCancel()
	}
	if s.reloader != nil {
		s.reloader.Stop()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 会话必须先于总线关闭，在途轮次才能拿到 Agent 结果
	if s.conversations != nil {
		if err := s.conversations.Shutdown(ctx); err != nil {
			s.logger.Error("conversation shutdown error", zap.Error(err))
		}
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Error("agent bus shutdown error", zap.Error(err))
		}
	}

	if s.writer != nil {
		if err := s.writer.Close(ctx); err != nil {
			s.logger.Error("transcript writer flush error", zap.Error(err))
		}
	}

	var errs []error
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("storage shutdown error", zap.Error(err))
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
