// =============================================================================
// 📦 TripFlow 配置结构
// =============================================================================
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/tripflow/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 TripFlow 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER" json:"server"`

	// Routing 路由、移交与协调配置
	Routing RoutingConfig `yaml:"routing" env:"ROUTING" json:"routing"`

	// Intent 意图分类配置
	Intent IntentConfig `yaml:"intent" env:"INTENT" json:"intent"`

	// Agents 能力 Agent 邮箱与模拟配置
	Agents AgentsConfig `yaml:"agents" env:"AGENTS" json:"agents"`

	// Proxy WebSocket 用户代理配置
	Proxy ProxyConfig `yaml:"proxy" env:"PROXY" json:"proxy"`

	// Auth 认证配置
	Auth AuthConfig `yaml:"auth" env:"AUTH" json:"auth"`

	// Redis 外部计数与缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS" json:"redis"`

	// Database 对话记录持久化配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE" json:"database"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG" json:"log"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY" json:"telemetry"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT" json:"http_port"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT" json:"metrics_port"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" json:"read_timeout"`
	// 写入超时（WebSocket 连接不受此限制）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" json:"write_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" json:"shutdown_timeout"`
	// 每 IP 每秒请求数，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" json:"rate_limit_rps"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" json:"rate_limit_burst"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" json:"cors_allowed_origins"`
	// TLS 证书与私钥路径，均设置时启用 HTTPS/WSS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE" json:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE" json:"tls_key_file"`
}

// RoutingConfig 路由配置
type RoutingConfig struct {
	// 每轮最多移交次数
	HandoffLimit int `yaml:"handoff_limit" env:"HANDOFF_LIMIT" json:"handoff_limit"`
	// 分类超时
	ClassifyTimeout time.Duration `yaml:"classify_timeout" env:"CLASSIFY_TIMEOUT" json:"classify_timeout"`
	// 单 Agent 等待上限
	AgentTimeout time.Duration `yaml:"agent_timeout" env:"AGENT_TIMEOUT" json:"agent_timeout"`
	// 协调会话整体超时
	SessionTimeout time.Duration `yaml:"session_timeout" env:"SESSION_TIMEOUT" json:"session_timeout"`
	// 协调会话并发派发上限
	MaxInFlight int `yaml:"max_in_flight" env:"MAX_IN_FLIGHT" json:"max_in_flight"`
	// {multi} 展开成的能力序列
	TripPlan []string `yaml:"trip_plan" env:"TRIP_PLAN" json:"trip_plan"`
}

// TripPlanLabels 解析 TripPlan
func (c RoutingConfig) TripPlanLabels() ([]types.IntentLabel, error) {
	out := make([]types.IntentLabel, 0, len(c.TripPlan))
	for _, raw := range c.TripPlan {
		label, ok := types.ParseLabel(raw)
		if !ok || !label.IsCapability() {
			return nil, fmt.Errorf("trip_plan: %q is not a capability", raw)
		}
		// general 是兜底能力，不参与行程规划
		if label == types.LabelGeneral {
			return nil, fmt.Errorf("trip_plan: %q cannot be part of a trip plan", raw)
		}
		out = append(out, label)
	}
	return out, nil
}

// IntentConfig 意图分类配置
type IntentConfig struct {
	// 分类器: rules 或 llm
	Provider string `yaml:"provider" env:"PROVIDER" json:"provider"`
	// LLM 服务地址
	BaseURL string `yaml:"base_url" env:"BASE_URL" json:"base_url"`
	// LLM API Key
	APIKey string `yaml:"api_key" env:"API_KEY" json:"api_key"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL" json:"model"`
	// 单次预测超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" json:"timeout"`
	// 分类结果缓存时间，0 表示不缓存
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" json:"cache_ttl"`
	// 低于该置信度的预测被丢弃
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE" json:"min_confidence"`
	// 连续失败多少次后熔断
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD" json:"breaker_threshold"`
	// 熔断恢复等待时间
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT" json:"breaker_reset_timeout"`
}

// AgentsConfig 能力 Agent 配置
type AgentsConfig struct {
	// 每个 Agent 邮箱容量
	MailboxSize int `yaml:"mailbox_size" env:"MAILBOX_SIZE" json:"mailbox_size"`
	// 每个 Agent 的 worker 数
	Workers int `yaml:"workers" env:"WORKERS" json:"workers"`
	// 每个 Agent 每秒任务数，0 表示不限
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" json:"rate_limit_rps"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" json:"rate_limit_burst"`
	// 模拟随机种子，0 表示按时间
	Seed int64 `yaml:"seed" env:"SEED" json:"seed"`
	// 模拟下游耗时
	Latency time.Duration `yaml:"latency" env:"LATENCY" json:"latency"`
	// 无法识别城市时的默认城市
	DefaultCity string `yaml:"default_city" env:"DEFAULT_CITY" json:"default_city"`
}

// ProxyConfig 用户代理配置
type ProxyConfig struct {
	// 连接建立时的问候，空表示不发送
	Greeting string `yaml:"greeting" env:"GREETING" json:"greeting"`
	// 回答格式: text 或 json
	AnswerFormat string `yaml:"answer_format" env:"ANSWER_FORMAT" json:"answer_format"`
	// 每个会话保留的历史条数
	HistorySize int `yaml:"history_size" env:"HISTORY_SIZE" json:"history_size"`
	// 每个会话收件箱容量
	InboxSize int `yaml:"inbox_size" env:"INBOX_SIZE" json:"inbox_size"`
	// 单帧最大字节数
	ReadLimit int64 `yaml:"read_limit" env:"READ_LIMIT" json:"read_limit"`
	// 写帧超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" json:"write_timeout"`
	// 允许的跨域 Origin
	OriginPatterns []string `yaml:"origin_patterns" env:"ORIGIN_PATTERNS" json:"origin_patterns"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	// 允许的 API Key，空表示不启用 API Key 认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS" json:"api_keys"`
	// 允许通过 ?api_key= 传递（WebSocket 客户端无法设置请求头时使用）
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY" json:"allow_query_api_key"`
	// JWT 配置
	JWT JWTConfig `yaml:"jwt" env:"JWT" json:"jwt"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	// HMAC 密钥，空表示不启用 JWT 认证
	Secret string `yaml:"secret" env:"SECRET" json:"secret"`
	// 签发者
	Issuer string `yaml:"issuer" env:"ISSUER" json:"issuer"`
	// 受众
	Audience string `yaml:"audience" env:"AUDIENCE" json:"audience"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用；关闭时移交计数保存在内存
	Enabled bool `yaml:"enabled" env:"ENABLED" json:"enabled"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR" json:"addr"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD" json:"password"`
	// 数据库编号
	DB int `yaml:"db" env:"DB" json:"db"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE" json:"pool_size"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS" json:"min_idle_conns"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX" json:"key_prefix"`
	// 移交计数过期时间
	HandoffTTL time.Duration `yaml:"handoff_ttl" env:"HANDOFF_TTL" json:"handoff_ttl"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否启用对话记录
	Enabled bool `yaml:"enabled" env:"ENABLED" json:"enabled"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER" json:"driver"`
	// 主机
	Host string `yaml:"host" env:"HOST" json:"host"`
	// 端口
	Port int `yaml:"port" env:"PORT" json:"port"`
	// 用户名
	User string `yaml:"user" env:"USER" json:"user"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD" json:"password"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME" json:"name"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE" json:"ssl_mode"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS" json:"max_open_conns"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS" json:"max_idle_conns"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME" json:"conn_max_lifetime"`
	// 启动时执行待处理的迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE" json:"auto_migrate"`
	// 后台写入对话记录的 worker 数
	WriteWorkers int `yaml:"write_workers" env:"WRITE_WORKERS" json:"write_workers"`
	// 等待写入的对话记录上限，满时丢弃并计数
	WriteQueueSize int `yaml:"write_queue_size" env:"WRITE_QUEUE_SIZE" json:"write_queue_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL" json:"level"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT" json:"format"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS" json:"output_paths"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER" json:"enable_caller"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE" json:"enable_stacktrace"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED" json:"enabled"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT" json:"otlp_endpoint"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" json:"service_name"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE" json:"sample_rate"`
}

// =============================================================================
// ✅ 验证
// =============================================================================

var (
	knownDrivers   = map[string]bool{"postgres": true, "mysql": true, "sqlite": true}
	knownProviders = map[string]bool{"rules": true, "llm": true}
	knownFormats   = map[string]bool{"text": true, "json": true}
	knownLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	validPort := func(p int) bool { return p > 0 && p <= 65535 }
	if !validPort(c.Server.HTTPPort) {
		errs = append(errs, "invalid HTTP port")
	}
	if !validPort(c.Server.MetricsPort) {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.HTTPPort == c.Server.MetricsPort {
		errs = append(errs, "http_port and metrics_port must differ")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "server rate_limit_rps must not be negative")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	if c.Routing.HandoffLimit < 0 {
		errs = append(errs, "handoff_limit must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"classify_timeout": c.Routing.ClassifyTimeout,
		"agent_timeout":    c.Routing.AgentTimeout,
		"session_timeout":  c.Routing.SessionTimeout,
	} {
		if d <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	if c.Routing.MaxInFlight <= 0 {
		errs = append(errs, "max_in_flight must be positive")
	}
	if _, err := c.Routing.TripPlanLabels(); err != nil {
		errs = append(errs, err.Error())
	}

	if !knownProviders[c.Intent.Provider] {
		errs = append(errs, fmt.Sprintf("unknown intent provider %q", c.Intent.Provider))
	}
	if c.Intent.Provider == "llm" && c.Intent.BaseURL == "" {
		errs = append(errs, "intent base_url is required for the llm provider")
	}

	if c.Agents.MailboxSize <= 0 || c.Agents.Workers <= 0 {
		errs = append(errs, "agents mailbox_size and workers must be positive")
	}

	if !knownFormats[c.Proxy.AnswerFormat] {
		errs = append(errs, fmt.Sprintf("unknown answer format %q", c.Proxy.AnswerFormat))
	}

	if c.Database.Enabled && !knownDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}

	if !knownLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// =============================================================================
// 🔒 脱敏视图
// =============================================================================

var sensitiveKeys = []string{"password", "api_key", "api_keys", "secret", "token"}

// Sanitized 返回隐藏敏感字段后的配置视图
func (c *Config) Sanitized() map[string]any {
	data, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	redact(result)
	return result
}

func redact(data map[string]any) {
	for key, value := range data {
		lower := strings.ToLower(key)
		for _, s := range sensitiveKeys {
			if lower != s {
				continue
			}
			switch v := value.(type) {
			case string:
				if v != "" {
					data[key] = "[REDACTED]"
				}
			case []any:
				if len(v) > 0 {
					data[key] = "[REDACTED]"
				}
			}
		}
		if nested, ok := value.(map[string]any); ok {
			redact(nested)
		}
	}
}
