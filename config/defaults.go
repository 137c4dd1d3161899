// =============================================================================
// 📦 TripFlow 默认配置
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/types"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Routing:   DefaultRoutingConfig(),
		Intent:    DefaultIntentConfig(),
		Agents:    DefaultAgentsConfig(),
		Proxy:     DefaultProxyConfig(),
		Auth:      AuthConfig{},
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultRoutingConfig 返回默认路由配置
func DefaultRoutingConfig() RoutingConfig {
	plan := types.DefaultTripPlan()
	names := make([]string, len(plan))
	for i, l := range plan {
		names[i] = l.String()
	}
	return RoutingConfig{
		HandoffLimit:    3,
		ClassifyTimeout: 10 * time.Second,
		AgentTimeout:    30 * time.Second,
		SessionTimeout:  2 * time.Minute,
		MaxInFlight:     5,
		TripPlan:        names,
	}
}

// DefaultIntentConfig 返回默认意图分类配置
func DefaultIntentConfig() IntentConfig {
	return IntentConfig{
		Provider:            "rules",
		Model:               "gpt-4o-mini",
		Timeout:             5 * time.Second,
		CacheTTL:            5 * time.Minute,
		MinConfidence:       0.3,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// DefaultAgentsConfig 返回默认 Agent 配置
func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{
		MailboxSize:    64,
		Workers:        4,
		RateLimitBurst: 10,
		DefaultCity:    "Paris",
	}
}

// DefaultProxyConfig 返回默认代理配置
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		Greeting:     agent.GreetingText,
		AnswerFormat: "text",
		HistorySize:  100,
		InboxSize:    16,
		ReadLimit:    32 << 10,
		WriteTimeout: 10 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "tripflow:",
		HandoffTTL:   time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "tripflow",
		Name:            "tripflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		WriteWorkers:    2,
		WriteQueueSize:  256,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "tripflow",
		SampleRate:   0.1,
	}
}
