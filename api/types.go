package api

import (
	"time"

	"github.com/BaSui01/tripflow/types"
)

// =============================================================================
// 路由能力
// =============================================================================

// CapabilityInfo 路由表中的一行
// @Description 能力标签与负责的 Agent
type CapabilityInfo struct {
	// 能力标签
	Label types.IntentLabel `json:"label" example:"car"`
	// 负责的 Agent
	Agent string `json:"agent" example:"car_rental"`
	// 是否属于多能力行程计划
	InTripPlan bool `json:"in_trip_plan"`
}

// CapabilitiesResponse 路由表
type CapabilitiesResponse struct {
	Capabilities []CapabilityInfo   `json:"capabilities"`
	TripPlan     []types.IntentLabel `json:"trip_plan"`
	HandoffLimit int                 `json:"handoff_limit"`
}

// =============================================================================
// 会话历史
// =============================================================================

// HistorySource 历史数据来源
type HistorySource string

const (
	// HistoryLive 来自仍在运行的会话
	HistoryLive HistorySource = "live"
	// HistoryStored 来自转录表
	HistoryStored HistorySource = "stored"
)

// HistoryEntry 一条请求或答案
type HistoryEntry struct {
	Role    string        `json:"role" example:"user"`
	Text    string        `json:"text"`
	Outcome types.Outcome `json:"outcome,omitempty" example:"completed"`
	At      time.Time     `json:"at"`
}

// ConversationHistoryResponse 会话历史
type ConversationHistoryResponse struct {
	ConversationID types.ConversationID `json:"conversation_id"`
	Source         HistorySource        `json:"source"`
	Entries        []HistoryEntry       `json:"entries"`
}

// ConversationsResponse 活跃会话概况
type ConversationsResponse struct {
	Active int `json:"active"`
}

// OutcomeStatsResponse 已持久化轮次按结果统计
type OutcomeStatsResponse struct {
	Outcomes map[types.Outcome]int64 `json:"outcomes"`
	Total    int64                   `json:"total"`
}

// =============================================================================
// 运维
// =============================================================================

// LogLevelRequest 调整日志级别
type LogLevelRequest struct {
	Level string `json:"level" example:"debug"`
}

// LogLevelResponse 当前日志级别
type LogLevelResponse struct {
	Level string `json:"level" example:"info"`
}

// ReloadResponse 配置重载结果
type ReloadResponse struct {
	Version int64    `json:"version"`
	Changes []string `json:"changes"`
}
