// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 实现 TripFlow 运维与查询 HTTP 端点。

# 核心类型

  - HealthHandler       存活与就绪探针（/health, /ready），可注册 PingCheck
  - CapabilityHandler   路由表（/api/v1/capabilities）
  - ConversationHandler 活跃会话、会话历史与转录统计
  - AdminHandler        脱敏配置、配置重载、运行时日志级别
  - Response            统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter      捕获状态码，支持 websocket 劫持

types.ErrorCode 通过 mapErrorCodeToHTTPStatus 映射到 4xx/5xx。
websocket 对话端点位于 proxy 包。
*/
package handlers
