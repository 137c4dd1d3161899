// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 TripFlow 服务端程序入口。

# 概述

cmd/tripflow 组装意图分类、路由、Agent 总线、协调器与会话管理，
通过 /chat WebSocket 接收用户请求，并提供管理 API、健康检查、
Prometheus 指标和数据库迁移子命令。

# 核心类型

  - Server：组件装配与生命周期，HTTP 与 Metrics 双端口
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、migrate、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger、Metrics、CORS、RateLimiter、APIKeyAuth、JWTAuth
  - 配置热重载：log.level 即时生效，其余字段记录为需要重启
  - 可选依赖：Redis 保存移交计数，数据库保存对话记录，
    不可用时降级并记录日志
  - 优雅关闭：停止接入 → 排空会话 → 关闭总线 → 释放存储 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
