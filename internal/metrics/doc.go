// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的路由引擎指标采集能力，覆盖
HTTP、意图分类、路由与移交、Agent 任务、协调会话与外部存储。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离，Record 方法对 nil
Collector 安全，组件可在未启用指标时直接传入 nil。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 分类指标：分类次数（ok/degraded）、分类耗时、理解服务熔断状态。
  - 路由指标：决策类型计数（dispatch/delegate/terminate）、移交计数。
  - Agent 指标：按 capability/origin/status 的任务计数与耗时、邮箱积压。
  - 会话指标：协调会话结果与耗时、对话轮次终态、活跃会话数、连接事件。
  - 存储指标：Redis / 数据库操作结果计数。
*/
package metrics
