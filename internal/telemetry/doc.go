// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化，为 TripFlow 的路由、
// 协调与 Agent 派发 span 提供 TracerProvider 和 MeterProvider。
// 遥测关闭时保留全局 noop 实现，不连接任何外部服务。
package telemetry
