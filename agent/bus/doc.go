// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package bus 为每个能力 Agent 提供独立邮箱，并保证每次派发恰好得到一个结果。

# 概述

Bus 在构造时为每个 agent.ID 创建一个有界邮箱与令牌桶限速器，Start
后每个邮箱由固定数量的 worker 消费。Dispatch 把任务投递到目标邮箱并
在超时前等待结果；超时、会话断开、总线关闭均会合成对应的错误结果，
调用方不会永久阻塞。

# 语义

  - 未注册的 Agent 返回 UNKNOWN_CAPABILITY 结果。
  - 超时返回 AGENT_TIMEOUT 结果，迟到的真实结果被丢弃。
  - 调用方上下文取消返回 TRANSPORT_DISCONNECT 结果，Agent 仍在自身截止时间内运行完毕。
  - Agent panic 被恢复并转换为 AGENT_ERROR。
  - 结果中的会话 ID、任务 ID 与能力始终与任务一致。
*/
package bus
