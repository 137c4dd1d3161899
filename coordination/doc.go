// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package coordination 实现多能力请求的群聊管理器。

# 概述

Coordinator 为每次多 Agent 轮次创建一个 Session，按分类顺序向每个能力
派发一个 origin=coordinator 的任务。派发由 errgroup 以 MaxInFlight 为上限
并发执行，每个能力同一时刻只有一个任务在途；结果经通道回到唯一的收集
循环，Session 只在该循环中被读写，无需加锁。

# 结果处理

  - ok 结果写入 Collected，能力移出 Pending。
  - handoff、错误、超时均记为失败槽位，不在会话内重新路由。
  - 对已不在 Pending 中的能力重复记录是空操作。

全部能力落定后 Session 编译出唯一的 FinalAnswer：部分失败为 partial，
全部失败为 failed。调用方上下文取消时返回 ErrCancelled，不产生答案。
*/
package coordination
