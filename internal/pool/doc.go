// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package pool 提供有界的后台任务 worker 池。

# 概述

WorkerPool 以固定容量的队列接收任务，按需启动 worker，空闲超时后
回收多余 worker。队列满时 Submit 立即返回 ErrPoolFull，调用方自行
决定丢弃或降级，不会阻塞请求路径。

# 核心类型

  - WorkerPool：任务队列、worker 生命周期与统计
  - Task：func(ctx) error 形式的任务
  - Stats：提交、完成、失败、拒绝计数

# 主要能力

  - 非阻塞提交：Submit 在队列满或已关闭时返回错误
  - panic 隔离：任务 panic 计为失败并交给 PanicHandler
  - 排空关闭：Close(ctx) 停止接收并等待队列清空，ctx 到期即返回
*/
package pool
