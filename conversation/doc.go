// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package conversation 为每个活跃会话运行一个 worker，驱动单轮状态机。

# 概述

Manager 维护会话注册表。每个 Conversation 拥有一个收件箱通道与一个
goroutine，按到达顺序串行处理 UserRequest，从而保证因果顺序；不同会话
完全并行，仅共享只读的路由表与无状态分类器。

# 单轮状态机

	Routing → Dispatched → Completed
	                     → HandedOff → Routing（受移交上限约束）
	                     → TimedOut
	Routing → Unservable

Completed、TimedOut、Unservable 为终态，各产生恰好一个 FinalAnswer。
会话上下文被取消时进入 Cancelled，不产生答案，在途 Agent 结果被丢弃。

# 历史与转录

每个会话保留有界的请求/答案历史（默认 100 条），可选的 Recorder 在每轮
结束后持久化转录，失败只记录日志。
*/
package conversation
