// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 TripFlow 路由与协调引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 intent、routing、
coordination、conversation、proxy 等上层模块提供统一的消息契约。

# 核心类型

  - IntentLabel / LabelSet：封闭意图标签集合与有序去重标签集
  - Message：消息标签联合（UserRequest、AgentTask、AgentResult、
    HandoffRequest、FinalAnswer）
  - Section / Outcome：FinalAnswer 的结构化分段与终态
  - Error / ErrorCode：结构化错误体系（分类、超时、Agent 错误、移交循环、断连）
*/
package types
