// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package routing 把分类结果转换为路由决策。

# 概述

Router 持有只读的 Table（意图标签到 Agent 身份的映射）与无状态的
intent.Classifier。对每个 UserRequest，Route 产生且仅产生一个 Decision：

  - 单一能力标签：DecisionDispatch，携带一个 origin=router 的 AgentTask；
  - 多个标签或恰好 {multi}：DecisionDelegate，交由协调器处理完整标签集；
  - 无法路由：DecisionAnswer，直接携带 FinalAnswer。

Router 从不等待 Agent 结果。

# 移交

HandleHandoff 先为会话的移交计数加一。超过上限（默认 3）时返回
unservable 的 FinalAnswer（HANDOFF_LOOP_EXCEEDED）；否则对剩余文本
重新分类，剔除发起移交的能力后再次决策。计数默认保存在内存中，
也可通过 RedisCounterStore 放到 Redis。
*/
package routing
