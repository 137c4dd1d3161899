// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package agent 定义能力 Agent 接口以及内置的模拟旅行 Agent。

# 概述

每个 Agent 只服务一种能力（flight、hotel、car、activities、destination、
general），接收 AgentTask 并返回恰好一个 AgentResult：完成（ok）、
移交（handoff）或错误。引擎只解释 status，payload 对引擎不透明。

# 内置 Agent

  - FlightAgent / HotelAgent / CarAgent：模拟预订，返回确认文本与结构化数据
  - ActivitiesAgent / DestinationAgent：模拟查询，返回活动列表与目的地信息
  - GeneralAgent：问候与兜底回复

由路由器直接派发的任务若要求完整行程（文本含 "travel plan"），预订类
Agent 会移交回路由器重新分类。
*/
package agent
