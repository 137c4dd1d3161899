// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package intent 将用户原始文本映射为封闭意图标签集合。

# 概述

分类器是纯函数：相同文本与配置总是得到相同的有序标签集，且永不为空。
空文本、无法识别的文本以及外部理解服务的任何失败都降级为 {general}。

# 实现

  - RuleClassifier：基于关键词的默认规则（按词边界、大小写不敏感匹配）
  - ServiceClassifier：包装外部 Predictor，含熔断、超时与 TTL 缓存
  - HTTPPredictor：OpenAI 兼容 /v1/chat/completions 的 Predictor 实现

整段行程类关键词（vacation、itinerary、trip 等）展开为行程计划
（默认 flight → hotel → car → activities → destination）。
*/
package intent
