// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package config 提供 TripFlow 的配置管理功能。

# 加载顺序

Loader 按 默认值 → YAML 文件 → 环境变量（TRIPFLOW_ 前缀）→ 验证器 的顺序
构建 Config。环境变量名由各层 env 标签以下划线拼接，例如
TRIPFLOW_ROUTING_HANDOFF_LIMIT、TRIPFLOW_PROXY_ANSWER_FORMAT。

# 热重载

Reloader 轮询配置文件的修改时间，重新加载并验证后通知回调。
只有 log.level 这类运行时可调字段会被服务进程应用，其余字段需要重启。
*/
package config
