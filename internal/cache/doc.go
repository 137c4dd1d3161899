// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的缓存管理能力，供可选的外部移交计数存储使用。

# 概述

Manager 封装 go-redis 客户端，负责连接生命周期管理，包括初始化、
健康检查与优雅关闭。所有键自动加上 KeyPrefix，多个部署可共享同一实例。

# 核心类型

  - Manager：提供 Get/Set/Incr/Delete/Exists 基础操作与 GetJSON/SetJSON。
  - Config：地址、密码、键前缀、连接池大小、默认 TTL 与健康检查间隔。
  - Stats：从 INFO 与 DBSIZE 解析的命中、内存与连接统计。

# 主要能力

  - 原子计数：Incr 通过 Lua 脚本执行 INCR，首次自增时以 PEXPIRE 设置毫秒级过期。
  - 健康检查：后台定时 Ping，Close 时停止。
  - 错误语义：ErrCacheMiss 与 ErrClosed 哨兵错误。
*/
package cache
