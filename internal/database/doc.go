// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package database 打开对话转录数据库并管理 GORM 连接池。

Open 依据 database.driver 选择 postgres、mysql 或纯 Go 的 sqlite 方言，
PoolManager 负责连接池参数、后台探活、统计信息以及带退避重试的事务。
转录存储（internal/transcript）与 /ready 探针都经由 PoolManager 访问数据库。
*/
package database
