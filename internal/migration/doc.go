// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package migration 管理对话转录表（turn_transcripts）的 Schema 版本，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

各方言的 SQL 文件通过 embed.FS 内嵌在 migrations/<driver>/ 下，
文件名遵循 golang-migrate 约定：000001_name.up.sql / .down.sql。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、Steps、Goto、Force、Status 等操作
  - Config：数据库类型、连接 URL、版本表名与锁超时
  - Reporter：执行 tripflow migrate 子命令并报告 turn_transcripts 的 Schema 变化

SQLite 使用纯 Go 驱动（glebarez/go-sqlite，驱动名 "sqlite"），
无需 CGO 即可在测试与单机部署中使用。
*/
package migration
