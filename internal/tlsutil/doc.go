// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

// Package tlsutil 提供集中式 TLS 配置：HTTPS 服务端、意图服务客户端与
// tripflow health 命令共用 TLS 1.2+、仅 AEAD 密码套件的加固设置。
package tlsutil
