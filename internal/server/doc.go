// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package server 提供 HTTP/HTTPS 服务器生命周期管理。

Manager 封装 net/http.Server：非阻塞启动、带超时的优雅关闭、
异步错误通道。配置了证书时使用 tlsutil 的加固 TLS 配置启动 HTTPS。
WaitForSignal 同时监听 SIGINT/SIGTERM 与多个 Manager 的异常退出，
供 tripflow serve 统一停机。
*/
package server
