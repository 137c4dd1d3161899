// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

/*
Package proxy 是 TripFlow 的用户代理：把一个 WebSocket 连接绑定到一个会话。

# 概述

Handler 在 GET /chat 上接受连接，为每个连接生成 ConversationID，
打开 conversation.Manager 中的会话，把每个入站文本帧转成 UserRequest，
并按轮次顺序把 FinalAnswer 写回客户端。连接断开时会话被取消，
进行中的工作不再产生回答。

# 回答格式

  - text（默认）：只发送 FinalAnswer.Text
  - json：发送完整 FinalAnswer 的 JSON 编码
*/
package proxy
