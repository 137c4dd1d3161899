// Package fixtures 提供测试用的典型请求与结果样例。
package fixtures

import (
	"time"

	"github.com/BaSui01/tripflow/types"
)

// 典型用户输入
const (
	SingleAgentText = "I need to rent a car in Paris"
	MultiAgentText  = "I want to plan a vacation to Paris"
	GreetingText    = "hello"
	UnknownText     = "what's the meaning of life"
)

// ConversationID 测试会话 ID
const ConversationID types.ConversationID = "11111111-2222-4333-8444-555555555555"

// Request 构造一个测试 UserRequest
func Request(text string) types.UserRequest {
	return types.UserRequest{
		ConversationID: ConversationID,
		Text:           text,
		ReceivedAt:     time.Date(2023, 12, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Task 构造一个测试 AgentTask
func Task(label types.IntentLabel, origin types.TaskOrigin) types.AgentTask {
	return types.AgentTask{
		ConversationID: ConversationID,
		TaskID:         "task-" + string(label),
		Capability:     label,
		Payload:        types.TaskPayload{Text: MultiAgentText},
		Origin:         origin,
	}
}

// OK 构造成功结果
func OK(label types.IntentLabel, text string) types.AgentResult {
	return types.OKResult(Task(label, types.OriginCoordinator), text, nil)
}

// Failed 构造超时结果
func Failed(label types.IntentLabel) types.AgentResult {
	return types.TimeoutResult(Task(label, types.OriginCoordinator), 30*time.Second)
}
