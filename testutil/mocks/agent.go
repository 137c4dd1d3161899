// ScriptedAgent 的能力 Agent 测试模拟实现。
//
// 支持固定结果、移交、错误、延迟、阻塞与 panic 注入场景。
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/tripflow/types"
)

// --- Behavior ---

// Behavior 描述单次调用的行为
type Behavior struct {
	Status types.ResultStatus
	Text   string
	Data   json.RawMessage
	Reason string
	Err    error
	Delay  time.Duration
	// Block 阻塞直到任务上下文结束
	Block bool
	Panic any
}

// --- ScriptedAgent 结构 ---

// ScriptedAgent 按脚本依次返回行为，脚本耗尽后重复默认行为
type ScriptedAgent struct {
	mu sync.Mutex

	label    types.IntentLabel
	script   []Behavior
	fallback Behavior

	calls    []types.AgentTask
	released chan struct{}
}

// NewScriptedAgent 创建默认返回 "<label> ok" 的 Agent
func NewScriptedAgent(label types.IntentLabel) *ScriptedAgent {
	return &ScriptedAgent{
		label:    label,
		fallback: Behavior{Status: types.StatusOK, Text: fmt.Sprintf("%s ok", label)},
		released: make(chan struct{}),
	}
}

// --- Builder 方法 ---

// WithText 设置默认成功文本
func (a *ScriptedAgent) WithText(text string) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = Behavior{Status: types.StatusOK, Text: text}
	return a
}

// WithHandoff 设置默认移交
func (a *ScriptedAgent) WithHandoff(reason string) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = Behavior{Status: types.StatusHandoff, Reason: reason}
	return a
}

// WithError 设置默认返回错误
func (a *ScriptedAgent) WithError(err error) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = Behavior{Err: err}
	return a
}

// WithDelay 为默认行为增加延迟
func (a *ScriptedAgent) WithDelay(d time.Duration) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback.Delay = d
	return a
}

// WithBlock 默认行为阻塞至任务上下文结束或 Release
func (a *ScriptedAgent) WithBlock() *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback.Block = true
	return a
}

// Then 追加一次性脚本行为
func (a *ScriptedAgent) Then(b Behavior) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script = append(a.script, b)
	return a
}

// Release 解除所有阻塞中的调用
func (a *ScriptedAgent) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.released:
	default:
		close(a.released)
	}
}

// --- Agent 实现 ---

// Capability implements agent.Agent.
func (a *ScriptedAgent) Capability() types.IntentLabel { return a.label }

// Handle implements agent.Agent.
func (a *ScriptedAgent) Handle(ctx context.Context, task types.AgentTask) (types.AgentResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, task)
	b := a.fallback
	if len(a.script) > 0 {
		b = a.script[0]
		a.script = a.script[1:]
	}
	released := a.released
	a.mu.Unlock()

	if b.Panic != nil {
		panic(b.Panic)
	}
	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-ctx.Done():
			return types.AgentResult{}, ctx.Err()
		}
	}
	if b.Block {
		select {
		case <-ctx.Done():
			return types.AgentResult{}, ctx.Err()
		case <-released:
		}
	}
	if b.Err != nil {
		return types.AgentResult{}, b.Err
	}

	switch b.Status {
	case types.StatusHandoff:
		return types.HandoffResult(task, b.Reason), nil
	case types.StatusError:
		return types.ErrorResult(task, types.NewError(types.ErrAgentError, b.Reason)), nil
	default:
		return types.OKResult(task, b.Text, b.Data), nil
	}
}

// --- 调用记录 ---

// Calls 返回收到的任务副本
func (a *ScriptedAgent) Calls() []types.AgentTask {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.AgentTask, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallCount 返回调用次数
func (a *ScriptedAgent) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}
