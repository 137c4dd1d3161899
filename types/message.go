package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConversationID identifies one end-user session. It is immutable across the
// causal chain of every turn in that session.
type ConversationID string

func (id ConversationID) String() string { return string(id) }

// MessageKind tags the variants of the Message union.
type MessageKind string

const (
	KindUserRequest    MessageKind = "user_request"
	KindAgentTask      MessageKind = "agent_task"
	KindAgentResult    MessageKind = "agent_result"
	KindHandoffRequest MessageKind = "handoff_request"
	KindFinalAnswer    MessageKind = "final_answer"
)

// Message is the closed union of everything that flows between the proxy, the
// router, the coordinator and the agents.
type Message interface {
	Kind() MessageKind
	Conversation() ConversationID
}

// TaskOrigin records which component issued an AgentTask.
type TaskOrigin string

const (
	OriginRouter      TaskOrigin = "router"
	OriginCoordinator TaskOrigin = "coordinator"
)

// ResultStatus is the only part of an AgentResult the engine interprets.
type ResultStatus string

const (
	StatusOK      ResultStatus = "ok"
	StatusHandoff ResultStatus = "handoff"
	StatusError   ResultStatus = "error"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomePartial    Outcome = "partial"
	OutcomeFailed     Outcome = "failed"
	OutcomeUnservable Outcome = "unservable"
	OutcomeGreeting   Outcome = "greeting"
)

// UserRequest is one inbound utterance.
type UserRequest struct {
	ConversationID ConversationID `json:"conversation_id"`
	Text           string         `json:"text"`
	ReceivedAt     time.Time      `json:"received_at"`
}

func (UserRequest) Kind() MessageKind              { return KindUserRequest }
func (m UserRequest) Conversation() ConversationID { return m.ConversationID }

// TaskPayload is opaque to the engine; agents decide what to do with it.
type TaskPayload struct {
	Text string          `json:"text"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AgentTask asks one capability agent to act.
type AgentTask struct {
	ConversationID ConversationID `json:"conversation_id"`
	TaskID         string         `json:"task_id"`
	Capability     IntentLabel    `json:"target_capability"`
	Payload        TaskPayload    `json:"payload"`
	Origin         TaskOrigin     `json:"origin"`
}

func (AgentTask) Kind() MessageKind              { return KindAgentTask }
func (m AgentTask) Conversation() ConversationID { return m.ConversationID }

// AgentResult is the single answer to an AgentTask.
type AgentResult struct {
	ConversationID ConversationID  `json:"conversation_id"`
	TaskID         string          `json:"task_id"`
	Capability     IntentLabel     `json:"capability"`
	Status         ResultStatus    `json:"status"`
	Text           string          `json:"text,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	// Reason and RemainingText are set on handoff.
	Reason        string `json:"reason,omitempty"`
	RemainingText string `json:"remaining_text,omitempty"`
	Err           *Error `json:"error,omitempty"`
}

func (AgentResult) Kind() MessageKind              { return KindAgentResult }
func (m AgentResult) Conversation() ConversationID { return m.ConversationID }

// OK reports whether the agent completed the task.
func (m AgentResult) OK() bool { return m.Status == StatusOK }

// OKResult builds a successful result for task.
func OKResult(task AgentTask, text string, data json.RawMessage) AgentResult {
	return AgentResult{
		ConversationID: task.ConversationID,
		TaskID:         task.TaskID,
		Capability:     task.Capability,
		Status:         StatusOK,
		Text:           text,
		Data:           data,
	}
}

// HandoffResult builds a handoff signal for task.
func HandoffResult(task AgentTask, reason string) AgentResult {
	return AgentResult{
		ConversationID: task.ConversationID,
		TaskID:         task.TaskID,
		Capability:     task.Capability,
		Status:         StatusHandoff,
		Reason:         reason,
		RemainingText:  task.Payload.Text,
	}
}

// ErrorResult builds a failed result for task.
func ErrorResult(task AgentTask, err *Error) AgentResult {
	if err == nil {
		err = NewError(ErrAgentError, "agent failed")
	}
	if err.Capability == "" {
		err.Capability = task.Capability
	}
	return AgentResult{
		ConversationID: task.ConversationID,
		TaskID:         task.TaskID,
		Capability:     task.Capability,
		Status:         StatusError,
		Reason:         err.Message,
		Err:            err,
	}
}

// TimeoutResult is the synthetic result for a task abandoned after d.
func TimeoutResult(task AgentTask, d time.Duration) AgentResult {
	return ErrorResult(task, NewError(ErrAgentTimeout,
		fmt.Sprintf("%s agent did not answer within %s", task.Capability, d)))
}

// HandoffRequest asks the router to re-route what an agent could not serve.
type HandoffRequest struct {
	ConversationID ConversationID `json:"conversation_id"`
	FromCapability IntentLabel    `json:"from_capability"`
	Reason         string         `json:"reason"`
	RemainingText  string         `json:"remaining_text"`
}

func (HandoffRequest) Kind() MessageKind              { return KindHandoffRequest }
func (m HandoffRequest) Conversation() ConversationID { return m.ConversationID }

// NewHandoffRequest converts a handoff result into a routing request.
// An empty remaining text falls back to the original task text.
func NewHandoffRequest(res AgentResult, originalText string) HandoffRequest {
	remaining := res.RemainingText
	if remaining == "" {
		remaining = originalText
	}
	return HandoffRequest{
		ConversationID: res.ConversationID,
		FromCapability: res.Capability,
		Reason:         res.Reason,
		RemainingText:  remaining,
	}
}

// Section is one capability slot inside a compiled answer.
type Section struct {
	Capability IntentLabel     `json:"capability"`
	Available  bool            `json:"available"`
	Text       string          `json:"text"`
	Data       json.RawMessage `json:"data,omitempty"`
	Note       string          `json:"note,omitempty"`
}

// FinalAnswer is what the user eventually sees for a turn.
type FinalAnswer struct {
	ConversationID ConversationID  `json:"conversation_id"`
	Text           string          `json:"text"`
	Sections       []Section       `json:"sections,omitempty"`
	Outcome        Outcome         `json:"outcome"`
	Data           json.RawMessage `json:"data,omitempty"`
}

func (FinalAnswer) Kind() MessageKind              { return KindFinalAnswer }
func (m FinalAnswer) Conversation() ConversationID { return m.ConversationID }
