package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/coordination"
	"github.com/BaSui01/tripflow/routing"
	"github.com/BaSui01/tripflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned when submitting to a finished conversation.
	ErrClosed = errors.New("conversation closed")
	// ErrExists is returned when opening an id that is already live.
	ErrExists = errors.New("conversation already open")
)

// Router is the routing surface a conversation drives.
type Router interface {
	Route(ctx context.Context, req types.UserRequest) routing.Decision
	HandleHandoff(ctx context.Context, h types.HandoffRequest) routing.Decision
	ResetHandoffs(ctx context.Context, id types.ConversationID)
}

// Coordinator compiles multi-capability turns.
type Coordinator interface {
	CoordinateRequest(ctx context.Context, id types.ConversationID, labels types.LabelSet, text string) (types.FinalAnswer, error)
}

// TurnRecord is what a Recorder persists for every finished turn.
type TurnRecord struct {
	ConversationID types.ConversationID
	TurnID         string
	Request        types.UserRequest
	Answer         types.FinalAnswer
	States         []TurnState
	Handoffs       int
	StartedAt      time.Time
	Duration       time.Duration
}

// Recorder persists finished turns.
type Recorder interface {
	Record(ctx context.Context, rec TurnRecord) error
}

// Conversation is one live user session served by a single worker goroutine.
type Conversation struct {
	id      types.ConversationID
	m       *Manager
	logger  *zap.Logger
	inbox   chan types.UserRequest
	answers chan types.FinalAnswer
	history *History

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the conversation id.
func (c *Conversation) ID() types.ConversationID { return c.id }

// Answers streams final answers in turn order. It is closed when the
// conversation ends.
func (c *Conversation) Answers() <-chan types.FinalAnswer { return c.answers }

// Done is closed once the worker has exited.
func (c *Conversation) Done() <-chan struct{} { return c.done }

// History returns the retained request/answer log.
func (c *Conversation) History() []Entry { return c.history.Entries() }

// Submit queues req for the worker. It blocks while the inbox is full.
func (c *Conversation) Submit(ctx context.Context, req types.UserRequest) error {
	if req.ConversationID == "" {
		req.ConversationID = c.id
	}
	if req.ConversationID != c.id {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("request for %s sent to conversation %s", req.ConversationID, c.id))
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = c.m.now()
	}
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case c.inbox <- req:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the conversation. In-flight work produces no answer.
func (c *Conversation) Close() {
	c.cancel()
}

func (c *Conversation) run() {
	defer close(c.done)
	defer close(c.answers)
	defer c.m.remove(c.id)

	if text := c.m.config.Greeting; text != "" {
		c.emit(types.FinalAnswer{ConversationID: c.id, Text: text, Outcome: types.OutcomeGreeting})
	}

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("conversation worker stopped", zap.Error(c.ctx.Err()))
			return
		case req := <-c.inbox:
			c.serve(req)
		}
	}
}

func (c *Conversation) emit(answer types.FinalAnswer) bool {
	select {
	case c.answers <- answer:
		c.history.Add(Entry{Role: RoleAssistant, Text: answer.Text, Outcome: answer.Outcome, At: c.m.now()})
		return true
	case <-c.ctx.Done():
		return false
	}
}

// serve runs one turn to its terminal state.
func (c *Conversation) serve(req types.UserRequest) {
	turn := newTurn(uuid.NewString(), req, c.m.now())
	logger := c.logger.With(zap.String("turn_id", turn.ID))
	c.history.Add(Entry{Role: RoleUser, Text: req.Text, At: req.ReceivedAt})
	c.m.router.ResetHandoffs(c.ctx, c.id)

	answer, ok := c.runTurn(turn, logger)
	if !ok {
		_ = turn.advance(StateCancelled)
		c.m.metrics.RecordTurn(string(StateCancelled))
		logger.Info("turn cancelled, no answer sent")
		return
	}
	answer.ConversationID = c.id
	c.m.metrics.RecordTurn(string(answer.Outcome))
	logger.Info("turn finished",
		zap.String("state", string(turn.State())),
		zap.String("outcome", string(answer.Outcome)),
		zap.Int("handoffs", turn.Handoffs))

	if !c.emit(answer) {
		return
	}
	c.record(turn, answer)
}

func (c *Conversation) runTurn(turn *Turn, logger *zap.Logger) (types.FinalAnswer, bool) {
	ctx := c.ctx
	d := c.m.router.Route(ctx, turn.Request)

	for {
		if ctx.Err() != nil {
			return types.FinalAnswer{}, false
		}
		switch d.Kind {
		case routing.DecisionTerminate:
			c.mustAdvance(turn, StateUnservable, logger)
			return d.Answer, true

		case routing.DecisionDelegate:
			c.mustAdvance(turn, StateDispatched, logger)
			answer, err := c.m.coordinator.CoordinateRequest(ctx, c.id, d.Labels, turn.Request.Text)
			if err != nil {
				return types.FinalAnswer{}, false
			}
			c.mustAdvance(turn, StateCompleted, logger)
			return answer, true

		case routing.DecisionDispatch:
			c.mustAdvance(turn, StateDispatched, logger)
			res := c.m.dispatcher.Dispatch(ctx, d.Agent, d.Task, c.m.config.AgentTimeout)
			if ctx.Err() != nil {
				return types.FinalAnswer{}, false
			}
			switch res.Status {
			case types.StatusOK:
				c.mustAdvance(turn, StateCompleted, logger)
				return singleAnswer(res), true
			case types.StatusHandoff:
				c.mustAdvance(turn, StateHandedOff, logger)
				logger.Info("agent handed off",
					zap.String("capability", string(res.Capability)),
					zap.String("reason", res.Reason))
				d = c.m.router.HandleHandoff(ctx, types.NewHandoffRequest(res, d.Task.Payload.Text))
				c.mustAdvance(turn, StateRouting, logger)
			default:
				c.mustAdvance(turn, StateTimedOut, logger)
				logger.Warn("single dispatch failed",
					zap.String("capability", string(res.Capability)),
					zap.String("reason", res.Reason))
				return failedAnswer(res), true
			}

		default:
			logger.Error("unknown routing decision", zap.String("kind", string(d.Kind)))
			c.mustAdvance(turn, StateUnservable, logger)
			return routing.UnservableAnswer(c.id, types.NewError(types.ErrInternalError, "unknown routing decision")), true
		}
	}
}

func (c *Conversation) mustAdvance(turn *Turn, to TurnState, logger *zap.Logger) {
	if err := turn.advance(to); err != nil {
		logger.Error("turn state machine violated", zap.Error(err))
	}
}

func (c *Conversation) record(turn *Turn, answer types.FinalAnswer) {
	if c.m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), 5*time.Second)
	defer cancel()
	err := c.m.recorder.Record(ctx, TurnRecord{
		ConversationID: c.id,
		TurnID:         turn.ID,
		Request:        turn.Request,
		Answer:         answer,
		States:         turn.States(),
		Handoffs:       turn.Handoffs,
		StartedAt:      turn.StartedAt,
		Duration:       c.m.now().Sub(turn.StartedAt),
	})
	if err != nil {
		c.logger.Warn("transcript write failed", zap.String("turn_id", turn.ID), zap.Error(err))
	}
}

// singleAnswer forwards a single agent's reply verbatim.
func singleAnswer(res types.AgentResult) types.FinalAnswer {
	outcome := types.OutcomeCompleted
	if res.Capability == types.LabelGeneral && res.Text == agent.GreetingText {
		outcome = types.OutcomeGreeting
	}
	return types.FinalAnswer{
		ConversationID: res.ConversationID,
		Text:           res.Text,
		Outcome:        outcome,
		Data:           res.Data,
		Sections: []types.Section{{
			Capability: res.Capability,
			Available:  true,
			Text:       res.Text,
			Data:       res.Data,
		}},
	}
}

func failedAnswer(res types.AgentResult) types.FinalAnswer {
	text := fmt.Sprintf("I'm sorry, the %s service could not complete your request. Please try again.", res.Capability)
	if res.Err != nil && res.Err.Code == types.ErrAgentTimeout {
		text = fmt.Sprintf("I'm sorry, the %s service did not respond in time. Please try again.", res.Capability)
	}
	answer := types.FinalAnswer{
		ConversationID: res.ConversationID,
		Text:           text,
		Outcome:        types.OutcomeFailed,
		Sections: []types.Section{{
			Capability: res.Capability,
			Available:  false,
			Text:       fmt.Sprintf("%s information unavailable", res.Capability),
			Note:       res.Reason,
		}},
	}
	if res.Err != nil {
		if data, err := json.Marshal(map[string]any{"error": res.Err}); err == nil {
			answer.Data = data
		}
	}
	return answer
}

// Dispatcher is re-exported so callers need not import coordination.
type Dispatcher = coordination.Dispatcher
