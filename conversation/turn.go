package conversation

import (
	"fmt"
	"time"

	"github.com/BaSui01/tripflow/types"
)

// TurnState is the state of one request inside a conversation.
type TurnState string

const (
	StateRouting    TurnState = "routing"
	StateDispatched TurnState = "dispatched"
	StateHandedOff  TurnState = "handed_off"
	StateCompleted  TurnState = "completed"
	StateTimedOut   TurnState = "timed_out"
	StateUnservable TurnState = "unservable"
	StateCancelled  TurnState = "cancelled"
)

var transitions = map[TurnState][]TurnState{
	StateRouting:    {StateDispatched, StateUnservable, StateCancelled},
	StateDispatched: {StateCompleted, StateHandedOff, StateTimedOut, StateCancelled},
	StateHandedOff:  {StateRouting, StateCancelled},
}

// Terminal reports whether no further transition is allowed.
func (s TurnState) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to TurnState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Turn tracks one request from routing to its terminal state.
type Turn struct {
	ID        string
	Request   types.UserRequest
	StartedAt time.Time
	Handoffs  int

	state   TurnState
	history []TurnState
}

func newTurn(id string, req types.UserRequest, now time.Time) *Turn {
	return &Turn{
		ID:        id,
		Request:   req,
		StartedAt: now,
		state:     StateRouting,
		history:   []TurnState{StateRouting},
	}
}

// State returns the current state.
func (t *Turn) State() TurnState { return t.state }

// States returns every state the turn passed through.
func (t *Turn) States() []TurnState {
	out := make([]TurnState, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Turn) advance(to TurnState) error {
	if !CanTransition(t.state, to) {
		return fmt.Errorf("illegal turn transition %s -> %s", t.state, to)
	}
	if to == StateHandedOff {
		t.Handoffs++
	}
	t.state = to
	t.history = append(t.history, to)
	return nil
}
