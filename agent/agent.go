package agent

import (
	"context"
	"fmt"

	"github.com/BaSui01/tripflow/types"
)

// ID is the stable identity of an agent behind the routing table.
type ID string

// Built-in agent identities.
const (
	IDFlightBooking     ID = "flight_booking"
	IDHotelBooking      ID = "hotel_booking"
	IDCarRental         ID = "car_rental"
	IDActivitiesBooking ID = "activities_booking"
	IDDestinationInfo   ID = "destination_info"
	IDDefault           ID = "default_agent"
)

// Agent serves exactly one capability.
type Agent interface {
	Capability() types.IntentLabel
	// Handle returns one result for task. A non-nil error is reported to the
	// caller as an AGENT_ERROR result.
	Handle(ctx context.Context, task types.AgentTask) (types.AgentResult, error)
}

// Func adapts a function to the Agent interface.
type Func struct {
	Label types.IntentLabel
	Fn    func(ctx context.Context, task types.AgentTask) (types.AgentResult, error)
}

// Capability implements Agent.
func (f Func) Capability() types.IntentLabel { return f.Label }

// Handle implements Agent.
func (f Func) Handle(ctx context.Context, task types.AgentTask) (types.AgentResult, error) {
	return f.Fn(ctx, task)
}

// AgentStructuredResponse is the envelope every built-in agent puts in
// AgentResult.Data.
type AgentStructuredResponse struct {
	AgentType ID     `json:"agent_type"`
	Data      any    `json:"data"`
	Message   string `json:"message,omitempty"`
}

// Set is the static population of agents keyed by identity.
type Set map[ID]Agent

// Validate checks every agent serves a concrete capability.
func (s Set) Validate() error {
	for id, a := range s {
		if a == nil {
			return fmt.Errorf("agent %s is nil", id)
		}
		if !a.Capability().IsCapability() {
			return fmt.Errorf("agent %s serves invalid capability %q", id, a.Capability())
		}
	}
	return nil
}
