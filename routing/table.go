package routing

import (
	"fmt"
	"sort"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/types"
)

// Entry is one row of the routing table.
type Entry struct {
	Label types.IntentLabel `json:"label"`
	Agent agent.ID          `json:"agent"`
}

// Table maps capability labels to agent identities. It is immutable after
// construction and safe for concurrent reads.
type Table struct {
	entries map[types.IntentLabel]agent.ID
}

// NewTable validates entries and copies them. Every label must be a concrete
// capability and general must be present.
func NewTable(entries map[types.IntentLabel]agent.ID) (*Table, error) {
	t := &Table{entries: make(map[types.IntentLabel]agent.ID, len(entries))}
	for label, id := range entries {
		if !label.IsCapability() {
			return nil, fmt.Errorf("routing table: %q is not a routable label", label)
		}
		if id == "" {
			return nil, fmt.Errorf("routing table: empty agent for %s", label)
		}
		t.entries[label] = id
	}
	if _, ok := t.entries[types.LabelGeneral]; !ok {
		return nil, fmt.Errorf("routing table: missing %s fallback", types.LabelGeneral)
	}
	return t, nil
}

// DefaultTable routes every capability to its built-in travel agent.
func DefaultTable() *Table {
	t, err := NewTable(map[types.IntentLabel]agent.ID{
		types.LabelFlight:      agent.IDFlightBooking,
		types.LabelHotel:       agent.IDHotelBooking,
		types.LabelCar:         agent.IDCarRental,
		types.LabelActivities:  agent.IDActivitiesBooking,
		types.LabelDestination: agent.IDDestinationInfo,
		types.LabelGeneral:     agent.IDDefault,
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the agent serving label.
func (t *Table) Lookup(label types.IntentLabel) (agent.ID, bool) {
	id, ok := t.entries[label]
	return id, ok
}

// Entries lists the table in canonical label order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for label, id := range t.entries {
		out = append(out, Entry{Label: label, Agent: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label.Rank() < out[j].Label.Rank() })
	return out
}

// Validate checks that every routed agent is registered.
func (t *Table) Validate(has func(agent.ID) bool) error {
	for _, e := range t.Entries() {
		if !has(e.Agent) {
			return fmt.Errorf("routing table: %s routes to unregistered agent %s", e.Label, e.Agent)
		}
	}
	return nil
}
