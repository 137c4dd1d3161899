package routing

import (
	"testing"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	entries := table.Entries()
	require.Len(t, entries, 6)
	assert.Equal(t, Entry{Label: types.LabelFlight, Agent: agent.IDFlightBooking}, entries[0])
	assert.Equal(t, Entry{Label: types.LabelGeneral, Agent: agent.IDDefault}, entries[5])

	id, ok := table.Lookup(types.LabelCar)
	assert.True(t, ok)
	assert.Equal(t, agent.IDCarRental, id)

	_, ok = table.Lookup(types.LabelMulti)
	assert.False(t, ok)
}

func TestNewTable_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entries map[types.IntentLabel]agent.ID
	}{
		{"multi is not routable", map[types.IntentLabel]agent.ID{types.LabelMulti: "x", types.LabelGeneral: agent.IDDefault}},
		{"unknown label", map[types.IntentLabel]agent.ID{"cruise": "x", types.LabelGeneral: agent.IDDefault}},
		{"empty agent", map[types.IntentLabel]agent.ID{types.LabelHotel: "", types.LabelGeneral: agent.IDDefault}},
		{"missing general", map[types.IntentLabel]agent.ID{types.LabelHotel: agent.IDHotelBooking}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.entries)
			assert.Error(t, err)
		})
	}
}

func TestTable_Validate(t *testing.T) {
	table := DefaultTable()

	assert.NoError(t, table.Validate(func(agent.ID) bool { return true }))
	err := table.Validate(func(id agent.ID) bool { return id != agent.IDHotelBooking })
	assert.ErrorContains(t, err, "hotel_booking")
}

func TestTable_CopiesInput(t *testing.T) {
	in := map[types.IntentLabel]agent.ID{types.LabelGeneral: agent.IDDefault}
	table, err := NewTable(in)
	require.NoError(t, err)

	in[types.LabelGeneral] = "changed"
	id, _ := table.Lookup(types.LabelGeneral)
	assert.Equal(t, agent.IDDefault, id)
}
