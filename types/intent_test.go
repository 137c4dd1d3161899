package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want IntentLabel
		ok   bool
	}{
		{"flight", LabelFlight, true},
		{"  HOTEL ", LabelHotel, true},
		{"car_rental", LabelCar, true},
		{"destination_info", LabelDestination, true},
		{"default_agent", LabelGeneral, true},
		{"travel_plan", LabelMulti, true},
		{"weather", LabelGeneral, false},
		{"", LabelGeneral, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLabel(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLabelSet_DedupAndOrder(t *testing.T) {
	s := NewLabelSet(LabelHotel, LabelFlight, LabelHotel, IntentLabel("bogus"), LabelGeneral)
	assert.Equal(t, []IntentLabel{LabelHotel, LabelFlight, LabelGeneral}, s.Labels())
	assert.Equal(t, LabelHotel, s.First())
	assert.Equal(t, "{hotel,flight,general}", s.String())
}

func TestLabelSet_ExpandAndWithout(t *testing.T) {
	s := NewLabelSet(LabelCar, LabelMulti)
	expanded := s.Expand(DefaultTripPlan())
	assert.Equal(t, []IntentLabel{LabelCar, LabelFlight, LabelHotel, LabelActivities, LabelDestination}, expanded.Labels())

	without := expanded.Without(LabelCar, LabelHotel)
	assert.Equal(t, []IntentLabel{LabelFlight, LabelActivities, LabelDestination}, without.Labels())
	// the receiver is untouched
	assert.Equal(t, 5, expanded.Len())

	assert.True(t, NewLabelSet(LabelMulti).IsMultiOnly())
	assert.False(t, NewLabelSet(LabelMulti, LabelCar).IsMultiOnly())
}

func TestLabelSet_JSON(t *testing.T) {
	s := NewLabelSet(LabelFlight, LabelHotel)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["flight","hotel"]`, string(data))

	var decoded LabelSet
	require.NoError(t, json.Unmarshal([]byte(`["hotel","spaceship","hotel"]`), &decoded))
	assert.Equal(t, []IntentLabel{LabelHotel, LabelGeneral}, decoded.Labels())
}

// TestProperty_LabelSet_NoDuplicatesClosedSet 任意输入构造的标签集都无重复且只含封闭集合成员。
func TestProperty_LabelSet_NoDuplicatesClosedSet(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.SliceOf(rapid.StringMatching(`[a-z_]{0,12}`)).Draw(rt, "raw")
		labels := make([]IntentLabel, len(raw))
		for i, r := range raw {
			labels[i] = IntentLabel(r)
		}
		s := NewLabelSet(labels...)

		seen := make(map[IntentLabel]bool)
		for _, l := range s.Labels() {
			if !l.Valid() {
				rt.Fatalf("label %q outside closed set", l)
			}
			if seen[l] {
				rt.Fatalf("duplicate label %q", l)
			}
			seen[l] = true
		}
	})
}

// TestProperty_LabelSet_ExpandRemovesMulti 展开后的集合不再包含 multi。
func TestProperty_LabelSet_ExpandRemovesMulti(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		picked := rapid.SliceOf(rapid.SampledFrom(AllLabels())).Draw(rt, "labels")
		s := NewLabelSet(picked...).Expand(DefaultTripPlan())
		if s.Contains(LabelMulti) {
			rt.Fatalf("multi survived expansion: %s", s)
		}
		for _, l := range picked {
			if l != LabelMulti && !s.Contains(l) {
				rt.Fatalf("label %q lost during expansion", l)
			}
		}
	})
}
