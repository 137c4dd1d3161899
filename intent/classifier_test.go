package intent

import (
	"context"
	"testing"

	"github.com/BaSui01/tripflow/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRuleClassifier_Classify(t *testing.T) {
	c := NewRuleClassifier(DefaultRuleConfig())

	tests := []struct {
		name string
		text string
		want []types.IntentLabel
	}{
		{"car rental", "I need to rent a car in Paris", []types.IntentLabel{types.LabelCar}},
		{"vacation expands to plan", "I want to plan a vacation to Paris", types.DefaultTripPlan()},
		{"flight and hotel canonical order", "Find me a hotel and a flight to Rome", []types.IntentLabel{types.LabelFlight, types.LabelHotel}},
		{"case insensitive", "BOOK A FLIGHT", []types.IntentLabel{types.LabelFlight}},
		{"whole words only", "the replacement carpet", []types.IntentLabel{types.LabelGeneral}},
		{"multi-word keyword spacing", "any car   hire options?", []types.IntentLabel{types.LabelCar}},
		{"greeting", "hello", []types.IntentLabel{types.LabelGeneral}},
		{"empty", "   ", []types.IntentLabel{types.LabelGeneral}},
		{"destination", "tell me about this city", []types.IntentLabel{types.LabelDestination}},
		{"activities", "any sightseeing tours?", []types.IntentLabel{types.LabelActivities}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Labels())
		})
	}
}

func TestRuleClassifier_CustomPlanAndInvalidRules(t *testing.T) {
	cfg := RuleConfig{
		Rules: []Rule{
			{Label: types.LabelHotel, Keywords: []string{"inn"}},
			{Label: types.LabelMulti, Keywords: []string{"everything"}},
			{Label: types.LabelFlight},
		},
		PlanKeywords: []string{"weekend away"},
		TripPlan:     []types.IntentLabel{types.LabelHotel, types.LabelActivities},
	}
	c := NewRuleClassifier(cfg)

	got, _ := c.Classify(context.Background(), "a weekend away at an inn")
	assert.Equal(t, []types.IntentLabel{types.LabelHotel, types.LabelActivities}, got.Labels())

	got, _ = c.Classify(context.Background(), "everything please")
	assert.Equal(t, []types.IntentLabel{types.LabelGeneral}, got.Labels())
	assert.Equal(t, cfg.TripPlan, c.TripPlan())
}

func TestIsGreeting(t *testing.T) {
	assert.True(t, IsGreeting("Hello!"))
	assert.True(t, IsGreeting("hi there"))
	assert.True(t, IsGreeting("你好"))
	assert.False(t, IsGreeting("history of Paris"))
	assert.False(t, IsGreeting("hi, I need a flight to Tokyo next monday please"))
	assert.False(t, IsGreeting(""))
}

// TestProperty_RuleClassifier_NonEmptyClosedSet 对任意文本，分类结果非空、无重复且只含封闭集合标签。
func TestProperty_RuleClassifier_NonEmptyClosedSet(t *testing.T) {
	c := NewRuleClassifier(DefaultRuleConfig())
	vocabulary := []string{"flight", "hotel", "rent a car", "tours", "city", "vacation", "hello", "the", "Paris", "", "!!", "你好"}

	rapid.Check(t, func(rt *rapid.T) {
		var text string
		if rapid.Bool().Draw(rt, "free") {
			text = rapid.String().Draw(rt, "text")
		} else {
			words := rapid.SliceOf(rapid.SampledFrom(vocabulary)).Draw(rt, "words")
			for _, w := range words {
				text += w + " "
			}
		}

		labels, err := c.Classify(context.Background(), text)
		if err != nil {
			rt.Fatalf("rule classifier returned error: %v", err)
		}
		if labels.Empty() {
			rt.Fatalf("empty classification for %q", text)
		}
		seen := map[types.IntentLabel]bool{}
		for _, l := range labels.Labels() {
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

// TestProperty_RuleClassifier_Deterministic 相同输入总是得到相同结果。
func TestProperty_RuleClassifier_Deterministic(t *testing.T) {
	c := NewRuleClassifier(DefaultRuleConfig())
	properties := gopter.NewProperties(nil)

	properties.Property("classification is deterministic", prop.ForAll(
		func(text string) bool {
			a, _ := c.Classify(context.Background(), text)
			b, _ := c.Classify(context.Background(), text)
			return a.Equal(b)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
