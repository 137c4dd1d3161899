package intent

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/tripflow/types"
)

// Classifier maps user text to a non-empty ordered label set.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, text string) (types.LabelSet, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, text string) (types.LabelSet, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, text string) (types.LabelSet, error) {
	return f(ctx, text)
}

// Rule binds keywords to one label.
type Rule struct {
	Label    types.IntentLabel `yaml:"label" json:"label"`
	Keywords []string          `yaml:"keywords" json:"keywords"`
}

// RuleConfig configures the keyword classifier.
type RuleConfig struct {
	Rules []Rule `yaml:"rules" json:"rules"`
	// PlanKeywords mark a whole-trip request which expands to TripPlan.
	PlanKeywords []string            `yaml:"plan_keywords" json:"plan_keywords"`
	TripPlan     []types.IntentLabel `yaml:"trip_plan" json:"trip_plan"`
}

// DefaultRuleConfig returns the built-in travel keyword table.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		Rules: []Rule{
			{Label: types.LabelFlight, Keywords: []string{"flight", "flights", "plane", "ticket", "tickets", "airline"}},
			{Label: types.LabelHotel, Keywords: []string{"hotel", "hotels", "accommodation", "room", "stay"}},
			{Label: types.LabelCar, Keywords: []string{"car rental", "rent a car", "rental car", "car hire"}},
			{Label: types.LabelActivities, Keywords: []string{"activities", "tours", "sightseeing", "events"}},
			{Label: types.LabelDestination, Keywords: []string{"destination", "city", "country", "place"}},
		},
		PlanKeywords: []string{"travel plan", "itinerary", "trip", "vacation", "holiday"},
		TripPlan:     types.DefaultTripPlan(),
	}
}

type compiledRule struct {
	label   types.IntentLabel
	pattern *regexp.Regexp
}

// RuleClassifier is the default keyword-based classifier. It is immutable
// after construction.
type RuleClassifier struct {
	rules    []compiledRule
	plan     *regexp.Regexp
	tripPlan []types.IntentLabel
}

// NewRuleClassifier compiles the keyword table. Rules with labels outside the
// closed set or without keywords are skipped.
func NewRuleClassifier(cfg RuleConfig) *RuleClassifier {
	c := &RuleClassifier{tripPlan: cfg.TripPlan}
	if len(c.tripPlan) == 0 {
		c.tripPlan = types.DefaultTripPlan()
	}
	for _, r := range cfg.Rules {
		if !r.Label.IsCapability() {
			continue
		}
		if p := keywordPattern(r.Keywords); p != nil {
			c.rules = append(c.rules, compiledRule{label: r.Label, pattern: p})
		}
	}
	c.plan = keywordPattern(cfg.PlanKeywords)
	return c
}

// keywordPattern builds a case-insensitive whole-word alternation.
func keywordPattern(keywords []string) *regexp.Regexp {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(strings.ToLower(k))
		if k == "" {
			continue
		}
		// multi-word keywords tolerate any run of whitespace
		words := strings.Fields(k)
		for i := range words {
			words[i] = regexp.QuoteMeta(words[i])
		}
		parts = append(parts, strings.Join(words, `\s+`))
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}

// Classify implements Classifier. It never fails.
func (c *RuleClassifier) Classify(_ context.Context, text string) (types.LabelSet, error) {
	return c.classify(text), nil
}

func (c *RuleClassifier) classify(text string) types.LabelSet {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.GeneralOnly()
	}

	matched := make([]types.IntentLabel, 0, len(c.rules)+len(c.tripPlan))
	for _, r := range c.rules {
		if r.pattern.MatchString(text) {
			matched = append(matched, r.label)
		}
	}
	if c.plan != nil && c.plan.MatchString(text) {
		matched = append(matched, c.tripPlan...)
	}
	if len(matched) == 0 {
		return types.GeneralOnly()
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Rank() < matched[j].Rank()
	})
	return types.NewLabelSet(matched...)
}

// TripPlan returns the capabilities a whole-trip request expands to.
func (c *RuleClassifier) TripPlan() []types.IntentLabel {
	out := make([]types.IntentLabel, len(c.tripPlan))
	copy(out, c.tripPlan)
	return out
}

var greetingWords = []string{"hello", "hi", "hey", "greetings", "你好", "您好"}

// IsGreeting reports whether text is a bare salutation.
func IsGreeting(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimRight(t, "!.,?~ 。！？，")
	if t == "" {
		return false
	}
	for _, g := range greetingWords {
		if t == g || strings.HasPrefix(t, g+" ") || strings.HasPrefix(t, g+",") {
			if len(strings.Fields(t)) <= 3 {
				return true
			}
		}
	}
	return false
}
