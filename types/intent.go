package types

import (
	"encoding/json"
	"strings"
)

// IntentLabel is one member of the closed capability label set.
type IntentLabel string

const (
	LabelFlight      IntentLabel = "flight"
	LabelHotel       IntentLabel = "hotel"
	LabelCar         IntentLabel = "car"
	LabelActivities  IntentLabel = "activities"
	LabelDestination IntentLabel = "destination"
	LabelGeneral     IntentLabel = "general"
	LabelMulti       IntentLabel = "multi"
)

// canonicalOrder is the rank used whenever labels carry no explicit ordering.
var canonicalOrder = []IntentLabel{
	LabelFlight,
	LabelHotel,
	LabelCar,
	LabelActivities,
	LabelDestination,
	LabelGeneral,
	LabelMulti,
}

// AllLabels returns the closed label set in canonical order.
func AllLabels() []IntentLabel {
	out := make([]IntentLabel, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

// DefaultTripPlan is the capability sequence a whole-trip request expands to.
func DefaultTripPlan() []IntentLabel {
	return []IntentLabel{LabelFlight, LabelHotel, LabelCar, LabelActivities, LabelDestination}
}

// Valid reports whether l belongs to the closed set.
func (l IntentLabel) Valid() bool {
	return l.Rank() >= 0
}

// Rank returns the canonical position of l, or -1 for labels outside the set.
func (l IntentLabel) Rank() int {
	for i, c := range canonicalOrder {
		if c == l {
			return i
		}
	}
	return -1
}

// IsCapability reports whether l addresses a concrete agent (everything but multi).
func (l IntentLabel) IsCapability() bool {
	return l.Valid() && l != LabelMulti
}

func (l IntentLabel) String() string { return string(l) }

// ParseLabel normalizes raw text into the closed set. Anything unknown maps to
// general; ok is false in that case.
func ParseLabel(raw string) (label IntentLabel, ok bool) {
	l := IntentLabel(strings.ToLower(strings.TrimSpace(raw)))
	switch l {
	case "flight_booking":
		l = LabelFlight
	case "hotel_booking":
		l = LabelHotel
	case "car_rental", "car-rental", "rental":
		l = LabelCar
	case "activity", "activities_booking":
		l = LabelActivities
	case "destination_info":
		l = LabelDestination
	case "default_agent":
		l = LabelGeneral
	case "travel_plan", "travel-plan", "plan", "group_chat_manager":
		l = LabelMulti
	}
	if !l.Valid() {
		return LabelGeneral, false
	}
	return l, true
}

// =============================================================================
// LabelSet
// =============================================================================

// LabelSet is an ordered set of intent labels without duplicates.
// The zero value is empty; classification results are never empty.
type LabelSet struct {
	labels []IntentLabel
}

// NewLabelSet builds a set preserving first-seen order and dropping duplicates.
// Labels outside the closed set are mapped to general.
func NewLabelSet(labels ...IntentLabel) LabelSet {
	s := LabelSet{labels: make([]IntentLabel, 0, len(labels))}
	for _, l := range labels {
		if !l.Valid() {
			l = LabelGeneral
		}
		s = s.add(l)
	}
	return s
}

// GeneralOnly is the fallback classification.
func GeneralOnly() LabelSet {
	return NewLabelSet(LabelGeneral)
}

func (s LabelSet) add(l IntentLabel) LabelSet {
	if s.Contains(l) {
		return s
	}
	s.labels = append(s.labels, l)
	return s
}

// Labels returns a copy of the ordered labels.
func (s LabelSet) Labels() []IntentLabel {
	out := make([]IntentLabel, len(s.labels))
	copy(out, s.labels)
	return out
}

// Len returns the number of labels.
func (s LabelSet) Len() int { return len(s.labels) }

// Empty reports whether the set has no labels.
func (s LabelSet) Empty() bool { return len(s.labels) == 0 }

// First returns the top-ranked label.
func (s LabelSet) First() IntentLabel {
	if len(s.labels) == 0 {
		return ""
	}
	return s.labels[0]
}

// Contains reports membership.
func (s LabelSet) Contains(l IntentLabel) bool {
	for _, x := range s.labels {
		if x == l {
			return true
		}
	}
	return false
}

// IsMultiOnly reports whether the set is exactly {multi}.
func (s LabelSet) IsMultiOnly() bool {
	return len(s.labels) == 1 && s.labels[0] == LabelMulti
}

// Without returns a copy of the set with the given labels removed.
func (s LabelSet) Without(excluded ...IntentLabel) LabelSet {
	out := LabelSet{labels: make([]IntentLabel, 0, len(s.labels))}
	for _, l := range s.labels {
		skip := false
		for _, e := range excluded {
			if l == e {
				skip = true
				break
			}
		}
		if !skip {
			out.labels = append(out.labels, l)
		}
	}
	return out
}

// Expand replaces multi by the given plan in place, keeping order and uniqueness.
func (s LabelSet) Expand(plan []IntentLabel) LabelSet {
	out := LabelSet{labels: make([]IntentLabel, 0, len(s.labels)+len(plan))}
	for _, l := range s.labels {
		if l != LabelMulti {
			out = out.add(l)
			continue
		}
		for _, p := range plan {
			if p.IsCapability() {
				out = out.add(p)
			}
		}
	}
	return out
}

// Equal reports whether both sets hold the same labels in the same order.
func (s LabelSet) Equal(other LabelSet) bool {
	if len(s.labels) != len(other.labels) {
		return false
	}
	for i := range s.labels {
		if s.labels[i] != other.labels[i] {
			return false
		}
	}
	return true
}

func (s LabelSet) String() string {
	parts := make([]string, len(s.labels))
	for i, l := range s.labels {
		parts[i] = string(l)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// MarshalJSON encodes the set as an ordered array.
func (s LabelSet) MarshalJSON() ([]byte, error) {
	if s.labels == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.labels)
}

// UnmarshalJSON decodes an array, normalizing unknown labels to general.
func (s *LabelSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	labels := make([]IntentLabel, 0, len(raw))
	for _, r := range raw {
		l, _ := ParseLabel(r)
		labels = append(labels, l)
	}
	*s = NewLabelSet(labels...)
	return nil
}
