package coordination

import (
	"testing"
	"time"

	"github.com/BaSui01/tripflow/testutil/fixtures"
	"github.com/BaSui01/tripflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSession_RecordAndPending(t *testing.T) {
	s := NewSession(fixtures.ConversationID, types.DefaultTripPlan(), time.Now())

	assert.Equal(t, types.DefaultTripPlan(), s.Pending())
	assert.False(t, s.Done())

	assert.True(t, s.Record(fixtures.OK(types.LabelHotel, "hotel ok")))
	assert.Equal(t,
		[]types.IntentLabel{types.LabelFlight, types.LabelCar, types.LabelActivities, types.LabelDestination},
		s.Pending())
}

func TestSession_ReplayIsNoOp(t *testing.T) {
	s := NewSession(fixtures.ConversationID, []types.IntentLabel{types.LabelFlight, types.LabelHotel}, time.Now())

	require.True(t, s.Record(fixtures.OK(types.LabelFlight, "first")))
	assert.False(t, s.Record(fixtures.OK(types.LabelFlight, "second")))
	assert.False(t, s.Record(fixtures.Failed(types.LabelFlight)))

	res, ok := s.Result(types.LabelFlight)
	require.True(t, ok)
	assert.Equal(t, "first", res.Text)
	assert.Equal(t, []types.IntentLabel{types.LabelHotel}, s.Pending())
}

func TestSession_RejectsForeignResults(t *testing.T) {
	s := NewSession(fixtures.ConversationID, []types.IntentLabel{types.LabelFlight}, time.Now())

	other := fixtures.OK(types.LabelFlight, "other conversation")
	other.ConversationID = "someone-else"
	assert.False(t, s.Record(other))
	assert.False(t, s.Record(fixtures.OK(types.LabelCar, "not in session")))
	assert.False(t, s.Done())
}

func TestSession_DeduplicatesLabels(t *testing.T) {
	s := NewSession(fixtures.ConversationID,
		[]types.IntentLabel{types.LabelHotel, types.LabelFlight, types.LabelHotel}, time.Now())

	assert.Equal(t, []types.IntentLabel{types.LabelHotel, types.LabelFlight}, s.Order())
}

func TestSession_CompileCompleted(t *testing.T) {
	s := NewSession(fixtures.ConversationID, []types.IntentLabel{types.LabelFlight, types.LabelHotel}, time.Now())
	s.Record(fixtures.OK(types.LabelHotel, "Hotel booked"))
	s.Record(fixtures.OK(types.LabelFlight, "Flight booked"))

	answer := s.Compile()

	assert.Equal(t, types.OutcomeCompleted, answer.Outcome)
	assert.Equal(t, "Here is your comprehensive travel plan:\nFlight booked\nHotel booked", answer.Text)
	assert.Equal(t, fixtures.ConversationID, answer.ConversationID)
	require.Len(t, answer.Sections, 2)
	assert.True(t, answer.Sections[0].Available)
}

func TestSession_CompilePartial(t *testing.T) {
	s := NewSession(fixtures.ConversationID, []types.IntentLabel{types.LabelFlight, types.LabelHotel}, time.Now())
	s.Record(fixtures.OK(types.LabelFlight, "Flight booked"))
	s.Record(fixtures.Failed(types.LabelHotel))

	answer := s.Compile()

	assert.Equal(t, types.OutcomePartial, answer.Outcome)
	assert.Equal(t, "Here is your comprehensive travel plan:\nFlight booked\nhotel information unavailable", answer.Text)
	assert.False(t, answer.Sections[1].Available)
	assert.Contains(t, answer.Sections[1].Note, string(types.ErrAgentTimeout))
}

func TestSession_CompileFailed(t *testing.T) {
	s := NewSession(fixtures.ConversationID, []types.IntentLabel{types.LabelFlight, types.LabelHotel}, time.Now())
	handoff := types.HandoffResult(fixtures.Task(types.LabelFlight, types.OriginCoordinator), "not mine")
	s.Record(handoff)
	s.Expire(time.Minute)

	answer := s.Compile()

	assert.True(t, s.Done())
	assert.Equal(t, types.OutcomeFailed, answer.Outcome)
	assert.Equal(t, FailedText, answer.Text)
	require.Len(t, answer.Sections, 2)
	assert.Equal(t, "handed off: not mine", answer.Sections[0].Note)
	assert.Equal(t, "hotel information unavailable", answer.Sections[1].Text)
}

func TestProperty_Session_EveryPendingCapabilityGetsASlot(t *testing.T) {
	capabilities := []types.IntentLabel{
		types.LabelFlight, types.LabelHotel, types.LabelCar,
		types.LabelActivities, types.LabelDestination, types.LabelGeneral,
	}

	rapid.Check(t, func(rt *rapid.T) {
		labels := rapid.SliceOfNDistinct(rapid.SampledFrom(capabilities), 2, 6, rapid.ID[types.IntentLabel]).Draw(rt, "labels")
		s := NewSession(fixtures.ConversationID, labels, time.Now())

		for _, l := range labels {
			switch rapid.IntRange(0, 3).Draw(rt, "outcome_"+string(l)) {
			case 0:
				s.Record(fixtures.OK(l, string(l)+" done"))
			case 1:
				s.Record(fixtures.Failed(l))
			case 2:
				s.Record(types.HandoffResult(fixtures.Task(l, types.OriginCoordinator), "no"))
			default:
				// left for Expire
			}
		}
		s.Expire(time.Second)

		answer := s.Compile()
		if len(answer.Sections) != len(labels) {
			rt.Fatalf("expected %d sections, got %d", len(labels), len(answer.Sections))
		}
		for i, l := range labels {
			if answer.Sections[i].Capability != l {
				rt.Fatalf("section %d is %s, want %s", i, answer.Sections[i].Capability, l)
			}
		}
	})
}
