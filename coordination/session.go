package coordination

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/tripflow/types"
)

// PlanHeader opens every compiled multi-agent answer.
const PlanHeader = "Here is your comprehensive travel plan:"

// FailedText is the answer when no capability produced a result.
const FailedText = "I'm sorry, I could not complete your travel plan. None of our agents was able to answer in time."

// Session is the ephemeral aggregate of one multi-agent turn. It is owned by a
// single collect loop and is not safe for concurrent use.
type Session struct {
	ConversationID types.ConversationID
	CreatedAt      time.Time

	order     []types.IntentLabel
	pending   map[types.IntentLabel]bool
	collected map[types.IntentLabel]types.AgentResult
}

// NewSession opens a session for labels in the given order.
func NewSession(id types.ConversationID, labels []types.IntentLabel, now time.Time) *Session {
	s := &Session{
		ConversationID: id,
		CreatedAt:      now,
		order:          make([]types.IntentLabel, 0, len(labels)),
		pending:        make(map[types.IntentLabel]bool, len(labels)),
		collected:      make(map[types.IntentLabel]types.AgentResult, len(labels)),
	}
	for _, l := range labels {
		if s.pending[l] {
			continue
		}
		s.order = append(s.order, l)
		s.pending[l] = true
	}
	return s
}

// Order returns the capabilities in dispatch order.
func (s *Session) Order() []types.IntentLabel {
	out := make([]types.IntentLabel, len(s.order))
	copy(out, s.order)
	return out
}

// Pending returns the unresolved capabilities in order.
func (s *Session) Pending() []types.IntentLabel {
	out := make([]types.IntentLabel, 0, len(s.pending))
	for _, l := range s.order {
		if s.pending[l] {
			out = append(out, l)
		}
	}
	return out
}

// Done reports whether every capability has resolved.
func (s *Session) Done() bool {
	return len(s.Pending()) == 0
}

// Result returns what was recorded for label.
func (s *Session) Result(label types.IntentLabel) (types.AgentResult, bool) {
	res, ok := s.collected[label]
	return res, ok
}

// Record resolves res.Capability. It returns false, changing nothing, when the
// capability is not pending or the result belongs to another conversation.
func (s *Session) Record(res types.AgentResult) bool {
	if res.ConversationID != s.ConversationID || !s.pending[res.Capability] {
		return false
	}
	s.pending[res.Capability] = false
	s.collected[res.Capability] = res
	return true
}

// Expire resolves every pending capability as timed out after d.
func (s *Session) Expire(d time.Duration) {
	for _, l := range s.Pending() {
		s.Record(types.TimeoutResult(types.AgentTask{
			ConversationID: s.ConversationID,
			Capability:     l,
		}, d))
	}
}

// Compile builds the final answer from the collected results. Every
// capability in the session gets exactly one section.
func (s *Session) Compile() types.FinalAnswer {
	sections := make([]types.Section, 0, len(s.order))
	lines := make([]string, 0, len(s.order))
	ok := 0
	for _, l := range s.order {
		res, found := s.collected[l]
		if found && res.OK() {
			ok++
			sections = append(sections, types.Section{
				Capability: l,
				Available:  true,
				Text:       res.Text,
				Data:       res.Data,
			})
			lines = append(lines, res.Text)
			continue
		}
		sections = append(sections, types.Section{
			Capability: l,
			Available:  false,
			Text:       unavailable(l),
			Note:       failureNote(res, found),
		})
		lines = append(lines, unavailable(l))
	}

	answer := types.FinalAnswer{ConversationID: s.ConversationID, Sections: sections}
	switch {
	case ok == len(s.order):
		answer.Outcome = types.OutcomeCompleted
		answer.Text = PlanHeader + "\n" + strings.Join(lines, "\n")
	case ok > 0:
		answer.Outcome = types.OutcomePartial
		answer.Text = PlanHeader + "\n" + strings.Join(lines, "\n")
	default:
		answer.Outcome = types.OutcomeFailed
		answer.Text = FailedText
	}
	return answer
}

func unavailable(l types.IntentLabel) string {
	return fmt.Sprintf("%s information unavailable", l)
}

func failureNote(res types.AgentResult, found bool) string {
	switch {
	case !found:
		return "no result"
	case res.Status == types.StatusHandoff:
		if res.Reason != "" {
			return "handed off: " + res.Reason
		}
		return "handed off"
	case res.Err != nil:
		return string(res.Err.Code) + ": " + res.Err.Message
	default:
		return res.Reason
	}
}
