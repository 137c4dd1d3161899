package routing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/intent"
	"github.com/BaSui01/tripflow/testutil/mocks"
	"github.com/BaSui01/tripflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func fixed(labels ...types.IntentLabel) intent.Classifier {
	return intent.ClassifierFunc(func(context.Context, string) (types.LabelSet, error) {
		return types.NewLabelSet(labels...), nil
	})
}

func newTestRouter(c intent.Classifier, counters CounterStore) *Router {
	return NewRouter(c, DefaultTable(), counters, DefaultConfig(), zap.NewNop(), nil)
}

func request(text string) types.UserRequest {
	return types.UserRequest{ConversationID: "conv-1", Text: text, ReceivedAt: time.Now()}
}

func TestRouter_SingleLabelDispatches(t *testing.T) {
	r := NewRouter(intent.NewRuleClassifier(intent.DefaultRuleConfig()), DefaultTable(), nil, DefaultConfig(), zap.NewNop(), nil)

	d := r.Route(context.Background(), request("I need to rent a car in Paris"))

	require.Equal(t, DecisionDispatch, d.Kind)
	assert.Equal(t, agent.IDCarRental, d.Agent)
	assert.Equal(t, types.LabelCar, d.Task.Capability)
	assert.Equal(t, types.OriginRouter, d.Task.Origin)
	assert.Equal(t, types.ConversationID("conv-1"), d.Task.ConversationID)
	assert.Equal(t, "I need to rent a car in Paris", d.Task.Payload.Text)
	assert.NotEmpty(t, d.Task.TaskID)
	assert.False(t, d.Degraded)
}

func TestRouter_MultiLabelDelegates(t *testing.T) {
	r := NewRouter(intent.NewRuleClassifier(intent.DefaultRuleConfig()), DefaultTable(), nil, DefaultConfig(), zap.NewNop(), nil)

	d := r.Route(context.Background(), request("I want to plan a vacation to Paris"))

	require.Equal(t, DecisionDelegate, d.Kind)
	assert.Equal(t, types.DefaultTripPlan(), d.Labels.Labels())
}

func TestRouter_MultiOnlyDelegates(t *testing.T) {
	d := newTestRouter(fixed(types.LabelMulti), nil).Route(context.Background(), request("plan it all"))

	require.Equal(t, DecisionDelegate, d.Kind)
	assert.True(t, d.Labels.IsMultiOnly())
}

func TestRouter_ClassificationFailureDegrades(t *testing.T) {
	failing := intent.ClassifierFunc(func(context.Context, string) (types.LabelSet, error) {
		return types.LabelSet{}, types.NewError(types.ErrClassification, "service down")
	})

	d := newTestRouter(failing, nil).Route(context.Background(), request("book"))

	require.Equal(t, DecisionDispatch, d.Kind)
	assert.Equal(t, agent.IDDefault, d.Agent)
	assert.Equal(t, types.LabelGeneral, d.Task.Capability)
	assert.True(t, d.Degraded)
}

func TestRouter_ClassifyTimeout(t *testing.T) {
	slow := intent.ClassifierFunc(func(ctx context.Context, _ string) (types.LabelSet, error) {
		<-ctx.Done()
		return types.GeneralOnly(), ctx.Err()
	})
	cfg := DefaultConfig()
	cfg.ClassifyTimeout = 20 * time.Millisecond
	r := NewRouter(slow, DefaultTable(), nil, cfg, zap.NewNop(), nil)

	start := time.Now()
	d := r.Route(context.Background(), request("anything"))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, types.LabelGeneral, d.Task.Capability)
	assert.True(t, d.Degraded)
}

func TestRouter_EmptyClassificationIsGeneral(t *testing.T) {
	empty := intent.ClassifierFunc(func(context.Context, string) (types.LabelSet, error) {
		return types.LabelSet{}, nil
	})

	d := newTestRouter(empty, nil).Route(context.Background(), request(""))

	require.Equal(t, DecisionDispatch, d.Kind)
	assert.Equal(t, types.LabelGeneral, d.Task.Capability)
}

func TestRouter_UnroutedLabelFallsBackToGeneral(t *testing.T) {
	table, err := NewTable(map[types.IntentLabel]agent.ID{types.LabelGeneral: agent.IDDefault})
	require.NoError(t, err)
	r := NewRouter(fixed(types.LabelHotel), table, nil, DefaultConfig(), zap.NewNop(), nil)

	d := r.Route(context.Background(), request("hotel"))

	require.Equal(t, DecisionDispatch, d.Kind)
	assert.Equal(t, agent.IDDefault, d.Agent)
	assert.Equal(t, types.LabelGeneral, d.Task.Capability)
}

func handoff(from types.IntentLabel, text string) types.HandoffRequest {
	return types.HandoffRequest{ConversationID: "conv-1", FromCapability: from, Reason: "not mine", RemainingText: text}
}

func TestRouter_HandoffExcludesSource(t *testing.T) {
	r := newTestRouter(fixed(types.LabelFlight), nil)

	d := r.HandleHandoff(context.Background(), handoff(types.LabelFlight, "flight please"))

	require.Equal(t, DecisionDispatch, d.Kind)
	assert.Equal(t, types.LabelGeneral, d.Task.Capability)
	assert.Equal(t, "flight please", d.Task.Payload.Text)
}

func TestRouter_HandoffExpandsPlanWithoutSource(t *testing.T) {
	r := newTestRouter(fixed(types.LabelMulti), nil)

	d := r.HandleHandoff(context.Background(), handoff(types.LabelCar, "my whole travel plan"))

	require.Equal(t, DecisionDelegate, d.Kind)
	assert.Equal(t,
		[]types.IntentLabel{types.LabelFlight, types.LabelHotel, types.LabelActivities, types.LabelDestination},
		d.Labels.Labels())
}

func TestRouter_HandoffFromGeneralWithNothingLeft(t *testing.T) {
	r := newTestRouter(fixed(types.LabelGeneral), nil)

	d := r.HandleHandoff(context.Background(), handoff(types.LabelGeneral, "???"))

	require.Equal(t, DecisionTerminate, d.Kind)
	assert.Equal(t, types.OutcomeUnservable, d.Answer.Outcome)
}

func TestRouter_HandoffBound(t *testing.T) {
	r := newTestRouter(fixed(types.LabelHotel), nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d := r.HandleHandoff(ctx, handoff(types.LabelFlight, "hotel"))
		require.Equal(t, DecisionDispatch, d.Kind, "handoff %d", i)
	}

	d := r.HandleHandoff(ctx, handoff(types.LabelFlight, "hotel"))
	require.Equal(t, DecisionTerminate, d.Kind)
	assert.Equal(t, types.OutcomeUnservable, d.Answer.Outcome)
	assert.Equal(t, types.ConversationID("conv-1"), d.Answer.ConversationID)
	assert.Equal(t, UnservableText, d.Answer.Text)

	var data struct {
		Error types.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(d.Answer.Data, &data))
	assert.Equal(t, types.ErrHandoffLoopExceeded, data.Error.Code)

	// 其他会话不受影响
	other := handoff(types.LabelFlight, "hotel")
	other.ConversationID = "conv-2"
	assert.Equal(t, DecisionDispatch, r.HandleHandoff(ctx, other).Kind)

	// 新一轮重新计数
	r.ResetHandoffs(ctx, "conv-1")
	assert.Equal(t, DecisionDispatch, r.HandleHandoff(ctx, handoff(types.LabelFlight, "hotel")).Kind)
}

func TestRouter_ZeroLimitTerminatesFirstHandoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HandoffLimit = 0
	r := NewRouter(fixed(types.LabelHotel), DefaultTable(), nil, cfg, zap.NewNop(), nil)

	d := r.HandleHandoff(context.Background(), handoff(types.LabelFlight, "hotel"))
	assert.Equal(t, DecisionTerminate, d.Kind)
}

type brokenCounters struct{}

func (brokenCounters) Incr(context.Context, types.ConversationID) (int, error) {
	return 0, errors.New("redis down")
}
func (brokenCounters) Reset(context.Context, types.ConversationID) error { return errors.New("redis down") }

func TestRouter_CounterFailureFallsBackToMemory(t *testing.T) {
	r := newTestRouter(fixed(types.LabelHotel), brokenCounters{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Equal(t, DecisionDispatch, r.HandleHandoff(ctx, handoff(types.LabelFlight, "hotel")).Kind)
	}
	assert.Equal(t, DecisionTerminate, r.HandleHandoff(ctx, handoff(types.LabelFlight, "hotel")).Kind)

	r.ResetHandoffs(ctx, "conv-1")
	assert.Equal(t, DecisionDispatch, r.HandleHandoff(ctx, handoff(types.LabelFlight, "hotel")).Kind)
}

func TestRouter_WithServiceClassifier(t *testing.T) {
	predictor := mocks.NewMockPredictor(
		intent.Prediction{Label: "hotel_booking", Confidence: 0.7},
		intent.Prediction{Label: "flight", Confidence: 0.9},
	)
	cfg := intent.DefaultServiceConfig()
	cfg.CacheTTL = 0
	r := newTestRouter(intent.NewServiceClassifier(predictor, cfg, zap.NewNop()), nil)
	ctx := context.Background()

	d := r.Route(ctx, request("fly me to Rome and find a room"))
	require.Equal(t, DecisionDelegate, d.Kind)
	assert.Equal(t, []types.IntentLabel{types.LabelFlight, types.LabelHotel}, d.Labels.Labels())

	predictor.WithPredictions(intent.Prediction{Label: "car_rental", Confidence: 1})
	d = r.Route(ctx, request("rent a car"))
	require.Equal(t, DecisionDispatch, d.Kind)
	assert.Equal(t, types.LabelCar, d.Task.Capability)

	predictor.WithError(errors.New("401 unauthorized"))
	d = r.Route(ctx, request("rent a car"))
	require.Equal(t, DecisionDispatch, d.Kind)
	assert.Equal(t, types.LabelGeneral, d.Task.Capability)
	assert.True(t, d.Degraded)

	assert.Equal(t, []string{"fly me to Rome and find a room", "rent a car", "rent a car"}, predictor.Calls())
}

// flakyBackend fails every second Incr without counting it.
type flakyBackend struct {
	calls  int
	counts map[string]int64
}

func (b *flakyBackend) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	b.calls++
	if b.calls%2 == 0 {
		return 0, errors.New("redis timeout")
	}
	if b.counts == nil {
		b.counts = make(map[string]int64)
	}
	b.counts[key]++
	return b.counts[key], nil
}

func (b *flakyBackend) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(b.counts, k)
	}
	return nil
}

func TestRouter_FlakyCounterStoreKeepsBound(t *testing.T) {
	r := newTestRouter(fixed(types.LabelHotel), NewRedisCounterStore(&flakyBackend{}, time.Minute, nil))
	ctx := context.Background()

	terminatedAt := 0
	for i := 1; i <= 10; i++ {
		if r.HandleHandoff(ctx, handoff(types.LabelFlight, "hotel")).Kind == DecisionTerminate {
			terminatedAt = i
			break
		}
	}
	assert.Equal(t, r.HandoffLimit()+1, terminatedAt)
}

func TestRouter_SharedStoreCountWins(t *testing.T) {
	backend := &flakyBackend{counts: map[string]int64{"handoff:conv-1": 3}}
	r := newTestRouter(fixed(types.LabelHotel), NewRedisCounterStore(backend, time.Minute, nil))

	d := r.HandleHandoff(context.Background(), handoff(types.LabelFlight, "hotel"))

	assert.Equal(t, DecisionTerminate, d.Kind)
}

func TestProperty_Router_SingleLabelNeverDelegates(t *testing.T) {
	capabilities := []types.IntentLabel{
		types.LabelFlight, types.LabelHotel, types.LabelCar,
		types.LabelActivities, types.LabelDestination, types.LabelGeneral,
	}
	table := DefaultTable()

	rapid.Check(t, func(rt *rapid.T) {
		label := rapid.SampledFrom(capabilities).Draw(rt, "label")
		text := rapid.String().Draw(rt, "text")
		r := NewRouter(fixed(label), table, nil, DefaultConfig(), zap.NewNop(), nil)

		d := r.Route(context.Background(), request(text))

		if d.Kind != DecisionDispatch {
			rt.Fatalf("single label %s produced %s", label, d.Kind)
		}
		want, _ := table.Lookup(label)
		if d.Agent != want || d.Task.Capability != label {
			rt.Fatalf("label %s routed to %s/%s", label, d.Agent, d.Task.Capability)
		}
	})
}

func TestProperty_Router_MultiLabelAlwaysDelegates(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		labels := rapid.SliceOfNDistinct(rapid.SampledFrom(types.AllLabels()), 2, 7, rapid.ID[types.IntentLabel]).Draw(rt, "labels")
		r := newTestRouter(fixed(labels...), nil)

		d := r.Route(context.Background(), request("x"))

		if d.Kind != DecisionDelegate {
			rt.Fatalf("labels %v produced %s", labels, d.Kind)
		}
	})
}
