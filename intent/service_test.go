package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/tripflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

type stubPredictor struct {
	calls atomic.Int32
	preds []Prediction
	err   error
	delay time.Duration
}

func (s *stubPredictor) Predict(ctx context.Context, _ string) ([]Prediction, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.preds, s.err
}

func TestServiceClassifier_NormalizesPredictions(t *testing.T) {
	p := &stubPredictor{preds: []Prediction{
		{Label: "hotel", Confidence: 0.6},
		{Label: "flight_booking", Confidence: 0.9},
		{Label: "submarine", Confidence: 0.5},
		{Label: "hotel", Confidence: 0.4},
		{Label: "car", Confidence: 0.1},
	}}
	c := NewServiceClassifier(p, DefaultServiceConfig(), zaptest.NewLogger(t))

	labels, err := c.Classify(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, []types.IntentLabel{types.LabelFlight, types.LabelHotel, types.LabelGeneral}, labels.Labels())
}

func TestServiceClassifier_FailureDegradesToGeneral(t *testing.T) {
	p := &stubPredictor{err: errors.New("connection refused")}
	c := NewServiceClassifier(p, DefaultServiceConfig(), zaptest.NewLogger(t))

	labels, err := c.Classify(context.Background(), "book a flight")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrClassification))
	assert.Equal(t, []types.IntentLabel{types.LabelGeneral}, labels.Labels())
}

func TestServiceClassifier_EmptyTextSkipsPredictor(t *testing.T) {
	p := &stubPredictor{preds: []Prediction{{Label: "flight", Confidence: 1}}}
	c := NewServiceClassifier(p, DefaultServiceConfig(), nil)

	labels, err := c.Classify(context.Background(), "  \n ")
	require.NoError(t, err)
	assert.Equal(t, []types.IntentLabel{types.LabelGeneral}, labels.Labels())
	assert.Zero(t, p.calls.Load())
}

func TestServiceClassifier_Timeout(t *testing.T) {
	p := &stubPredictor{preds: []Prediction{{Label: "flight", Confidence: 1}}, delay: time.Second}
	cfg := DefaultServiceConfig()
	cfg.Timeout = 20 * time.Millisecond
	c := NewServiceClassifier(p, cfg, zaptest.NewLogger(t))

	labels, err := c.Classify(context.Background(), "book a flight")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, types.LabelGeneral, labels.First())
}

func TestServiceClassifier_CachesByNormalizedText(t *testing.T) {
	p := &stubPredictor{preds: []Prediction{{Label: "car", Confidence: 1}}}
	c := NewServiceClassifier(p, DefaultServiceConfig(), zaptest.NewLogger(t))

	_, err := c.Classify(context.Background(), "Rent a car")
	require.NoError(t, err)
	labels, err := c.Classify(context.Background(), "  rent   A car ")
	require.NoError(t, err)

	assert.Equal(t, types.LabelCar, labels.First())
	assert.Equal(t, int32(1), p.calls.Load())
}

type suffixPredictor struct{}

func (suffixPredictor) Predict(_ context.Context, text string) ([]Prediction, error) {
	if strings.HasSuffix(text, "hotel") {
		return []Prediction{{Label: "hotel", Confidence: 1}}, nil
	}
	return []Prediction{{Label: "flight", Confidence: 1}}, nil
}

func TestServiceClassifier_LongTextsSharingPrefixAreDistinct(t *testing.T) {
	c := NewServiceClassifier(suffixPredictor{}, DefaultServiceConfig(), zaptest.NewLogger(t))
	prefix := strings.Repeat("we are travelling somewhere nice ", 10)
	require.Greater(t, len(prefix), 256)

	first, err := c.Classify(context.Background(), prefix+" flight")
	require.NoError(t, err)
	second, err := c.Classify(context.Background(), prefix+" hotel")
	require.NoError(t, err)

	assert.Equal(t, types.LabelFlight, first.First())
	assert.Equal(t, types.LabelHotel, second.First())
}

func TestClassificationCache_BoundedSize(t *testing.T) {
	cache := newClassificationCache(time.Minute)
	cache.maxEntries = 3

	for i := 0; i < 10; i++ {
		cache.set(fmt.Sprintf("k%d", i), types.GeneralOnly())
	}
	assert.Equal(t, 3, cache.len())

	_, ok := cache.get("k9")
	assert.True(t, ok, "newest entry is kept")
	_, ok = cache.get("k0")
	assert.False(t, ok, "oldest entry is evicted")

	cache.set("k9", types.NewLabelSet(types.LabelCar))
	assert.Equal(t, 3, cache.len())
}

func TestServiceClassifier_BreakerOpensAndRecovers(t *testing.T) {
	p := &stubPredictor{err: errors.New("503")}
	cfg := DefaultServiceConfig()
	cfg.CacheTTL = 0
	cfg.Breaker = BreakerConfig{Threshold: 2, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1}

	var transitions []BreakerState
	cfg.OnBreakerStateChange = func(_, to BreakerState) { transitions = append(transitions, to) }
	c := NewServiceClassifier(p, cfg, zaptest.NewLogger(t))

	now := time.Now()
	c.breaker.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, _ = c.Classify(context.Background(), "flight")
	}
	assert.Equal(t, BreakerOpen, c.BreakerState())

	_, err := c.Classify(context.Background(), "flight")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), p.calls.Load())

	// after the reset window a successful probe closes the circuit
	now = now.Add(2 * time.Minute)
	p.err = nil
	p.preds = []Prediction{{Label: "flight", Confidence: 1}}
	labels, err := c.Classify(context.Background(), "flight")
	require.NoError(t, err)
	assert.Equal(t, types.LabelFlight, labels.First())
	assert.Equal(t, BreakerClosed, c.BreakerState())
	assert.Equal(t, []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerClosed}, transitions)
}

func TestNormalize_EmptyPredictions(t *testing.T) {
	assert.Equal(t, []types.IntentLabel{types.LabelGeneral}, Normalize(nil, 0.5).Labels())
}

// TestProperty_Normalize_ClosedNonEmpty 任意预测输出经规范化后非空且只含封闭集合标签。
func TestProperty_Normalize_ClosedNonEmpty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(rt, "n")
		preds := make([]Prediction, n)
		for i := range preds {
			preds[i] = Prediction{
				Label:      rapid.OneOf(rapid.SampledFrom([]string{"flight", "hotel", "car", "multi", "general"}), rapid.String()).Draw(rt, "label"),
				Confidence: rapid.Float64Range(0, 1).Draw(rt, "confidence"),
			}
		}
		labels := Normalize(preds, rapid.Float64Range(0, 1).Draw(rt, "min"))
		if labels.Empty() {
			rt.Fatalf("empty normalization for %v", preds)
		}
		for _, l := range labels.Labels() {
			if !l.Valid() {
				rt.Fatalf("label %q outside closed set", l)
			}
		}
	})
}
