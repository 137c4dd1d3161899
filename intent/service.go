package intent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/tripflow/types"
	"go.uber.org/zap"
)

// Prediction is one raw label proposed by an intent-understanding service.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Predictor is a pluggable intent-understanding service.
type Predictor interface {
	Predict(ctx context.Context, text string) ([]Prediction, error)
}

// ServiceConfig configures ServiceClassifier.
type ServiceConfig struct {
	// Timeout bounds one Predict call.
	Timeout time.Duration
	// CacheTTL keeps normalized results per text; zero disables caching.
	CacheTTL time.Duration
	// MinConfidence drops weaker predictions when at least one stronger exists.
	MinConfidence float64
	Breaker       BreakerConfig
	// OnBreakerStateChange is invoked synchronously; keep it cheap.
	OnBreakerStateChange func(from, to BreakerState)
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Timeout:       5 * time.Second,
		CacheTTL:      5 * time.Minute,
		MinConfidence: 0.3,
		Breaker:       DefaultBreakerConfig(),
	}
}

// ServiceClassifier normalizes a Predictor's output into the closed label set.
// Any predictor failure yields {general} together with a CLASSIFICATION_ERROR.
type ServiceClassifier struct {
	predictor Predictor
	config    ServiceConfig
	breaker   *breaker
	cache     *classificationCache
	logger    *zap.Logger
}

// NewServiceClassifier creates a classifier backed by predictor.
func NewServiceClassifier(predictor Predictor, config ServiceConfig, logger *zap.Logger) *ServiceClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "intent_service"))
	if config.Timeout <= 0 {
		config.Timeout = DefaultServiceConfig().Timeout
	}
	b := newBreaker(config.Breaker, logger)
	b.onStateChange = config.OnBreakerStateChange

	c := &ServiceClassifier{
		predictor: predictor,
		config:    config,
		breaker:   b,
		logger:    logger,
	}
	if config.CacheTTL > 0 {
		c.cache = newClassificationCache(config.CacheTTL)
	}
	return c
}

// Classify implements Classifier.
func (c *ServiceClassifier) Classify(ctx context.Context, text string) (types.LabelSet, error) {
	key := cacheKey(text)
	if key == "" {
		return types.GeneralOnly(), nil
	}
	if c.cache != nil {
		if cached, ok := c.cache.get(key); ok {
			return cached, nil
		}
	}

	var preds []Prediction
	err := c.breaker.call(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		var err error
		preds, err = c.predictor.Predict(callCtx, text)
		return err
	})
	if err != nil {
		c.logger.Warn("intent prediction failed, degrading to general", zap.Error(err))
		return types.GeneralOnly(), types.NewError(types.ErrClassification, "intent service unavailable").WithCause(err)
	}

	labels := Normalize(preds, c.config.MinConfidence)
	if c.cache != nil {
		c.cache.set(key, labels)
	}
	c.logger.Debug("classified intent",
		zap.String("labels", labels.String()),
		zap.Int("predictions", len(preds)),
	)
	return labels, nil
}

// BreakerState exposes the predictor circuit state for health reporting.
func (c *ServiceClassifier) BreakerState() BreakerState {
	return c.breaker.State()
}

// Normalize ranks predictions by confidence (ties in canonical order), maps
// unknown labels to general and removes duplicates. It never returns an empty set.
func Normalize(preds []Prediction, minConfidence float64) types.LabelSet {
	type ranked struct {
		label      types.IntentLabel
		confidence float64
	}
	all := make([]ranked, 0, len(preds))
	strong := 0
	for _, p := range preds {
		label, _ := types.ParseLabel(p.Label)
		all = append(all, ranked{label: label, confidence: p.Confidence})
		if p.Confidence >= minConfidence {
			strong++
		}
	}
	if strong > 0 && strong < len(all) {
		kept := all[:0]
		for _, r := range all {
			if r.confidence >= minConfidence {
				kept = append(kept, r)
			}
		}
		all = kept
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].confidence != all[j].confidence {
			return all[i].confidence > all[j].confidence
		}
		return all[i].label.Rank() < all[j].label.Rank()
	})

	labels := make([]types.IntentLabel, len(all))
	for i, r := range all {
		labels[i] = r.label
	}
	set := types.NewLabelSet(labels...)
	if set.Empty() {
		return types.GeneralOnly()
	}
	return set
}

// cacheKey hashes the whole normalized text; empty text yields "".
func cacheKey(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// Classification cache
// =============================================================================

const defaultCacheEntries = 1024

type classificationCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	seq        uint64
}

type cacheEntry struct {
	labels    types.LabelSet
	expiresAt time.Time
	seq       uint64
}

func newClassificationCache(ttl time.Duration) *classificationCache {
	return &classificationCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: defaultCacheEntries,
	}
}

func (c *classificationCache) get(key string) (types.LabelSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return types.LabelSet{}, false
	}
	return entry.labels, true
}

func (c *classificationCache) set(key string, labels types.LabelSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	c.seq++
	c.entries[key] = cacheEntry{labels: labels, expiresAt: now.Add(c.ttl), seq: c.seq}
}

// evict drops expired entries, then the oldest write if the cache is still full.
// Caller holds mu.
func (c *classificationCache) evict(now time.Time) {
	var (
		oldestKey string
		oldestSeq uint64
	)
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.seq < oldestSeq {
			oldestKey, oldestSeq = k, e.seq
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *classificationCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
