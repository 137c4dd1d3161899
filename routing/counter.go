package routing

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/types"
)

// CounterStore keeps the per-conversation handoff count.
type CounterStore interface {
	// Incr adds one handoff and returns the new count.
	Incr(ctx context.Context, id types.ConversationID) (int, error)
	// Reset clears the count, at the start of a turn or when the conversation ends.
	Reset(ctx context.Context, id types.ConversationID) error
}

// MemoryCounterStore is the default in-process store. Each key is only
// touched by its conversation's worker.
type MemoryCounterStore struct {
	mu     sync.Mutex
	counts map[types.ConversationID]int
}

// NewMemoryCounterStore creates an empty store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counts: make(map[types.ConversationID]int)}
}

// Incr implements CounterStore.
func (s *MemoryCounterStore) Incr(_ context.Context, id types.ConversationID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[id]++
	return s.counts[id], nil
}

// Reset implements CounterStore.
func (s *MemoryCounterStore) Reset(_ context.Context, id types.ConversationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, id)
	return nil
}

// Len reports how many conversations hold a non-zero count.
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}

// CounterBackend is the subset of cache.Manager the Redis store needs.
type CounterBackend interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, keys ...string) error
}

// RedisCounterStore keeps counts in Redis under "handoff:<conversation>" so
// they survive a worker restart within the TTL.
type RedisCounterStore struct {
	backend CounterBackend
	ttl     time.Duration
	metrics *metrics.Collector
}

// NewRedisCounterStore wraps backend. ttl bounds how long an idle
// conversation's count lives.
func NewRedisCounterStore(backend CounterBackend, ttl time.Duration, collector *metrics.Collector) *RedisCounterStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCounterStore{backend: backend, ttl: ttl, metrics: collector}
}

func counterKey(id types.ConversationID) string {
	return "handoff:" + string(id)
}

// Incr implements CounterStore.
func (s *RedisCounterStore) Incr(ctx context.Context, id types.ConversationID) (int, error) {
	n, err := s.backend.Incr(ctx, counterKey(id), s.ttl)
	s.metrics.RecordStoreOperation("redis", "incr", err)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Reset implements CounterStore.
func (s *RedisCounterStore) Reset(ctx context.Context, id types.ConversationID) error {
	err := s.backend.Delete(ctx, counterKey(id))
	s.metrics.RecordStoreOperation("redis", "delete", err)
	return err
}
