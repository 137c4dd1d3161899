package transcript

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/conversation"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/internal/pool"
)

// Writer hands turn records to a background worker pool so a slow database
// never holds up the conversation that produced them. Records that do not
// fit in the queue are dropped and counted.
type Writer struct {
	next    conversation.Recorder
	workers *pool.WorkerPool
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector
}

// WriterConfig 后台写入配置
type WriterConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds one write, detached from the turn's context.
	Timeout time.Duration
}

// NewWriter wraps next, usually a *Store.
func NewWriter(next conversation.Recorder, config WriterConfig, logger *zap.Logger, collector *metrics.Collector) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	logger = logger.With(zap.String("component", "transcript_writer"))
	return &Writer{
		next: next,
		workers: pool.New(pool.Config{
			Name:       "transcripts",
			MaxWorkers: config.Workers,
			QueueSize:  config.QueueSize,
		}, logger),
		timeout: config.Timeout,
		logger:  logger,
		metrics: collector,
	}
}

var _ conversation.Recorder = (*Writer)(nil)

// Record queues rec and returns immediately.
func (w *Writer) Record(ctx context.Context, rec conversation.TurnRecord) error {
	err := w.workers.Submit(context.WithoutCancel(ctx), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		if err := w.next.Record(ctx, rec); err != nil {
			w.logger.Warn("write transcript failed",
				zap.String("conversation_id", string(rec.ConversationID)),
				zap.String("turn_id", rec.TurnID),
				zap.Error(err))
			return err
		}
		return nil
	})
	if errors.Is(err, pool.ErrPoolFull) {
		w.metrics.RecordStoreOperation("database", "dropped", err)
		w.logger.Warn("transcript queue full, dropping turn",
			zap.String("conversation_id", string(rec.ConversationID)),
			zap.String("turn_id", rec.TurnID))
	}
	return err
}

// Stats reports queue and worker counters.
func (w *Writer) Stats() pool.Stats { return w.workers.Stats() }

// Close flushes queued records until ctx expires.
func (w *Writer) Close(ctx context.Context) error {
	return w.workers.Close(ctx)
}
