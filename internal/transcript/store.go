package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/tripflow/conversation"
	"github.com/BaSui01/tripflow/internal/database"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	writeRetries     = 3
)

// Transcript is one row of turn_transcripts.
type Transcript struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ConversationID string    `gorm:"column:conversation_id;size:64;not null" json:"conversation_id"`
	TurnID         string    `gorm:"column:turn_id;size:64;not null" json:"turn_id"`
	RequestText    string    `gorm:"column:request_text;not null" json:"request"`
	AnswerText     string    `gorm:"column:answer_text;not null" json:"answer"`
	Outcome        string    `gorm:"column:outcome;size:32;not null" json:"outcome"`
	Sections       string    `gorm:"column:sections;not null" json:"-"`
	States         string    `gorm:"column:states;size:512" json:"-"`
	Handoffs       int       `gorm:"column:handoffs" json:"handoffs"`
	StartedAt      time.Time `gorm:"column:started_at;not null" json:"started_at"`
	DurationMS     int64     `gorm:"column:duration_ms" json:"duration_ms"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName implements gorm's tabler.
func (Transcript) TableName() string { return "turn_transcripts" }

// StateList splits the stored turn states.
func (t Transcript) StateList() []string {
	if t.States == "" {
		return nil
	}
	return strings.Split(t.States, ",")
}

// SectionList decodes the stored answer sections.
func (t Transcript) SectionList() ([]types.Section, error) {
	if t.Sections == "" {
		return nil, nil
	}
	var sections []types.Section
	if err := json.Unmarshal([]byte(t.Sections), &sections); err != nil {
		return nil, fmt.Errorf("decode sections of turn %s: %w", t.TurnID, err)
	}
	return sections, nil
}

// Pool is the part of database.PoolManager the store uses.
type Pool interface {
	DB() *gorm.DB
	WithTransactionRetry(ctx context.Context, maxRetries int, fn database.TransactionFunc) error
}

// Store writes and reads transcripts.
type Store struct {
	pool    Pool
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewStore creates a Store on top of an open pool. The schema is owned by
// internal/migration.
func NewStore(pool Pool, logger *zap.Logger, collector *metrics.Collector) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:    pool,
		logger:  logger.With(zap.String("component", "transcript_store")),
		metrics: collector,
	}
}

var _ conversation.Recorder = (*Store)(nil)

// Record implements conversation.Recorder. Writing the same turn twice is a no-op.
func (s *Store) Record(ctx context.Context, rec conversation.TurnRecord) error {
	row, err := fromRecord(rec)
	if err != nil {
		return err
	}
	err = s.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "turn_id"}},
			DoNothing: true,
		}).Create(&row).Error
	})
	s.metrics.RecordStoreOperation("database", "insert", err)
	if err != nil {
		return fmt.Errorf("record turn %s: %w", rec.TurnID, err)
	}
	s.logger.Debug("turn recorded",
		zap.String("conversation_id", row.ConversationID),
		zap.String("turn_id", row.TurnID),
		zap.String("outcome", row.Outcome))
	return nil
}

// List returns a conversation's turns, oldest first. limit <= 0 uses the default.
func (s *Store) List(ctx context.Context, id types.ConversationID, limit int) ([]Transcript, error) {
	if id == "" {
		return nil, errors.New("conversation id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var rows []Transcript
	err := s.pool.DB().WithContext(ctx).
		Where("conversation_id = ?", string(id)).
		Order("started_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	s.metrics.RecordStoreOperation("database", "select", err)
	if err != nil {
		return nil, fmt.Errorf("list transcripts of %s: %w", id, err)
	}
	return rows, nil
}

// CountByOutcome aggregates stored turns per outcome.
func (s *Store) CountByOutcome(ctx context.Context) (map[types.Outcome]int64, error) {
	var rows []struct {
		Outcome string
		N       int64
	}
	err := s.pool.DB().WithContext(ctx).
		Model(&Transcript{}).
		Select("outcome, COUNT(*) AS n").
		Group("outcome").
		Scan(&rows).Error
	s.metrics.RecordStoreOperation("database", "aggregate", err)
	if err != nil {
		return nil, fmt.Errorf("count transcripts: %w", err)
	}
	out := make(map[types.Outcome]int64, len(rows))
	for _, r := range rows {
		out[types.Outcome(r.Outcome)] = r.N
	}
	return out, nil
}

func fromRecord(rec conversation.TurnRecord) (Transcript, error) {
	sections := rec.Answer.Sections
	if sections == nil {
		sections = []types.Section{}
	}
	raw, err := json.Marshal(sections)
	if err != nil {
		return Transcript{}, fmt.Errorf("encode sections of turn %s: %w", rec.TurnID, err)
	}
	states := make([]string, len(rec.States))
	for i, st := range rec.States {
		states[i] = string(st)
	}
	return Transcript{
		ConversationID: string(rec.ConversationID),
		TurnID:         rec.TurnID,
		RequestText:    rec.Request.Text,
		AnswerText:     rec.Answer.Text,
		Outcome:        string(rec.Answer.Outcome),
		Sections:       string(raw),
		States:         strings.Join(states, ","),
		Handoffs:       rec.Handoffs,
		StartedAt:      rec.StartedAt.UTC(),
		DurationMS:     rec.Duration.Milliseconds(),
	}, nil
}
