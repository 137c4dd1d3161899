package transcript

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/BaSui01/tripflow/config"
	"github.com/BaSui01/tripflow/conversation"
	"github.com/BaSui01/tripflow/internal/database"
	"github.com/BaSui01/tripflow/internal/migration"
	"github.com/BaSui01/tripflow/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.DefaultDatabaseConfig()
	cfg.Driver = "sqlite"
	cfg.Name = filepath.Join(t.TempDir(), "transcripts.db")

	m, err := migration.NewMigratorFromDatabaseConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))
	require.NoError(t, m.Close())

	pool, err := database.Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	return NewStore(pool, zaptest.NewLogger(t), nil)
}

func turnRecord(conv, turn, text string, outcome types.Outcome, started time.Time) conversation.TurnRecord {
	return conversation.TurnRecord{
		ConversationID: types.ConversationID(conv),
		TurnID:         turn,
		Request:        types.UserRequest{ConversationID: types.ConversationID(conv), Text: text},
		Answer: types.FinalAnswer{
			ConversationID: types.ConversationID(conv),
			Text:           text + " answered",
			Outcome:        outcome,
			Sections: []types.Section{
				{Capability: types.LabelFlight, Available: true, Text: "flight booked"},
			},
		},
		States:    []conversation.TurnState{conversation.StateRouting, conversation.StateDispatched, conversation.StateCompleted},
		Handoffs:  1,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}
}

func TestStore_RecordAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, turnRecord("c1", "t2", "second", types.OutcomePartial, base.Add(time.Minute))))
	require.NoError(t, store.Record(ctx, turnRecord("c1", "t1", "first", types.OutcomeCompleted, base)))
	require.NoError(t, store.Record(ctx, turnRecord("c2", "t3", "other", types.OutcomeCompleted, base)))

	rows, err := store.List(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "t1", first.TurnID)
	assert.Equal(t, "first", first.RequestText)
	assert.Equal(t, "first answered", first.AnswerText)
	assert.Equal(t, string(types.OutcomeCompleted), first.Outcome)
	assert.Equal(t, []string{"routing", "dispatched", "completed"}, first.StateList())
	assert.Equal(t, int64(1500), first.DurationMS)
	assert.Equal(t, 1, first.Handoffs)

	sections, err := first.SectionList()
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, types.LabelFlight, sections[0].Capability)

	assert.Equal(t, "t2", rows[1].TurnID)

	limited, err := store.List(ctx, "c1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = store.List(ctx, "", 0)
	assert.Error(t, err)
}

func TestStore_RecordIsIdempotentPerTurn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := turnRecord("c1", "t1", "hello", types.OutcomeGreeting, time.Now())

	require.NoError(t, store.Record(ctx, rec))
	require.NoError(t, store.Record(ctx, rec))

	rows, err := store.List(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_CountByOutcome(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Record(ctx, turnRecord("c1", "t1", "a", types.OutcomeCompleted, now)))
	require.NoError(t, store.Record(ctx, turnRecord("c1", "t2", "b", types.OutcomeCompleted, now)))
	require.NoError(t, store.Record(ctx, turnRecord("c2", "t3", "c", types.OutcomeUnservable, now)))

	counts, err := store.CountByOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[types.OutcomeCompleted])
	assert.Equal(t, int64(1), counts[types.OutcomeUnservable])
}

type failingPool struct{ db *gorm.DB }

func (p failingPool) DB() *gorm.DB { return p.db }

func (failingPool) WithTransactionRetry(context.Context, int, database.TransactionFunc) error {
	return errors.New("database is locked")
}

func TestStore_RecordError(t *testing.T) {
	store := NewStore(failingPool{}, nil, nil)
	err := store.Record(context.Background(), turnRecord("c1", "t1", "x", types.OutcomeFailed, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record turn t1")
}

func TestTranscript_EmptyFields(t *testing.T) {
	var tr Transcript
	assert.Nil(t, tr.StateList())
	sections, err := tr.SectionList()
	require.NoError(t, err)
	assert.Nil(t, sections)

	tr.Sections = "{broken"
	_, err = tr.SectionList()
	assert.Error(t, err)
}
