package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/agent/bus"
	"github.com/BaSui01/tripflow/api"
	"github.com/BaSui01/tripflow/config"
	"github.com/BaSui01/tripflow/conversation"
	"github.com/BaSui01/tripflow/coordination"
	"github.com/BaSui01/tripflow/intent"
	"github.com/BaSui01/tripflow/internal/transcript"
	"github.com/BaSui01/tripflow/routing"
	"github.com/BaSui01/tripflow/testutil"
	"github.com/BaSui01/tripflow/types"
)

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Success bool       `json:"success"`
		Data    T          `json:"data"`
		Error   *ErrorInfo `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success, "error: %+v", resp.Error)
	return resp.Data
}

// =============================================================================
// 🧪 CapabilityHandler
// =============================================================================

func TestCapabilityHandler_HandleList(t *testing.T) {
	plan := types.DefaultTripPlan()
	h := NewCapabilityHandler(routing.DefaultTable(), plan, 3)

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/capabilities", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeData[api.CapabilitiesResponse](t, w)
	assert.Equal(t, 3, resp.HandoffLimit)
	assert.Equal(t, plan, resp.TripPlan)
	require.Len(t, resp.Capabilities, 6)

	byLabel := make(map[types.IntentLabel]api.CapabilityInfo)
	for _, c := range resp.Capabilities {
		byLabel[c.Label] = c
	}
	assert.Equal(t, string(agent.IDCarRental), byLabel[types.LabelCar].Agent)
	assert.True(t, byLabel[types.LabelCar].InTripPlan)
	assert.False(t, byLabel[types.LabelGeneral].InTripPlan)
}

// =============================================================================
// 🧪 ConversationHandler
// =============================================================================

func newLiveManager(t *testing.T) *conversation.Manager {
	t.Helper()
	sim := agent.DefaultSimulationConfig()
	sim.Seed = 7
	b, err := bus.New(agent.NewTravelAgents(sim, intent.IsGreeting, zap.NewNop()), bus.DefaultConfig(), zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, b.Start())
	t.Cleanup(func() { _ = b.Close() })

	table := routing.DefaultTable()
	router := routing.NewRouter(intent.NewRuleClassifier(intent.DefaultRuleConfig()), table, nil, routing.DefaultConfig(), nil, nil)
	coord := coordination.NewCoordinator(b, table, coordination.DefaultConfig(), nil, nil)
	m := conversation.NewManager(router, coord, b, nil, conversation.Config{}, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

type fakeTranscripts struct {
	rows   []transcript.Transcript
	counts map[types.Outcome]int64
	err    error
	limit  int
}

func (f *fakeTranscripts) List(_ context.Context, _ types.ConversationID, limit int) ([]transcript.Transcript, error) {
	f.limit = limit
	return f.rows, f.err
}

func (f *fakeTranscripts) CountByOutcome(context.Context) (map[types.Outcome]int64, error) {
	return f.counts, f.err
}

func serveHistory(h *ConversationHandler, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/conversations/{id}/history", h.HandleHistory)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestConversationHandler_LiveHistory(t *testing.T) {
	m := newLiveManager(t)
	ctx := testutil.TestContext(t)
	conv, err := m.Open(ctx, "live-1")
	require.NoError(t, err)

	require.NoError(t, conv.Submit(ctx, types.UserRequest{ConversationID: "live-1", Text: "book a flight to Tokyo"}))
	_, ok := testutil.WaitForChannel(conv.Answers(), 5*time.Second)
	require.True(t, ok)
	testutil.AssertEventuallyTrue(t, func() bool { return len(conv.History()) >= 2 }, 2*time.Second)

	h := NewConversationHandler(m, nil, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))
	assert.Equal(t, 1, decodeData[api.ConversationsResponse](t, w).Active)

	w = serveHistory(h, "/api/v1/conversations/live-1/history")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeData[api.ConversationHistoryResponse](t, w)
	assert.Equal(t, api.HistoryLive, resp.Source)
	assert.Equal(t, types.ConversationID("live-1"), resp.ConversationID)

	var sawUser bool
	for _, e := range resp.Entries {
		if e.Role == string(conversation.RoleUser) && e.Text == "book a flight to Tokyo" {
			sawUser = true
		}
	}
	assert.True(t, sawUser)
}

func TestConversationHandler_StoredHistory(t *testing.T) {
	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeTranscripts{rows: []transcript.Transcript{{
		ConversationID: "gone",
		TurnID:         "t1",
		RequestText:    "I need to rent a car in Paris",
		AnswerText:     "Car booked",
		Outcome:        string(types.OutcomeCompleted),
		StartedAt:      started,
		DurationMS:     250,
	}}}
	h := NewConversationHandler(newLiveManager(t), store, nil)

	w := serveHistory(h, "/api/v1/conversations/gone/history?limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, store.limit)

	resp := decodeData[api.ConversationHistoryResponse](t, w)
	assert.Equal(t, api.HistoryStored, resp.Source)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "user", resp.Entries[0].Role)
	assert.Equal(t, "assistant", resp.Entries[1].Role)
	assert.Equal(t, types.OutcomeCompleted, resp.Entries[1].Outcome)
	assert.Equal(t, started.Add(250*time.Millisecond), resp.Entries[1].At.UTC())
}

func TestConversationHandler_HistoryErrors(t *testing.T) {
	m := newLiveManager(t)

	w := serveHistory(NewConversationHandler(m, nil, nil), "/api/v1/conversations/unknown/history")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serveHistory(NewConversationHandler(m, &fakeTranscripts{}, nil), "/api/v1/conversations/unknown/history")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serveHistory(NewConversationHandler(m, &fakeTranscripts{}, nil), "/api/v1/conversations/x/history?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serveHistory(NewConversationHandler(m, &fakeTranscripts{err: errors.New("db down")}, nil), "/api/v1/conversations/x/history")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrServiceUnavailable))
}

func TestConversationHandler_HandleStats(t *testing.T) {
	m := newLiveManager(t)

	w := httptest.NewRecorder()
	NewConversationHandler(m, nil, nil).HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/transcripts/stats", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	store := &fakeTranscripts{counts: map[types.Outcome]int64{types.OutcomeCompleted: 3, types.OutcomePartial: 1}}
	w = httptest.NewRecorder()
	NewConversationHandler(m, store, nil).HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/transcripts/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeData[api.OutcomeStatsResponse](t, w)
	assert.Equal(t, int64(4), resp.Total)
	assert.Equal(t, int64(3), resp.Outcomes[types.OutcomeCompleted])
}

// =============================================================================
// 🧪 AdminHandler
// =============================================================================

type fakeSource struct {
	cfg     *config.Config
	version int
	changes []config.Change
	err     error
}

func (f *fakeSource) Current() *config.Config { return f.cfg }
func (f *fakeSource) Version() int            { return f.version }
func (f *fakeSource) Reload() ([]config.Change, error) {
	if f.err == nil {
		f.version++
	}
	return f.changes, f.err
}

func TestAdminHandler_ConfigIsSanitized(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Password = "hunter2"
	cfg.Auth.JWT.Secret = "jwt-secret"
	h := NewAdminHandler(&fakeSource{cfg: cfg}, zap.NewAtomicLevel(), nil)

	w := httptest.NewRecorder()
	h.HandleConfig(w, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, "hunter2")
	assert.NotContains(t, body, "jwt-secret")
	assert.Contains(t, body, "handoff_limit")
}

func TestAdminHandler_Reload(t *testing.T) {
	src := &fakeSource{cfg: config.DefaultConfig(), changes: []config.Change{{Path: "Log.Level"}}}
	h := NewAdminHandler(src, zap.NewAtomicLevel(), nil)

	w := httptest.NewRecorder()
	h.HandleReload(w, httptest.NewRequest(http.MethodPost, "/api/v1/config/reload", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeData[api.ReloadResponse](t, w)
	assert.Equal(t, int64(1), resp.Version)
	assert.Equal(t, []string{"Log.Level"}, resp.Changes)

	src.err = config.ErrNoConfigFile
	w = httptest.NewRecorder()
	h.HandleReload(w, httptest.NewRequest(http.MethodPost, "/api/v1/config/reload", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	src.err = errors.New("config validation errors: invalid HTTP port")
	w = httptest.NewRecorder()
	h.HandleReload(w, httptest.NewRequest(http.MethodPost, "/api/v1/config/reload", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_LogLevel(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	h := NewAdminHandler(&fakeSource{cfg: config.DefaultConfig()}, level, nil)

	put := func(body, contentType string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPut, "/api/v1/log/level", strings.NewReader(body))
		r.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		h.HandleLogLevel(w, r)
		return w
	}

	w := put(`{"level":"DEBUG"}`, "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "debug", decodeData[api.LogLevelResponse](t, w).Level)
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	assert.Equal(t, http.StatusBadRequest, put(`{"level":"loud"}`, "application/json").Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, put(`{"level":"warn"}`, "text/plain").Code)
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	w = httptest.NewRecorder()
	h.HandleLogLevel(w, httptest.NewRequest(http.MethodGet, "/api/v1/log/level", nil))
	assert.Equal(t, "debug", decodeData[api.LogLevelResponse](t, w).Level)
}
