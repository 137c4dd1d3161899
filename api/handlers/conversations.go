package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/api"
	"github.com/BaSui01/tripflow/conversation"
	"github.com/BaSui01/tripflow/internal/transcript"
	"github.com/BaSui01/tripflow/types"
)

// LiveConversations 是 conversation.Manager 的只读视图
type LiveConversations interface {
	Get(id types.ConversationID) (*conversation.Conversation, bool)
	Len() int
}

// TranscriptReader 读取已持久化的轮次
type TranscriptReader interface {
	List(ctx context.Context, id types.ConversationID, limit int) ([]transcript.Transcript, error)
	CountByOutcome(ctx context.Context) (map[types.Outcome]int64, error)
}

// ConversationHandler 会话查询
type ConversationHandler struct {
	live        LiveConversations
	transcripts TranscriptReader
	logger      *zap.Logger
}

// NewConversationHandler transcripts 可以为 nil（未启用数据库）
func NewConversationHandler(live LiveConversations, transcripts TranscriptReader, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{
		live:        live,
		transcripts: transcripts,
		logger:      logger.With(zap.String("component", "conversation_api")),
	}
}

// HandleList 处理 GET /api/v1/conversations
// @Summary 活跃会话数
// @Tags conversation
// @Produce json
// @Success 200 {object} Response{data=api.ConversationsResponse}
// @Security ApiKeyAuth
// @Router /api/v1/conversations [get]
func (h *ConversationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, api.ConversationsResponse{Active: h.live.Len()})
}

// HandleHistory 处理 GET /api/v1/conversations/{id}/history。
// 活跃会话返回内存历史，否则回落到转录表。
// @Summary 会话历史
// @Tags conversation
// @Produce json
// @Param id path string true "Conversation ID"
// @Param limit query int false "最多返回的轮次（仅转录表）"
// @Success 200 {object} Response{data=api.ConversationHistoryResponse}
// @Failure 404 {object} Response
// @Security ApiKeyAuth
// @Router /api/v1/conversations/{id}/history [get]
func (h *ConversationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := types.ConversationID(r.PathValue("id"))
	if id == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "conversation id is required", h.logger)
		return
	}

	if conv, ok := h.live.Get(id); ok {
		WriteSuccess(w, r, api.ConversationHistoryResponse{
			ConversationID: id,
			Source:         api.HistoryLive,
			Entries:        fromLive(conv.History()),
		})
		return
	}

	if h.transcripts == nil {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "conversation not found", h.logger)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a positive integer", h.logger)
			return
		}
		limit = n
	}

	rows, err := h.transcripts.List(r.Context(), id, limit)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "transcript store unavailable").WithCause(err), h.logger)
		return
	}
	if len(rows) == 0 {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "conversation not found", h.logger)
		return
	}

	WriteSuccess(w, r, api.ConversationHistoryResponse{
		ConversationID: id,
		Source:         api.HistoryStored,
		Entries:        fromStored(rows),
	})
}

// HandleStats 处理 GET /api/v1/transcripts/stats
// @Summary 已持久化轮次统计
// @Tags conversation
// @Produce json
// @Success 200 {object} Response{data=api.OutcomeStatsResponse}
// @Failure 404 {object} Response "未启用转录"
// @Security ApiKeyAuth
// @Router /api/v1/transcripts/stats [get]
func (h *ConversationHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "transcripts are disabled", h.logger)
		return
	}
	counts, err := h.transcripts.CountByOutcome(r.Context())
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "transcript store unavailable").WithCause(err), h.logger)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	WriteSuccess(w, r, api.OutcomeStatsResponse{Outcomes: counts, Total: total})
}

func fromLive(entries []conversation.Entry) []api.HistoryEntry {
	out := make([]api.HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = api.HistoryEntry{Role: string(e.Role), Text: e.Text, Outcome: e.Outcome, At: e.At}
	}
	return out
}

func fromStored(rows []transcript.Transcript) []api.HistoryEntry {
	out := make([]api.HistoryEntry, 0, 2*len(rows))
	for _, row := range rows {
		out = append(out,
			api.HistoryEntry{Role: string(conversation.RoleUser), Text: row.RequestText, At: row.StartedAt},
			api.HistoryEntry{
				Role:    string(conversation.RoleAssistant),
				Text:    row.AnswerText,
				Outcome: types.Outcome(row.Outcome),
				At:      row.StartedAt.Add(msDuration(row.DurationMS)),
			},
		)
	}
	return out
}

func msDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
