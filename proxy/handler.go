package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/conversation"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/types"
)

// =============================================================================
// ⚙️ 配置
// =============================================================================

// AnswerFormat 回答帧的编码方式
type AnswerFormat string

const (
	FormatText AnswerFormat = "text"
	FormatJSON AnswerFormat = "json"
)

// Config 代理配置
type Config struct {
	// AnswerFormat text 或 json
	AnswerFormat AnswerFormat `yaml:"answer_format" env:"ANSWER_FORMAT" json:"answer_format"`
	// ReadLimit 单个入站帧的最大字节数
	ReadLimit int64 `yaml:"read_limit" env:"READ_LIMIT" json:"read_limit"`
	// WriteTimeout 单次写帧超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" json:"write_timeout"`
	// OriginPatterns 允许的跨域 Origin，空表示仅同源
	OriginPatterns []string `yaml:"origin_patterns" env:"ORIGIN_PATTERNS" json:"origin_patterns"`
}

// DefaultConfig 返回默认代理配置
func DefaultConfig() Config {
	return Config{
		AnswerFormat: FormatText,
		ReadLimit:    32 << 10,
		WriteTimeout: 10 * time.Second,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	switch c.AnswerFormat {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("proxy: unknown answer format %q", c.AnswerFormat)
	}
	if c.ReadLimit <= 0 {
		return fmt.Errorf("proxy: read_limit must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("proxy: write_timeout must be positive")
	}
	return nil
}

// =============================================================================
// 🔌 Handler
// =============================================================================

// Opener opens a conversation for a new connection.
type Opener interface {
	Open(ctx context.Context, id types.ConversationID) (*conversation.Conversation, error)
}

// Handler serves the /chat websocket endpoint.
type Handler struct {
	conversations Opener
	config        Config
	logger        *zap.Logger
	metrics       *metrics.Collector
	newID         func() types.ConversationID
	now           func() time.Time
}

// NewHandler 创建 WebSocket 用户代理
func NewHandler(conversations Opener, config Config, logger *zap.Logger, collector *metrics.Collector) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.AnswerFormat == "" {
		config.AnswerFormat = def.AnswerFormat
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = def.ReadLimit
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	return &Handler{
		conversations: conversations,
		config:        config,
		logger:        logger.With(zap.String("component", "proxy")),
		metrics:       collector,
		newID:         func() types.ConversationID { return types.ConversationID(uuid.NewString()) },
		now:           time.Now,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 长连接不受服务器级读写超时约束
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.metrics.RecordTransportEvent("rejected")
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.config.ReadLimit)

	// 连接上下文脱离请求生命周期，由读循环显式取消
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	id := h.newID()
	logger := h.logger.With(zap.String("conversation_id", string(id)))

	conv, err := h.conversations.Open(ctx, id)
	if err != nil {
		h.metrics.RecordTransportEvent("rejected")
		logger.Error("open conversation failed", zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "conversation unavailable")
		return
	}
	h.metrics.RecordTransportEvent("connected")
	logger.Info("client connected", zap.String("remote_addr", r.RemoteAddr))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, cancel, conn, conv, logger)
	}()

	reason := h.readLoop(ctx, conn, conv, id)

	cancel()
	conv.Close()
	wg.Wait()
	<-conv.Done()

	h.metrics.RecordTransportEvent("disconnected")
	logger.Info("client disconnected", zap.String("reason", reason))
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop forwards inbound text frames until the connection ends.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, conv *conversation.Conversation, id types.ConversationID) string {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				return status.String()
			}
			if ctx.Err() != nil {
				return "write failed"
			}
			return err.Error()
		}
		if typ != websocket.MessageText {
			continue
		}
		req := types.UserRequest{
			ConversationID: id,
			Text:           strings.TrimSpace(string(data)),
			ReceivedAt:     h.now(),
		}
		if err := conv.Submit(ctx, req); err != nil {
			if errors.Is(err, conversation.ErrClosed) || ctx.Err() != nil {
				return "conversation closed"
			}
			return err.Error()
		}
	}
}

// writeLoop is the only writer on conn, so answers keep turn order.
func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, conv *conversation.Conversation, logger *zap.Logger) {
	for answer := range conv.Answers() {
		if err := h.write(ctx, conn, answer); err != nil {
			h.metrics.RecordTransportEvent("write_error")
			logger.Warn("write answer failed", zap.Error(err))
			cancel()
			// 排空，避免会话 worker 阻塞在 emit
			for range conv.Answers() {
			}
			return
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, answer types.FinalAnswer) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
	defer cancel()
	if h.config.AnswerFormat == FormatJSON {
		return wsjson.Write(ctx, conn, answer)
	}
	return conn.Write(ctx, websocket.MessageText, []byte(answer.Text))
}
