package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/tripflow/api"
	"github.com/BaSui01/tripflow/config"
	"github.com/BaSui01/tripflow/types"
)

// ConfigSource 提供当前配置与重载能力（config.Reloader）
type ConfigSource interface {
	Current() *config.Config
	Version() int
	Reload() ([]config.Change, error)
}

// AdminHandler 运维端点：配置查看、重载与日志级别
type AdminHandler struct {
	source ConfigSource
	level  zap.AtomicLevel
	logger *zap.Logger
}

// NewAdminHandler level 为 cmd 构建根 logger 时使用的 AtomicLevel
func NewAdminHandler(source ConfigSource, level zap.AtomicLevel, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		source: source,
		level:  level,
		logger: logger.With(zap.String("component", "admin_api")),
	}
}

// HandleConfig 处理 GET /api/v1/config，敏感字段已脱敏
// @Summary 当前配置
// @Tags admin
// @Produce json
// @Success 200 {object} Response
// @Security ApiKeyAuth
// @Router /api/v1/config [get]
func (h *AdminHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.source.Current().Sanitized())
}

// HandleReload 处理 POST /api/v1/config/reload
// @Summary 重新加载配置文件
// @Tags admin
// @Produce json
// @Success 200 {object} Response{data=api.ReloadResponse}
// @Failure 400 {object} Response "新配置无效"
// @Security ApiKeyAuth
// @Router /api/v1/config/reload [post]
func (h *AdminHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	changes, err := h.source.Reload()
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, config.ErrNoConfigFile) {
			status = http.StatusConflict
		}
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "config reload rejected").
			WithCause(err).
			WithHTTPStatus(status), h.logger)
		return
	}
	paths := make([]string, len(changes))
	for i, c := range changes {
		paths[i] = c.Path
	}
	WriteSuccess(w, r, api.ReloadResponse{Version: int64(h.source.Version()), Changes: paths})
}

// HandleLogLevel 处理 GET 与 PUT /api/v1/log/level
// @Summary 运行时日志级别
// @Tags admin
// @Accept json
// @Produce json
// @Param body body api.LogLevelRequest false "新级别（PUT）"
// @Success 200 {object} Response{data=api.LogLevelResponse}
// @Security ApiKeyAuth
// @Router /api/v1/log/level [put]
func (h *AdminHandler) HandleLogLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var req api.LogLevelRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(strings.ToLower(req.Level))); err != nil {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "unknown log level "+req.Level, h.logger)
			return
		}
		h.level.SetLevel(lvl)
		h.logger.Info("log level changed", zap.String("level", lvl.String()))
	}
	WriteSuccess(w, r, api.LogLevelResponse{Level: h.level.Level().String()})
}
