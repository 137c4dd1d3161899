package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, []int{1, 2, 3})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `[1,2,3]`, w.Body.String())
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            *types.Error
		expectedStatus int
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "id is required"), http.StatusBadRequest},
		{"not found", types.NewError(types.ErrNotFound, "conversation not found"), http.StatusNotFound},
		{"rate limited", types.NewError(types.ErrRateLimited, "too many requests"), http.StatusTooManyRequests},
		{"agent timeout", types.NewError(types.ErrAgentTimeout, "slow").WithCapability(types.LabelHotel), http.StatusGatewayTimeout},
		{"explicit status", types.NewError(types.ErrInternalError, "x").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
			assert.Equal(t, string(tt.err.Capability), resp.Error.Capability)
		})
	}
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	cases := map[types.ErrorCode]int{
		types.ErrInvalidRequest:      http.StatusBadRequest,
		types.ErrUnknownCapability:   http.StatusBadRequest,
		types.ErrUnauthorized:        http.StatusUnauthorized,
		types.ErrNotFound:            http.StatusNotFound,
		types.ErrRateLimited:         http.StatusTooManyRequests,
		types.ErrAgentTimeout:        http.StatusGatewayTimeout,
		types.ErrClassification:      http.StatusServiceUnavailable,
		types.ErrServiceUnavailable:  http.StatusServiceUnavailable,
		types.ErrAgentError:          http.StatusBadGateway,
		types.ErrHandoffLoopExceeded: http.StatusBadGateway,
		types.ErrInternalError:       http.StatusInternalServerError,
		"SOMETHING_ELSE":             http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, mapErrorCodeToHTTPStatus(code), string(code))
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Level string `json:"level"`
	}

	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantStatus int
	}{
		{"valid", `{"level":"debug"}`, false, http.StatusOK},
		{"invalid json", `{"level":`, true, http.StatusBadRequest},
		{"unknown field", `{"level":"debug","extra":1}`, true, http.StatusBadRequest},
		{"empty", ``, true, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			var r *http.Request
			if tt.body == "" {
				r = httptest.NewRequest(http.MethodPut, "/", http.NoBody)
			} else {
				r = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tt.body))
			}

			var dst payload
			err := DecodeJSONBody(w, r, &dst, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.wantStatus, w.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "debug", dst.Level)
		})
	}
}

func TestDecodeJSONBody_MaxBodySize(t *testing.T) {
	big := `{"level":"` + strings.Repeat("a", MaxBodySize) + `"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/", bytes.NewBufferString(big))

	var dst struct {
		Level string `json:"level"`
	}
	err := DecodeJSONBody(w, r, &dst, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestValidateContentType(t *testing.T) {
	for ct, ok := range map[string]bool{
		"application/json":                true,
		"application/json; charset=utf-8": true,
		"Application/JSON":                true,
		"text/plain":                      false,
		"":                                false,
	} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPut, "/", nil)
		r.Header.Set("Content-Type", ct)
		assert.Equal(t, ok, ValidateContentType(w, r, zap.NewNop()), ct)
		if !ok {
			assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		}
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	assert.Same(t, rw, NewResponseWriter(rw))

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.Equal(t, int64(5), rw.BytesWritten)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Same(t, rec, rw.Unwrap())

	_, _, err = rw.Hijack()
	assert.Error(t, err)

	hj := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = NewResponseWriter(hj)
	_, _, err = rw.Hijack()
	require.NoError(t, err)
	assert.True(t, hj.hijacked)
	assert.Equal(t, http.StatusSwitchingProtocols, rw.StatusCode)
}
