package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/tripflow/types"
	"go.uber.org/zap"
)

// HTTPPredictorConfig configures an OpenAI-compatible chat completions predictor.
type HTTPPredictorConfig struct {
	BaseURL      string
	EndpointPath string
	APIKey       string
	Model        string
	Timeout      time.Duration
}

// HTTPPredictor asks a chat completions endpoint to label the request.
type HTTPPredictor struct {
	cfg    HTTPPredictorConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPPredictor creates a predictor. A nil client uses a dedicated client
// with cfg.Timeout.
func NewHTTPPredictor(cfg HTTPPredictorConfig, client *http.Client, logger *zap.Logger) *HTTPPredictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPPredictor{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "intent_http_predictor")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// predictionEnvelope accepts both the labelled form and the task-planning form
// where each subtask names an assigned agent.
type predictionEnvelope struct {
	Labels   []Prediction `json:"labels"`
	Subtasks []struct {
		TaskDetails   string `json:"task_details"`
		AssignedAgent string `json:"assigned_agent"`
	} `json:"subtasks"`
	IsGreeting bool `json:"is_greeting"`
}

const systemPrompt = `You label travel-assistant requests. Allowed labels:
- flight: flight search or booking
- hotel: accommodation search or booking
- car: car rental
- activities: tours, events, sightseeing
- destination: facts about a city, country or place
- multi: a request for a whole trip or travel plan
- general: greetings and anything else
Return only JSON: {"labels":[{"label":"<label>","confidence":0.0-1.0}]} ordered by relevance.`

// Predict implements Predictor.
func (p *HTTPPredictor) Predict(ctx context.Context, text string) ([]Prediction, error) {
	body := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature:    0,
		MaxTokens:      200,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "intent service request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, types.NewError(types.ErrServiceUnavailable,
			fmt.Sprintf("intent service returned status=%d msg=%s", resp.StatusCode, strings.TrimSpace(string(msg)))).
			WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("intent service returned no choices")
	}
	return parsePredictions(out.Choices[0].Message.Content)
}

func parsePredictions(content string) ([]Prediction, error) {
	var env predictionEnvelope
	if err := json.Unmarshal([]byte(extractJSONFromResponse(content)), &env); err != nil {
		return nil, fmt.Errorf("parse prediction payload: %w", err)
	}
	if len(env.Labels) > 0 {
		return env.Labels, nil
	}
	if env.IsGreeting {
		return []Prediction{{Label: string(types.LabelGeneral), Confidence: 1}}, nil
	}
	preds := make([]Prediction, 0, len(env.Subtasks))
	for i, st := range env.Subtasks {
		// subtask order is the planner's ranking
		preds = append(preds, Prediction{
			Label:      st.AssignedAgent,
			Confidence: 1 - float64(i)*0.01,
		})
	}
	return preds, nil
}

// extractJSONFromResponse strips code fences and prose around the first JSON object.
func extractJSONFromResponse(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
