// MockPredictor 的理解服务测试模拟实现。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/tripflow/intent"
)

// MockPredictor 返回固定预测或错误，并记录调用
type MockPredictor struct {
	mu sync.Mutex

	predictions []intent.Prediction
	err         error
	delay       time.Duration
	calls       []string
}

// NewMockPredictor 创建返回给定预测的 Predictor
func NewMockPredictor(predictions ...intent.Prediction) *MockPredictor {
	return &MockPredictor{predictions: predictions}
}

// WithError 设置返回错误
func (m *MockPredictor) WithError(err error) *MockPredictor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置响应延迟
func (m *MockPredictor) WithDelay(d time.Duration) *MockPredictor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithPredictions 替换预测结果
func (m *MockPredictor) WithPredictions(predictions ...intent.Prediction) *MockPredictor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions = predictions
	return m
}

// Predict implements intent.Predictor.
func (m *MockPredictor) Predict(ctx context.Context, text string) ([]intent.Prediction, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	preds, err, delay := m.predictions, m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]intent.Prediction, len(preds))
	copy(out, preds)
	return out, nil
}

// Calls 返回收到的文本
func (m *MockPredictor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
