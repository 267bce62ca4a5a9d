package bedrock

import (
	"context"
	"sync"
)

// MockInvoker 测试用的 Invoker 实现，记录请求并返回预设响应
type MockInvoker struct {
	mu sync.Mutex

	// Response 固定返回的响应体
	Response []byte
	// Err 非空时调用直接失败
	Err error
	// ResponseFunc 非空时优先生效，可按请求体定制响应
	ResponseFunc func(modelID string, body []byte) ([]byte, error)

	// 记录到的调用
	ModelIDs []string
	Bodies   [][]byte
}

func (m *MockInvoker) InvokeModel(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	m.mu.Lock()
	m.ModelIDs = append(m.ModelIDs, modelID)
	m.Bodies = append(m.Bodies, body)
	fn := m.ResponseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(modelID, body)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

// CallCount 已记录的调用次数
func (m *MockInvoker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Bodies)
}
