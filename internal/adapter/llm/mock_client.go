package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// MockClient is a scriptable CompletionClient for tests. Responses are
// consumed in order; when the script runs out the last entry repeats.
type MockClient struct {
	mu      sync.Mutex
	script  []mockStep
	cursor  int
	calls   int
	lastReq *CompletionRequest
}

type mockStep struct {
	raw json.RawMessage
	err error
}

// NewMockClient creates an empty mock; with no script it answers a minimal
// well-formed document.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Enqueue schedules a raw response document.
func (m *MockClient) Enqueue(raw string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{raw: json.RawMessage(raw)})
	return m
}

// EnqueueError schedules a transport failure.
func (m *MockClient) EnqueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{err: err})
	return m
}

// Calls reports how many times Complete ran.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request seen.
func (m *MockClient) LastRequest() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

// Complete replays the script.
func (m *MockClient) Complete(ctx context.Context, req *CompletionRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastReq = req

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(m.script) == 0 {
		return json.RawMessage(`{"reply":"mock reply"}`), nil
	}

	step := m.script[m.cursor]
	if m.cursor < len(m.script)-1 {
		m.cursor++
	}
	if step.err != nil {
		return nil, step.err
	}
	return step.raw, nil
}
