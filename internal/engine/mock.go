package engine

import (
	"context"
	"sync"

	apierrors "github.com/diogo/localchat/internal/errors"
)

// MockLoader is a Loader for tests. It replays Reports through the
// progress callback, then returns Engine or LoadErr.
type MockLoader struct {
	Reports []ProgressReport
	LoadErr error
	Engine  *MockEngine
	// Block, when set, is waited on before Load returns (or ctx is done)
	Block chan struct{}

	mu        sync.Mutex
	calls     int
	lastModel string
	lastCfg   LoadConfig
}

// Ensure the mocks implement the interfaces
var (
	_ Loader = (*MockLoader)(nil)
	_ Engine = (*MockEngine)(nil)
)

// Load implements Loader
func (m *MockLoader) Load(ctx context.Context, modelID string, cfg LoadConfig) (Engine, error) {
	m.mu.Lock()
	m.calls++
	m.lastModel = modelID
	m.lastCfg = cfg
	m.mu.Unlock()

	for _, r := range m.Reports {
		cfg.report(r)
	}

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.Engine == nil {
		m.Engine = &MockEngine{}
	}
	return m.Engine, nil
}

// Calls returns how many times Load ran
func (m *MockLoader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastModel returns the model identifier of the last Load
func (m *MockLoader) LastModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastModel
}

// LastConfig returns the LoadConfig of the last Load
func (m *MockLoader) LastConfig() LoadConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCfg
}

// MockEngine is an Engine for tests
type MockEngine struct {
	ReplyText   string
	CompleteErr error
	Stats       string
	// Block, when set, is waited on before Complete returns (or ctx is done)
	Block chan struct{}

	mu       sync.Mutex
	requests []CompletionRequest
	closed   bool
}

// Complete implements Engine
func (m *MockEngine) Complete(ctx context.Context, req CompletionRequest) (*Reply, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return nil, apierrors.ErrEngineClosed
	}

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.CompleteErr != nil {
		return nil, m.CompleteErr
	}
	return &Reply{Choices: []Choice{{Message: ChatMessage{Role: "assistant", Content: m.ReplyText}}}}, nil
}

// RuntimeStatsText implements Engine
func (m *MockEngine) RuntimeStatsText() string {
	return m.Stats
}

// Close implements Engine
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Requests returns every completion request received
func (m *MockEngine) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Closed reports whether Close was called
func (m *MockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
