package model

import (
	"context"
	"sync"
)

// MockClient returns scripted responses in order; used by pipeline and
// handler tests. When Fn is set it overrides the script.
type MockClient struct {
	mu        sync.Mutex
	Responses []string
	Errs      []error
	Fn        func(req Request) (string, error)
	Calls     []Request
}

func (m *MockClient) Generate(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.Fn != nil {
		return m.Fn(req)
	}

	i := len(m.Calls) - 1
	if i < len(m.Errs) && m.Errs[i] != nil {
		return "", m.Errs[i]
	}
	if i < len(m.Responses) {
		return m.Responses[i], nil
	}
	if len(m.Responses) > 0 {
		return m.Responses[len(m.Responses)-1], nil
	}
	return "", nil
}

// CallCount returns how many times Generate was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
