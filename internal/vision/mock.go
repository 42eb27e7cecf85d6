package vision

import (
	"context"
	"sync"
)

// MockClient implements the Client interface for testing. Calls records every
// request; the mutex keeps recording safe when an abandoned attempt finishes
// late.
type MockClient struct {
	GenerateFn func(ctx context.Context, req Request) (Completion, error)

	mu    sync.Mutex
	Calls []Request
}

func (m *MockClient) Generate(ctx context.Context, req Request) (Completion, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()
	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req)
	}
	return Completion{}, nil
}
