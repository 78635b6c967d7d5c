package tokenstore

import (
	"context"
	"sync"
)

// Memory is a process-local [Store]. The zero value is ready to use.
type Memory struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Save implements [Store].
func (m *Memory) Save(_ context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return ErrEmptyAccessToken
	}
	m.mu.Lock()
	m.tokens = merge(m.tokens, accessToken, refreshToken)
	m.mu.Unlock()
	return nil
}

// Load implements [Store].
func (m *Memory) Load(context.Context) (Tokens, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens, nil
}

// Clear implements [Store].
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.tokens = Tokens{}
	m.mu.Unlock()
	return nil
}
