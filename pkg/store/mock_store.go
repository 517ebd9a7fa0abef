package store

import (
	"context"
	"sync"
)

// MockStore implements Store in memory for testing purposes
type MockStore struct {
	tokens map[string]string
	mu     sync.RWMutex

	// Error injection for testing
	LoadError   error
	SaveError   error
	DeleteError error

	// Call counters
	Saves   int
	Deletes int
}

// NewMockStore creates a new mock store
func NewMockStore() *MockStore {
	return &MockStore{tokens: make(map[string]string)}
}

func (m *MockStore) Backend() string { return "mock" }

func (m *MockStore) Close() error { return nil }

// Load returns the token saved under name
func (m *MockStore) Load(ctx context.Context, name string) (string, error) {
	if m.LoadError != nil {
		return "", m.LoadError
	}
	if err := validateName(name); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.tokens[name]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

// Save stores the token under name
func (m *MockStore) Save(ctx context.Context, name, token string) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	if token == "" {
		return m.Delete(ctx, name)
	}
	if err := validateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Saves++
	m.tokens[name] = token
	return nil
}

// Delete removes the token saved under name
func (m *MockStore) Delete(ctx context.Context, name string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if err := validateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Deletes++
	delete(m.tokens, name)
	return nil
}

// Count returns the number of stored tokens
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
