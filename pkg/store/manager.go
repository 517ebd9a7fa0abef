package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"synccursor/pkg/logger"
)

// Manager chains stores with fallback: saves go to the first store that
// accepts them, loads come from the first store holding the name, and
// deletes go to every store.
type Manager struct {
	stores []Store
	log    logger.Logger
}

// NewManager creates a manager over stores, tried in order
func NewManager(log logger.Logger, stores ...Store) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{stores: stores, log: log}
}

// Backend lists the chained backends
func (m *Manager) Backend() string {
	names := make([]string, len(m.stores))
	for i, s := range m.stores {
		names[i] = s.Backend()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Load returns the token from the first store that has it
func (m *Manager) Load(ctx context.Context, name string) (string, error) {
	var lastErr error
	for _, s := range m.stores {
		token, err := s.Load(ctx, name)
		if err == nil {
			logger.LogStoreOperation(m.log, s.Backend(), "load", name, nil)
			return token, nil
		}
		if !IsNotFound(err) {
			logger.LogStoreOperation(m.log, s.Backend(), "load", name, err)
			lastErr = err
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to load cursor: %w", lastErr)
	}
	return "", ErrNotFound
}

// Save writes the token to the first store that accepts it
func (m *Manager) Save(ctx context.Context, name, token string) error {
	if token == "" {
		return m.Delete(ctx, name)
	}

	var lastErr error
	for _, s := range m.stores {
		err := s.Save(ctx, name, token)
		logger.LogStoreOperation(m.log, s.Backend(), "save", name, err)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidName) {
			return err
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to save cursor: %w", lastErr)
	}
	return errors.New("no available cursor stores")
}

// Delete removes the token from every store
func (m *Manager) Delete(ctx context.Context, name string) error {
	var failures []error
	for _, s := range m.stores {
		err := s.Delete(ctx, name)
		logger.LogStoreOperation(m.log, s.Backend(), "delete", name, err)
		if err != nil {
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("failed to delete cursor: %w", errors.Join(failures...))
	}
	return nil
}

// Close closes every store
func (m *Manager) Close() error {
	var failures []error
	for _, s := range m.stores {
		if err := s.Close(); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}
