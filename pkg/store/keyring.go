package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "synccursor"
	keyringPrefix  = "cursor_"
)

// KeyringStore keeps cursors in the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a keyring store after checking that the keychain
// accepts writes
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

func (k *KeyringStore) Backend() string { return "keyring" }

func (k *KeyringStore) Close() error { return nil }

// Load reads the token saved under name
func (k *KeyringStore) Load(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	token, err := keyring.Get(keyringService, keyringPrefix+name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", storeError(k.Backend(), "load", name, err)
	}
	return token, nil
}

// Save replaces the token saved under name
func (k *KeyringStore) Save(ctx context.Context, name, token string) error {
	if token == "" {
		return k.Delete(ctx, name)
	}
	if err := validateName(name); err != nil {
		return err
	}

	if err := keyring.Set(keyringService, keyringPrefix+name, token); err != nil {
		return storeError(k.Backend(), "save", name, err)
	}
	return nil
}

// Delete removes the token saved under name
func (k *KeyringStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	err := keyring.Delete(keyringService, keyringPrefix+name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return storeError(k.Backend(), "delete", name, err)
	}
	return nil
}
