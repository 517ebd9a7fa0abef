package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"synccursor/pkg/config"
	errs "synccursor/pkg/errors"
	"synccursor/pkg/logger"
)

// Store persists serialized checkpoints by connector name
type Store interface {
	// Load returns the token saved under name, or ErrNotFound
	Load(ctx context.Context, name string) (string, error)

	// Save replaces the token saved under name. An empty token deletes it.
	Save(ctx context.Context, name, token string) error

	// Delete removes the token saved under name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error

	// Backend names the storage mechanism for logs
	Backend() string

	// Close releases connections held by the store
	Close() error
}

// Errors
var (
	ErrNotFound    = errs.Newf(errs.ErrorTypeNotFound, "cursor not found")
	ErrInvalidName = errs.Newf(errs.ErrorTypeConfig, "invalid cursor name")
)

// IsNotFound reports whether err means no token is saved
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// validateName rejects names that cannot be used as a key or file name
func validateName(name string) error {
	if strings.TrimSpace(name) == "" ||
		strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." ||
		name != filepath.Base(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// storeError wraps a backend failure so that it is retried
func storeError(backend, operation, name string, err error) error {
	return errs.New(errs.ErrorTypeStore, fmt.Sprintf("%s %s %q", backend, operation, name), err)
}

// Open creates the store selected by cfg. The keyring backend falls back to
// a plain file store in cfg.Directory when a directory is configured.
func Open(cfg config.StoreConfig, log logger.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendFile, "":
		return NewFileStore(cfg.Directory)

	case config.BackendEncrypted:
		return NewEncryptedFileStore(filepath.Join(cfg.Directory, "cursors.enc"), cfg.Passphrase)

	case config.BackendKeyring:
		keyringStore, err := NewKeyringStore()
		if err != nil {
			if cfg.Directory == "" {
				return nil, err
			}
			if log != nil {
				log.WithError(err).Warn("Keyring unavailable, using file store")
			}
			return NewFileStore(cfg.Directory)
		}
		if cfg.Directory == "" {
			return keyringStore, nil
		}
		fileStore, err := NewFileStore(cfg.Directory)
		if err != nil {
			return nil, err
		}
		return NewManager(log, keyringStore, fileStore), nil

	case config.BackendRedis:
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix)

	case config.BackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath)

	default:
		return nil, errs.Newf(errs.ErrorTypeConfig, "unknown store backend %q", cfg.Backend)
	}
}
