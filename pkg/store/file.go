package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	cursorExt = ".cursor"
	backupExt = ".bak"
)

// FileStore keeps one file per cursor name. Saves write a temporary file and
// rename it into place, keeping the previous token as a backup.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Backend() string { return "file" }

func (f *FileStore) Close() error { return nil }

// Dir returns the directory holding the cursor files
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, name+cursorExt)
}

// Load reads the token saved under name
func (f *FileStore) Load(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	content, err := os.ReadFile(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", storeError(f.Backend(), "load", name, err)
	}

	token := strings.TrimSpace(string(content))
	if token == "" {
		return "", ErrNotFound
	}
	return token, nil
}

// LoadBackup reads the token that was replaced by the last save
func (f *FileStore) LoadBackup(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	content, err := os.ReadFile(f.path(name) + backupExt)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", storeError(f.Backend(), "load backup", name, err)
	}
	return strings.TrimSpace(string(content)), nil
}

// Save atomically replaces the token saved under name
func (f *FileStore) Save(ctx context.Context, name, token string) error {
	if token == "" {
		return f.Delete(ctx, name)
	}
	if err := validateName(name); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	filename := f.path(name)
	tempFile := filename + ".tmp"

	if err := os.WriteFile(tempFile, []byte(token+"\n"), 0600); err != nil {
		os.Remove(tempFile) // Clean up temp file
		return storeError(f.Backend(), "save", name, err)
	}

	// Keep the previous token around for manual recovery
	if previous, err := os.ReadFile(filename); err == nil {
		if err := os.WriteFile(filename+backupExt, previous, 0600); err != nil {
			os.Remove(tempFile)
			return storeError(f.Backend(), "backup", name, err)
		}
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return storeError(f.Backend(), "save", name, err)
	}
	return nil
}

// Delete removes the token and its backup
func (f *FileStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, path := range []string{f.path(name), f.path(name) + backupExt} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return storeError(f.Backend(), "delete", name, err)
		}
	}
	return nil
}

// List returns the names of every saved cursor
func (f *FileStore) List(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, storeError(f.Backend(), "list", f.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == cursorExt {
			names = append(names, strings.TrimSuffix(entry.Name(), cursorExt))
		}
	}
	return names, nil
}
