package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"synccursor/pkg/config"
	errs "synccursor/pkg/errors"
	"synccursor/pkg/logger"
)

const (
	tokenA = `{"uuid":"a","lastModified":"2009-06-01 12:00:00"}`
	tokenB = `{"index":1,"uuid":["a",null],"lastModified":["2009-06-01 12:00:00",null]}`
)

// exerciseStore runs the behaviour every backend shares
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "connector")
	assert.True(t, IsNotFound(err), "missing name: %v", err)

	require.NoError(t, s.Save(ctx, "connector", tokenA))
	token, err := s.Load(ctx, "connector")
	require.NoError(t, err)
	assert.Equal(t, tokenA, token)

	require.NoError(t, s.Save(ctx, "connector", tokenB))
	token, err = s.Load(ctx, "connector")
	require.NoError(t, err)
	assert.Equal(t, tokenB, token)

	require.NoError(t, s.Save(ctx, "other", tokenA))

	// Empty token means nothing to resume from
	require.NoError(t, s.Save(ctx, "connector", ""))
	_, err = s.Load(ctx, "connector")
	assert.True(t, IsNotFound(err))

	token, err = s.Load(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, tokenA, token)

	require.NoError(t, s.Delete(ctx, "other"))
	require.NoError(t, s.Delete(ctx, "other"), "deleting twice is not an error")

	for _, bad := range []string{"", " ", "../escape", "a/b", ".."} {
		err := s.Save(ctx, bad, tokenA)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", bad)
	}

	require.NoError(t, s.Close())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStoreBackupAndList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = s.LoadBackup(ctx, "connector")
	assert.True(t, IsNotFound(err))

	require.NoError(t, s.Save(ctx, "connector", tokenA))
	require.NoError(t, s.Save(ctx, "connector", tokenB))
	require.NoError(t, s.Save(ctx, "second", tokenA))

	backup, err := s.LoadBackup(ctx, "connector")
	require.NoError(t, err)
	assert.Equal(t, tokenA, backup)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"connector", "second"}, names)

	_, err = os.Stat(filepath.Join(dir, "connector.cursor.tmp"))
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed")

	require.NoError(t, s.Delete(ctx, "connector"))
	_, err = s.LoadBackup(ctx, "connector")
	assert.True(t, IsNotFound(err))
}

func TestFileStoreRequiresDirectory(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.enc")
	s, err := NewEncryptedFileStore(path, "correct horse battery staple")
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestEncryptedFileStoreAtRest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cursors.enc")

	s, err := NewEncryptedFileStore(path, "secret")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "connector", tokenA))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "lastModified")

	reopened, err := NewEncryptedFileStore(path, "secret")
	require.NoError(t, err)
	token, err := reopened.Load(ctx, "connector")
	require.NoError(t, err)
	assert.Equal(t, tokenA, token)

	wrong, err := NewEncryptedFileStore(path, "not the secret")
	require.NoError(t, err)
	_, err = wrong.Load(ctx, "connector")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))

	require.NoError(t, s.Delete(ctx, "connector"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty store removes its file")
}

func TestEncryptedFileStoreRequiresPassphrase(t *testing.T) {
	_, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "cursors.enc"), "")
	assert.ErrorIs(t, err, ErrPassphraseRequired)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	s, err := NewKeyringStore()
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cursors.db"))
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestSQLiteStoreUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cursors.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.UpdatedAt(ctx, "connector")
	assert.True(t, IsNotFound(err))

	require.NoError(t, s.Save(ctx, "connector", tokenA))
	updatedAt, err := s.UpdatedAt(ctx, "connector")
	require.NoError(t, err)
	assert.False(t, updatedAt.IsZero())
}

func TestMockStore(t *testing.T) {
	exerciseStore(t, NewMockStore())
}

func TestManagerFallback(t *testing.T) {
	ctx := context.Background()
	failing := NewMockStore()
	failing.SaveError = errs.New(errs.ErrorTypeStore, "unavailable", nil)
	backup := NewMockStore()

	m := NewManager(logger.NewNopLogger(), failing, backup)
	assert.Equal(t, "chain(mock,mock)", m.Backend())

	require.NoError(t, m.Save(ctx, "connector", tokenA))
	assert.Equal(t, 0, failing.Count())
	assert.Equal(t, 1, backup.Count())

	token, err := m.Load(ctx, "connector")
	require.NoError(t, err)
	assert.Equal(t, tokenA, token)

	require.NoError(t, m.Save(ctx, "connector", ""))
	assert.Equal(t, 0, backup.Count())
	assert.Equal(t, 1, failing.Deletes)
	assert.Equal(t, 1, backup.Deletes)

	_, err = m.Load(ctx, "connector")
	assert.True(t, IsNotFound(err))
}

func TestManagerLoadPrefersFirst(t *testing.T) {
	ctx := context.Background()
	first := NewMockStore()
	second := NewMockStore()
	require.NoError(t, first.Save(ctx, "connector", tokenB))
	require.NoError(t, second.Save(ctx, "connector", tokenA))

	token, err := NewManager(logger.NewNopLogger(), first, second).Load(ctx, "connector")
	require.NoError(t, err)
	assert.Equal(t, tokenB, token)
}

func TestManagerErrors(t *testing.T) {
	ctx := context.Background()
	broken := NewMockStore()
	broken.LoadError = errs.New(errs.ErrorTypeStore, "connection refused", nil)
	broken.SaveError = broken.LoadError
	broken.DeleteError = broken.LoadError

	m := NewManager(logger.NewNopLogger(), broken, NewMockStore())

	_, err := m.Load(ctx, "connector")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.True(t, errs.IsType(err, errs.ErrorTypeStore))

	assert.Error(t, m.Delete(ctx, "connector"))

	only := NewManager(logger.NewNopLogger(), broken)
	assert.Error(t, only.Save(ctx, "connector", tokenA))
	assert.Error(t, NewManager(logger.NewNopLogger()).Save(ctx, "connector", tokenA))
}

func TestManagerStopsOnInvalidName(t *testing.T) {
	second := NewMockStore()
	m := NewManager(logger.NewNopLogger(), NewMockStore(), second)

	err := m.Save(context.Background(), "../x", tokenA)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Equal(t, 0, second.Saves)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		s, err := Open(config.StoreConfig{Backend: config.BackendFile, Directory: dir}, logger.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, "file", s.Backend())
	})

	t.Run("encrypted", func(t *testing.T) {
		s, err := Open(config.StoreConfig{Backend: config.BackendEncrypted, Directory: dir, Passphrase: "p"}, logger.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, "encrypted", s.Backend())
	})

	t.Run("encrypted without passphrase", func(t *testing.T) {
		_, err := Open(config.StoreConfig{Backend: config.BackendEncrypted, Directory: dir}, logger.NewNopLogger())
		assert.ErrorIs(t, err, ErrPassphraseRequired)
	})

	t.Run("keyring with file fallback", func(t *testing.T) {
		keyring.MockInit()
		s, err := Open(config.StoreConfig{Backend: config.BackendKeyring, Directory: dir}, logger.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, "chain(keyring,file)", s.Backend())
	})

	t.Run("keyring unavailable", func(t *testing.T) {
		keyring.MockInitWithError(os.ErrPermission)
		defer keyring.MockInit()

		s, err := Open(config.StoreConfig{Backend: config.BackendKeyring, Directory: dir}, logger.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, "file", s.Backend())

		_, err = Open(config.StoreConfig{Backend: config.BackendKeyring}, logger.NewNopLogger())
		assert.Error(t, err)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(config.StoreConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "c.db")}, logger.NewNopLogger())
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, "sqlite", s.Backend())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(config.StoreConfig{Backend: "tape"}, logger.NewNopLogger())
		assert.True(t, errs.IsType(err, errs.ErrorTypeConfig))
	})
}
