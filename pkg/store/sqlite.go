package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps cursors in a cursors table of a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dbPath and creates the cursors table
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set SQLite pragmas: %w", err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS cursors (
            name TEXT NOT NULL PRIMARY KEY,
            token TEXT NOT NULL,
            updated_at TIMESTAMP NOT NULL,

            CHECK (length(name) > 0),
            CHECK (length(token) > 0)
        );
    `)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cursors table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Backend() string { return "sqlite" }

// Load reads the token saved under name
func (s *SQLiteStore) Load(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM cursors WHERE name = ?`, name).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", storeError(s.Backend(), "load", name, err)
	}
	return token, nil
}

// Save upserts the token saved under name
func (s *SQLiteStore) Save(ctx context.Context, name, token string) error {
	if token == "" {
		return s.Delete(ctx, name)
	}
	if err := validateName(name); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO cursors (name, token, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            token = excluded.token,
            updated_at = excluded.updated_at
    `, name, token, time.Now().UTC())
	if err != nil {
		return storeError(s.Backend(), "save", name, err)
	}
	return nil
}

// Delete removes the token saved under name
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cursors WHERE name = ?`, name); err != nil {
		return storeError(s.Backend(), "delete", name, err)
	}
	return nil
}

// UpdatedAt returns when the token saved under name was last written
func (s *SQLiteStore) UpdatedAt(ctx context.Context, name string) (time.Time, error) {
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM cursors WHERE name = ?`, name).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, storeError(s.Backend(), "load", name, err)
	}
	return updatedAt, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
