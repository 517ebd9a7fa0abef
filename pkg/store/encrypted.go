package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// ErrPassphraseRequired is returned when the encrypted store has no passphrase
var ErrPassphraseRequired = errors.New("passphrase is required for the encrypted store")

// EncryptedFileStore keeps every cursor in a single AES-GCM encrypted file
// whose key is derived from a passphrase with PBKDF2
type EncryptedFileStore struct {
	filepath   string
	passphrase string
	mu         sync.RWMutex
}

// encryptedFile is the on-disk envelope
type encryptedFile struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates an encrypted store at filePath
func NewEncryptedFileStore(filePath, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	dir := filepath.Dir(filePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return &EncryptedFileStore{
		filepath:   filePath,
		passphrase: passphrase,
	}, nil
}

func (e *EncryptedFileStore) Backend() string { return "encrypted" }

func (e *EncryptedFileStore) Close() error { return nil }

// Load decrypts the file and returns the token saved under name
func (e *EncryptedFileStore) Load(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	cursors, _, err := e.loadData()
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", storeError(e.Backend(), "load", name, err)
	}

	token, exists := cursors[name]
	if !exists {
		return "", ErrNotFound
	}
	return token, nil
}

// Save re-encrypts the file with the token saved under name
func (e *EncryptedFileStore) Save(ctx context.Context, name, token string) error {
	if token == "" {
		return e.Delete(ctx, name)
	}
	if err := validateName(name); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cursors, salt, err := e.loadData()
	if err != nil && !os.IsNotExist(err) {
		return storeError(e.Backend(), "save", name, err)
	}
	if cursors == nil {
		cursors = make(map[string]string)
	}

	cursors[name] = token
	if err := e.saveData(cursors, salt); err != nil {
		return storeError(e.Backend(), "save", name, err)
	}
	return nil
}

// Delete removes the token saved under name, and the file once it is empty
func (e *EncryptedFileStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cursors, salt, err := e.loadData()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return storeError(e.Backend(), "delete", name, err)
	}
	if _, exists := cursors[name]; !exists {
		return nil
	}

	delete(cursors, name)

	if len(cursors) == 0 {
		if err := os.Remove(e.filepath); err != nil && !os.IsNotExist(err) {
			return storeError(e.Backend(), "delete", name, err)
		}
		return nil
	}

	if err := e.saveData(cursors, salt); err != nil {
		return storeError(e.Backend(), "delete", name, err)
	}
	return nil
}

// loadData reads and decrypts the file, returning the cursors and the salt
func (e *EncryptedFileStore) loadData() (map[string]string, []byte, error) {
	content, err := os.ReadFile(e.filepath)
	if err != nil {
		return nil, nil, err
	}

	var file encryptedFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}

	encryptedBytes, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	decrypted, err := decrypt(encryptedBytes, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt data (wrong passphrase?): %w", err)
	}

	var cursors map[string]string
	if err := json.Unmarshal(decrypted, &cursors); err != nil {
		return nil, nil, fmt.Errorf("failed to parse cursors: %w", err)
	}

	return cursors, salt, nil
}

// saveData encrypts the cursors and writes the file atomically
func (e *EncryptedFileStore) saveData(cursors map[string]string, salt []byte) error {
	if len(salt) == 0 {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	plaintext, err := json.Marshal(cursors)
	if err != nil {
		return fmt.Errorf("failed to marshal cursors: %w", err)
	}

	encrypted, err := encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt data: %w", err)
	}

	content, err := json.MarshalIndent(encryptedFile{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(encrypted),
		Version:   1,
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tempFile := e.filepath + ".tmp"
	if err := os.WriteFile(tempFile, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return os.Rename(tempFile, e.filepath)
}

// encrypt encrypts data using AES-GCM
func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt decrypts data using AES-GCM
func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
