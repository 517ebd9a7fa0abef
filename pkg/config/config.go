package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the loader reads
const EnvPrefix = "SYNCCURSOR_"

// Config holds all configuration options for the cursor synchronizer
type Config struct {
	// Channel predicates and query pacing
	Traversal TraversalConfig `yaml:"traversal" json:"traversal"`

	// Token codec settings
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Retry policy for repository queries and store operations
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Where serialized cursors are persisted
	Store StoreConfig `yaml:"store" json:"store"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TraversalConfig controls how a pass walks the repository
type TraversalConfig struct {
	// Channels lists the where clauses partitioning the insertion scan.
	// Its length is the checkpoint channel count.
	Channels          []string `yaml:"channels" json:"channels"`
	BatchSize         int      `yaml:"batch_size" json:"batch_size"`
	RequestsPerMinute int      `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int      `yaml:"burst_size" json:"burst_size"`
}

// CheckpointConfig controls how dates inside tokens are interpreted
type CheckpointConfig struct {
	Location        string        `yaml:"location" json:"location"`
	MigrationOffset time.Duration `yaml:"migration_offset" json:"migration_offset"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Strategy     string        `yaml:"strategy" json:"strategy"` // exponential, linear or constant
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// StoreConfig selects and configures the cursor store backend
type StoreConfig struct {
	Backend       string `yaml:"backend" json:"backend"`
	Directory     string `yaml:"directory" json:"directory"`
	SQLitePath    string `yaml:"sqlite_path" json:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix" json:"key_prefix"`

	// Passphrase for the encrypted backend; read from the environment only
	Passphrase string `yaml:"-" json:"-"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Store backend names
const (
	BackendFile      = "file"
	BackendEncrypted = "encrypted"
	BackendKeyring   = "keyring"
	BackendRedis     = "redis"
	BackendSQLite    = "sqlite"
)

// Retry backoff strategy names
const (
	RetryExponential = "exponential"
	RetryLinear      = "linear"
	RetryConstant    = "constant"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Traversal: TraversalConfig{
			Channels:          nil,
			BatchSize:         100,
			RequestsPerMinute: 120,
			BurstSize:         10,
		},
		Checkpoint: CheckpointConfig{
			Location:        "UTC",
			MigrationOffset: -24 * time.Hour,
		},
		Retry: RetryConfig{
			Enabled:      true,
			Strategy:     RetryExponential,
			MaxAttempts:  3,
			BaseDelay:    1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Store: StoreConfig{
			Backend:   BackendFile,
			Directory: defaultDataDir(),
			KeyPrefix: "synccursor:",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ChannelCount returns the number of insertion channels, never less than one
func (c *Config) ChannelCount() int {
	if len(c.Traversal.Channels) < 1 {
		return 1
	}
	return len(c.Traversal.Channels)
}

// Location resolves the configured checkpoint time zone
func (c *Config) Location() (*time.Location, error) {
	switch c.Checkpoint.Location {
	case "", "UTC":
		return time.UTC, nil
	case "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Checkpoint.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint location %q: %w", c.Checkpoint.Location, err)
	}
	return loc, nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if channels := os.Getenv(EnvPrefix + "CHANNELS"); channels != "" {
		c.Traversal.Channels = splitChannels(channels)
	}
	if batch := os.Getenv(EnvPrefix + "BATCH_SIZE"); batch != "" {
		val, err := strconv.Atoi(batch)
		if err != nil {
			return fmt.Errorf("invalid %sBATCH_SIZE: %w", EnvPrefix, err)
		}
		c.Traversal.BatchSize = val
	}
	if rpm := os.Getenv(EnvPrefix + "REQUESTS_PER_MINUTE"); rpm != "" {
		val, err := strconv.Atoi(rpm)
		if err != nil {
			return fmt.Errorf("invalid %sREQUESTS_PER_MINUTE: %w", EnvPrefix, err)
		}
		c.Traversal.RequestsPerMinute = val
	}

	if loc := os.Getenv(EnvPrefix + "LOCATION"); loc != "" {
		c.Checkpoint.Location = loc
	}
	if offset := os.Getenv(EnvPrefix + "MIGRATION_OFFSET"); offset != "" {
		d, err := time.ParseDuration(offset)
		if err != nil {
			return fmt.Errorf("invalid %sMIGRATION_OFFSET: %w", EnvPrefix, err)
		}
		c.Checkpoint.MigrationOffset = d
	}

	if enabled := os.Getenv(EnvPrefix + "RETRY_ENABLED"); enabled != "" {
		c.Retry.Enabled = strings.ToLower(enabled) == "true"
	}
	if strategy := os.Getenv(EnvPrefix + "RETRY_STRATEGY"); strategy != "" {
		c.Retry.Strategy = strategy
	}
	if attempts := os.Getenv(EnvPrefix + "RETRY_MAX_ATTEMPTS"); attempts != "" {
		val, err := strconv.Atoi(attempts)
		if err != nil {
			return fmt.Errorf("invalid %sRETRY_MAX_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.Retry.MaxAttempts = val
	}

	if backend := os.Getenv(EnvPrefix + "STORE_BACKEND"); backend != "" {
		c.Store.Backend = backend
	}
	if dir := os.Getenv(EnvPrefix + "STORE_DIR"); dir != "" {
		c.Store.Directory = dir
	}
	if path := os.Getenv(EnvPrefix + "SQLITE_PATH"); path != "" {
		c.Store.SQLitePath = path
	}
	if addr := os.Getenv(EnvPrefix + "REDIS_ADDR"); addr != "" {
		c.Store.RedisAddr = addr
	}
	if pass := os.Getenv(EnvPrefix + "REDIS_PASSWORD"); pass != "" {
		c.Store.RedisPassword = pass
	}
	if pass := os.Getenv(EnvPrefix + "PASSPHRASE"); pass != "" {
		c.Store.Passphrase = pass
	}

	if logLevel := os.Getenv(EnvPrefix + "LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv(EnvPrefix + "LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"synccursor.yaml",
		".synccursor.yaml",
		".synccursor.yml",
		filepath.Join(home, ".config", "synccursor", "config.yaml"),
		filepath.Join(home, ".synccursor.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	for i, clause := range c.Traversal.Channels {
		if strings.TrimSpace(clause) == "" {
			errs = append(errs, fmt.Errorf("channel %d has an empty predicate", i))
		}
	}
	if c.Traversal.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.Traversal.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.Traversal.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Checkpoint.MigrationOffset > 0 {
		errs = append(errs, errors.New("migration offset must not be positive"))
	}

	switch strings.ToLower(c.Retry.Strategy) {
	case "", RetryExponential, RetryLinear, RetryConstant:
	default:
		errs = append(errs, fmt.Errorf("unknown retry strategy %q", c.Retry.Strategy))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max retry attempts cannot be negative"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		errs = append(errs, errors.New("retry jitter factor must be between 0 and 1"))
	}

	switch strings.ToLower(c.Store.Backend) {
	case BackendFile, BackendEncrypted:
		if c.Store.Directory == "" {
			errs = append(errs, errors.New("store directory is required"))
		}
	case BackendKeyring:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required for the redis backend"))
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if channels, ok := flags["channels"].([]string); ok && len(channels) > 0 {
		c.Traversal.Channels = channels
	}
	if batch, ok := flags["batch-size"].(int); ok && batch > 0 {
		c.Traversal.BatchSize = batch
	}
	if backend, ok := flags["store"].(string); ok && backend != "" {
		c.Store.Backend = backend
	}
	if dir, ok := flags["store-dir"].(string); ok && dir != "" {
		c.Store.Directory = dir
	}
	if loc, ok := flags["location"].(string); ok && loc != "" {
		c.Checkpoint.Location = loc
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".synccursor.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// splitChannels parses a ';'-separated list of where clauses
func splitChannels(value string) []string {
	var channels []string
	for _, part := range strings.Split(value, ";") {
		if part = strings.TrimSpace(part); part != "" {
			channels = append(channels, part)
		}
	}
	return channels
}

// defaultDataDir returns the directory cursor files live in by default
func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "synccursor")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "cursors")
	}
	return filepath.Join(home, ".local", "share", "synccursor")
}
