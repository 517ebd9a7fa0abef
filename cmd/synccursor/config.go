package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"synccursor/pkg/config"
	"synccursor/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage synccursor configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (SYNCCURSOR_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'synccursor.yaml'
unless a different path is specified with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration including values from all sources.

Sensitive values like the Redis password will be masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - The checkpoint time zone
  - The store backend settings`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# synccursor configuration file
#
# Every option can also be set with an environment variable prefixed with
# SYNCCURSOR_, for example SYNCCURSOR_STORE_BACKEND or SYNCCURSOR_CHANNELS.

# Traversal configuration
traversal:
  # Where clauses partitioning the insertion scan, one per channel.
  # The number of entries is the number of channels in every token.
  channels:
    - "r_object_type = 'dm_document'"
    - "r_object_type = 'dm_folder'"

  # Items requested per repository query
  batch_size: 100

  # Repository queries per minute, with a burst allowance
  requests_per_minute: 120
  burst_size: 10

# Token dates
checkpoint:
  # Time zone dates are written in: UTC, Local or an IANA name
  location: "UTC"

  # Shift applied to legacy lastRemoveDate values
  migration_offset: -24h

# Retry configuration for repository queries and store operations
retry:
  enabled: true
  strategy: exponential  # exponential, linear or constant
  max_attempts: 3
  base_delay: 1s
  max_delay: 30s
  multiplier: 2.0
  jitter_factor: 0.1

# Cursor store
store:
  # file, encrypted, keyring, redis or sqlite
  backend: "file"

  # Directory of the file, encrypted and keyring fallback stores.
  # Defaults to $XDG_DATA_HOME/synccursor or ~/.local/share/synccursor.
  # directory: "/var/lib/synccursor"

  # sqlite backend
  sqlite_path: ""

  # redis backend
  redis_addr: ""
  redis_password: ""
  redis_db: 0
  key_prefix: "synccursor:"

# Logging configuration
logging:
  # Log level: debug, info, warn, error, disabled
  level: "info"

  # Log file path (optional)
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "synccursor.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintDim("To overwrite, first remove the existing file:")
		ui.PrintDim("  rm " + configPath)
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	ui.PrintDim("\nNext steps:")
	ui.PrintDim("1. Edit the channel predicates and the store backend")
	ui.PrintDim("2. Run 'synccursor config validate' to check the configuration")
	ui.PrintDim("3. Inspect a saved cursor with 'synccursor cursor get <name> | synccursor inspect'")
	return nil
}

// maskSecret keeps the first and last characters of long secrets
func maskSecret(value string) string {
	switch {
	case value == "":
		return ""
	case len(value) > 8:
		return value[:2] + "..." + value[len(value)-2:]
	default:
		return "***"
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	displayCfg := *cfg
	displayCfg.Store.RedisPassword = maskSecret(displayCfg.Store.RedisPassword)

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	ui.PrintRaw(string(data))

	ui.PrintDim("Configuration sources (in order of priority):")
	ui.PrintDim("1. Command line flags")
	ui.PrintDim("2. Environment variables (" + config.EnvPrefix + "*)")
	if configFile != "" {
		ui.PrintDim("3. Configuration file: " + configFile)
	} else {
		ui.PrintDim("3. Configuration file: (searched in default locations)")
	}
	ui.PrintDim("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var warnings []string
	if len(cfg.Traversal.Channels) == 0 {
		warnings = append(warnings, "no channels configured, tokens use a single channel")
	}
	if cfg.Store.Backend == config.BackendEncrypted && cfg.Store.Passphrase == "" {
		warnings = append(warnings, "encrypted store without "+config.EnvPrefix+"PASSPHRASE, commands will prompt for it")
	}
	if !cfg.Retry.Enabled {
		warnings = append(warnings, "retries are disabled")
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, warn := range warnings {
			ui.PrintDim("  - " + warn)
		}
	}

	ui.PrintSuccess("Configuration is valid")

	ui.PrintHighlight("\nConfiguration summary:")
	ui.PrintInfo("  Channels", fmt.Sprint(cfg.ChannelCount()))
	ui.PrintInfo("  Batch size", fmt.Sprint(cfg.Traversal.BatchSize))
	ui.PrintInfo("  Rate limit", fmt.Sprintf("%d requests/minute", cfg.Traversal.RequestsPerMinute))
	ui.PrintInfo("  Location", cfg.Checkpoint.Location)
	ui.PrintInfo("  Store", cfg.Store.Backend)
	ui.PrintInfo("  Log level", cfg.Logging.Level)
	return nil
}
