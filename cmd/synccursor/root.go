package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"synccursor/pkg/config"
	"synccursor/pkg/logger"
	"synccursor/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	channels   []string
	location   string
	backend    string
	storeDir   string
	noColor    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "synccursor",
	Short: "Inspect and manage incremental traversal checkpoints",
	Long: `synccursor works with the checkpoint tokens of incremental repository
traversals.

A token records, for each channel of the insertion scan, the id and date of
the last item fed, the channel the next pass starts on, and the last deleted
item seen. Tokens are plain JSON and can be decoded, migrated from the legacy
format, advanced, and stored per connector in a file, an encrypted file, the
system keyring, Redis or SQLite.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetNoColor(noColor)
		ui.SetQuietMode(quiet)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./synccursor.yaml or $HOME/.config/synccursor/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().StringArrayVar(&channels, "channels", nil, "channel predicate; repeat once per channel")
	rootCmd.PersistentFlags().StringVar(&location, "location", "", "time zone of token dates (default UTC)")
	rootCmd.PersistentFlags().StringVar(&backend, "store", "", "cursor store backend (file, encrypted, keyring, redis, sqlite)")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "", "directory of the file based stores")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors and tokens")

	rootCmd.SetVersionTemplate(`synccursor {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// commandLineFlags collects the global flags that override configuration
func commandLineFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if len(channels) > 0 {
		flags["channels"] = channels
	}
	if location != "" {
		flags["location"] = location
	}
	if backend != "" {
		flags["store"] = backend
	}
	if storeDir != "" {
		flags["store-dir"] = storeDir
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

// loadConfig loads configuration from all sources and initializes the
// global logger from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile, commandLineFlags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
