package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"synccursor/pkg/config"
	"synccursor/pkg/logger"
	"synccursor/pkg/store"
	"synccursor/pkg/ui"
)

var forceSet bool

// cursorCmd represents the cursor command
var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Manage saved checkpoints",
	Long: `Read, write and remove the checkpoint token saved for a connector.

The backend is chosen with the store section of the configuration or
--store. The encrypted backend asks for its passphrase when
SYNCCURSOR_PASSPHRASE is not set.`,
}

// cursorGetCmd represents the cursor get command
var cursorGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the token saved for a connector",
	Args:  cobra.ExactArgs(1),
	RunE:  runCursorGet,
}

// cursorSetCmd represents the cursor set command
var cursorSetCmd = &cobra.Command{
	Use:   "set <name> [token]",
	Short: "Save a token for a connector",
	Long: `Save a token for a connector. The token is read from standard input
when it is omitted or given as "-". It must parse for the configured number
of channels unless --force is given. Saving an empty token removes the
cursor.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCursorSet,
}

// cursorDeleteCmd represents the cursor delete command
var cursorDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove the token saved for a connector",
	Long: `Remove the token saved for a connector, so that its next pass starts
from the beginning.`,
	Args: cobra.ExactArgs(1),
	RunE: runCursorDelete,
}

// cursorListCmd represents the cursor list command
var cursorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connectors with a saved token (file backend)",
	Args:  cobra.NoArgs,
	RunE:  runCursorList,
}

func init() {
	rootCmd.AddCommand(cursorCmd)
	cursorCmd.AddCommand(cursorGetCmd)
	cursorCmd.AddCommand(cursorSetCmd)
	cursorCmd.AddCommand(cursorDeleteCmd)
	cursorCmd.AddCommand(cursorListCmd)

	cursorSetCmd.Flags().BoolVar(&forceSet, "force", false, "save the token without checking that it parses")
}

// openStore loads configuration and opens the configured cursor store
func openStore() (*config.Config, store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	if strings.EqualFold(cfg.Store.Backend, config.BackendEncrypted) && cfg.Store.Passphrase == "" {
		fmt.Fprint(os.Stderr, "Passphrase: ")
		passphrase, err := readPassword()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		cfg.Store.Passphrase = passphrase
	}

	s, err := store.Open(cfg.Store, logger.GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	return cfg, s, nil
}

// readPassword reads a password from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err == nil {
			return string(password), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func runCursorGet(cmd *cobra.Command, args []string) error {
	_, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	token, err := s.Load(context.Background(), args[0])
	if err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("no cursor saved for %q", args[0])
		}
		return err
	}
	ui.PrintRaw(token)
	return nil
}

func runCursorSet(cmd *cobra.Command, args []string) error {
	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	name := args[0]
	token, err := readToken(args[1:], cmd.InOrStdin())
	if err != nil {
		return err
	}

	if token != "" && !forceSet {
		if _, _, err := openCheckpoint(cfg, token); err != nil {
			return err
		}
	}

	if err := s.Save(context.Background(), name, token); err != nil {
		return err
	}

	if token == "" {
		ui.PrintSuccess("Cursor removed: " + name)
	} else {
		ui.PrintSuccess("Cursor saved: " + name)
	}
	ui.PrintInfo("Backend", s.Backend())
	return nil
}

func runCursorDelete(cmd *cobra.Command, args []string) error {
	_, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	ui.PrintSuccess("Cursor removed: " + args[0])
	return nil
}

func runCursorList(cmd *cobra.Command, args []string) error {
	_, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	fileStore, ok := s.(*store.FileStore)
	if !ok {
		return fmt.Errorf("listing is not supported by the %s backend", s.Backend())
	}

	names, err := fileStore.List(context.Background())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		ui.PrintDim("No cursors saved in " + fileStore.Dir())
		return nil
	}
	for _, name := range names {
		ui.PrintRaw(name)
	}
	return nil
}
