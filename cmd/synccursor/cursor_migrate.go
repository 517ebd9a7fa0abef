package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"synccursor/pkg/config"
	"synccursor/pkg/logger"
	"synccursor/pkg/retry"
	"synccursor/pkg/scheduler"
	"synccursor/pkg/store"
	"synccursor/pkg/traversal"
	"synccursor/pkg/ui"
)

var migrateWorkers int

// cursorMigrateCmd represents the cursor migrate command
var cursorMigrateCmd = &cobra.Command{
	Use:   "migrate [name...]",
	Short: "Rewrite saved tokens in the current format",
	Long: `Load the token saved for each connector, re-encode it and save it back
when it changed. Legacy tokens carrying lastRemoveDate are converted the same
way as the migrate command does.

Without names every cursor of the file backend is migrated. Connectors are
processed concurrently, up to --workers at a time.`,
	RunE: runCursorMigrate,
}

func init() {
	cursorCmd.AddCommand(cursorMigrateCmd)

	cursorMigrateCmd.Flags().IntVarP(&migrateWorkers, "workers", "w", 4, "number of cursors migrated concurrently")
}

// cursorMigrator rewrites the token saved for one connector
type cursorMigrator struct {
	cfg   *config.Config
	store store.Store
	retry *retry.Config
}

// Run migrates the token saved under name. A missing token is left alone.
func (m *cursorMigrator) Run(ctx context.Context, name string) (*traversal.Result, error) {
	token, err := retry.DoWithResult(ctx, func(ctx context.Context) (string, error) {
		return m.store.Load(ctx, name)
	}, m.retry)
	if err != nil {
		if store.IsNotFound(err) {
			return &traversal.Result{}, nil
		}
		return nil, err
	}

	cp, _, err := openCheckpoint(m.cfg, token)
	if err != nil {
		return nil, err
	}

	result := &traversal.Result{Token: cp.String(), Channel: cp.InsertIndex()}
	result.Changed = result.Token != token
	if !result.Changed {
		return result, nil
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		return m.store.Save(ctx, name, result.Token)
	}, m.retry)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func runCursorMigrate(cmd *cobra.Command, args []string) error {
	if migrateWorkers < 1 {
		return errors.New("workers must be at least 1")
	}

	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	names := args
	if len(names) == 0 {
		fileStore, ok := s.(*store.FileStore)
		if !ok {
			return fmt.Errorf("name the cursors to migrate: listing is not supported by the %s backend", s.Backend())
		}
		if names, err = fileStore.List(ctx); err != nil {
			return err
		}
	}
	if len(names) == 0 {
		ui.PrintDim("No cursors to migrate")
		return nil
	}

	log := logger.GetLogger()
	migrator := &cursorMigrator{cfg: cfg, store: s, retry: retry.FromConfig(cfg.Retry, log)}
	results := scheduler.RunAll(ctx, migrator, names, migrateWorkers, log)

	failed := 0
	for _, result := range results {
		switch {
		case result.Err != nil:
			failed++
			ui.PrintError("Failed to migrate "+result.Name, result.Err)
		case result.Result.Changed:
			ui.PrintSuccess("Migrated: " + result.Name)
		default:
			ui.PrintDim("Unchanged: " + result.Name)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d cursors failed to migrate", failed, len(results))
	}
	return nil
}
