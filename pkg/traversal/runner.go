package traversal

import (
	"context"
	"fmt"

	errs "synccursor/pkg/errors"
	"synccursor/pkg/logger"
	"synccursor/pkg/retry"
	"synccursor/pkg/store"
)

// Runner ties a traverser to a cursor store: it loads the saved token,
// runs one pass and saves the new token when it changed.
type Runner struct {
	traverser *Traverser
	store     store.Store
	log       logger.Logger

	// ResetInvalid starts from scratch when the saved token cannot be
	// parsed instead of failing the run
	ResetInvalid bool
}

// NewRunner creates a runner
func NewRunner(t *Traverser, s store.Store, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{traverser: t, store: s, log: log}
}

// Run resumes the traversal saved under name
func (r *Runner) Run(ctx context.Context, name string) (*Result, error) {
	log := r.log.WithField("connector", name)

	token, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}

	reset := false
	result, err := r.traverser.Resume(ctx, token)
	if err != nil && errs.IsInvalidCheckpoint(err) && r.ResetInvalid {
		log.WithError(err).Warn("Discarding invalid checkpoint and starting over")
		reset = true
		result, err = r.traverser.Resume(ctx, "")
	}
	if err != nil {
		return nil, fmt.Errorf("traversal %q failed: %w", name, err)
	}

	// A reset always persists, so the invalid token is not read again
	if !result.Changed && !reset {
		log.Debug("Checkpoint unchanged")
		return result, nil
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		return r.store.Save(ctx, name, result.Token)
	}, r.traverser.opts.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to save checkpoint for %q: %w", name, err)
	}

	log.InfoWithFields("Checkpoint saved", map[string]interface{}{
		"token": result.Token,
	})
	return result, nil
}

func (r *Runner) load(ctx context.Context, name string) (string, error) {
	token, err := retry.DoWithResult(ctx, func(ctx context.Context) (string, error) {
		return r.store.Load(ctx, name)
	}, r.traverser.opts.Retry)
	if err != nil {
		if store.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load checkpoint for %q: %w", name, err)
	}
	return token, nil
}
