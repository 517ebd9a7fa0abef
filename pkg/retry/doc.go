// Package retry provides backoff and retry logic for transient failures of
// repository queries and cursor store calls.
//
// Features:
//   - Exponential, linear and constant backoff
//   - Jitter to avoid synchronized retries
//   - Context support for cancellation
//   - Retry predicates based on the typed errors in pkg/errors
//
// Basic usage:
//
//	// Simple retry with defaults
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return store.Save(ctx, name, token)
//	}, nil)
//
//	// From the retry config section
//	cfg := retry.FromConfig(appConfig.Retry, logger.GetLogger())
//	items, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]traversal.Item, error) {
//		return repo.FindDeleted(ctx, after, limit)
//	}, cfg)
//
// Repository and store errors are retried. Invalid checkpoints, context
// cancellation and other typed errors are returned immediately.
package retry
