// Package ratelimit paces the queries a traversal pass sends to the
// repository.
//
// Token Bucket:
//   - Lets a burst of requests through, then refills continuously
//   - Built on golang.org/x/time/rate
//   - Used when a burst size is configured
//
// Sliding Window:
//   - Tracks requests within a moving time window
//   - Used when only a per-minute rate is configured
//
// All limiters implement Limiter. Wait returns early with the context error
// when the context is cancelled.
//
// Usage:
//
//	limiter := ratelimit.New(cfg.Traversal.RequestsPerMinute, cfg.Traversal.BurstSize)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
