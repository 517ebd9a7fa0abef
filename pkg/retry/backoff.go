package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"synccursor/pkg/config"
)

// BackoffStrategy computes how long to wait before retry number attempt
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// NewBackoff builds the strategy named by the retry config section.
// An empty strategy means exponential.
func NewBackoff(cfg config.RetryConfig) BackoffStrategy {
	switch strings.ToLower(cfg.Strategy) {
	case config.RetryLinear:
		return &LinearBackoff{
			BaseDelay:    cfg.BaseDelay,
			MaxDelay:     cfg.MaxDelay,
			Increment:    cfg.BaseDelay,
			JitterFactor: cfg.JitterFactor,
		}
	case config.RetryConstant:
		return &ConstantBackoff{Delay: cfg.BaseDelay}
	default:
		return &ExponentialBackoff{
			BaseDelay:    cfg.BaseDelay,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   cfg.Multiplier,
			JitterFactor: cfg.JitterFactor,
		}
	}
}

// ExponentialBackoff multiplies the delay after every attempt
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// JitterFactor spreads each delay by up to that fraction either way (0.0 to 1.0)
	JitterFactor float64
}

// DefaultExponentialBackoff starts at one second and caps at a minute
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay returns BaseDelay * Multiplier^(attempt-1), capped and jittered
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	return jittered(capped(delay, eb.MaxDelay), eb.JitterFactor)
}

// LinearBackoff grows the delay by Increment after every attempt
type LinearBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Increment    time.Duration
	JitterFactor float64
}

// NextDelay returns BaseDelay + Increment*(attempt-1), capped and jittered
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(lb.BaseDelay + lb.Increment*time.Duration(attempt-1))
	return jittered(capped(delay, lb.MaxDelay), lb.JitterFactor)
}

// ConstantBackoff waits the same delay between attempts
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns Delay for every attempt
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// capped limits delay to max. A zero max means no limit.
func capped(delay float64, max time.Duration) float64 {
	if max > 0 && delay > float64(max) {
		return float64(max)
	}
	return delay
}

// jittered moves delay by a random amount within +/- factor*delay
func jittered(delay, factor float64) time.Duration {
	if factor > 0 {
		spread := delay * factor
		delay += rand.Float64()*2*spread - spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Wait sleeps for delay or until ctx is done
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
