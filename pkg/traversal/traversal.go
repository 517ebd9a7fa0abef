package traversal

import (
	"context"
	"time"

	"github.com/guregu/null"
	"synccursor/pkg/checkpoint"
	"synccursor/pkg/config"
	errs "synccursor/pkg/errors"
	"synccursor/pkg/logger"
	"synccursor/pkg/ratelimit"
	"synccursor/pkg/retry"
)

// DefaultBatchSize is the number of items requested per query
const DefaultBatchSize = 100

// Item is a repository object seen by the traversal
type Item struct {
	ID   string
	Date time.Time
}

// Channel is one partition of the insertion scan
type Channel struct {
	Index  int
	Clause string
}

// Repository lists changes in (date, id) order, strictly after a mark.
// A mark without a date means from the beginning.
type Repository interface {
	FindInserted(ctx context.Context, channel Channel, after checkpoint.Mark, limit int) ([]Item, error)
	FindDeleted(ctx context.Context, after checkpoint.Mark, limit int) ([]Item, error)
}

// Index receives the changes found by a pass
type Index interface {
	Feed(ctx context.Context, item Item) error
	Remove(ctx context.Context, item Item) error
}

// Result describes one pass
type Result struct {
	// Token to persist for the next pass; "" when there is nothing to resume from
	Token string
	// Changed reports whether Token differs from the token the pass resumed from
	Changed bool

	Inserted int
	Deleted  int
	Failed   int

	// Channel whose items were fed
	Channel int
	// CycleComplete reports that every channel was visited during the pass
	CycleComplete bool
}

// Options configures a Traverser
type Options struct {
	// Clauses names the channels; its length is the channel count
	Clauses    []string
	BatchSize  int
	Limiter    ratelimit.Limiter
	Retry      *retry.Config
	Checkpoint *checkpoint.Options
	Logger     logger.Logger
}

// Traverser runs resumable passes over a repository
type Traverser struct {
	repo  Repository
	index Index
	opts  Options
}

// New creates a traverser
func New(repo Repository, index Index, opts Options) *Traverser {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultConfig()
		opts.Retry.Logger = opts.Logger
	}
	if opts.Checkpoint == nil {
		opts.Checkpoint = checkpoint.DefaultOptions()
		opts.Checkpoint.Logger = opts.Logger
	}
	return &Traverser{repo: repo, index: index, opts: opts}
}

// NewFromConfig creates a traverser from the traversal, checkpoint and retry
// config sections
func NewFromConfig(cfg *config.Config, repo Repository, index Index, log logger.Logger) (*Traverser, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, errs.New(errs.ErrorTypeConfig, "invalid checkpoint location", err)
	}

	return New(repo, index, Options{
		Clauses:   cfg.Traversal.Channels,
		BatchSize: cfg.Traversal.BatchSize,
		Limiter:   ratelimit.New(cfg.Traversal.RequestsPerMinute, cfg.Traversal.BurstSize),
		Retry:     retry.FromConfig(cfg.Retry, log),
		Checkpoint: &checkpoint.Options{
			Location:        loc,
			MigrationOffset: cfg.Checkpoint.MigrationOffset,
			Logger:          log,
		},
		Logger: log,
	}), nil
}

// Channels returns the ring size
func (t *Traverser) Channels() int {
	if len(t.opts.Clauses) < 1 {
		return 1
	}
	return len(t.opts.Clauses)
}

func (t *Traverser) channel(index int) Channel {
	ch := Channel{Index: index}
	if index < len(t.opts.Clauses) {
		ch.Clause = t.opts.Clauses[index]
	}
	return ch
}

// Open returns the checkpoint a pass resumes from. An empty token starts
// from scratch.
func (t *Traverser) Open(token string) (*checkpoint.Checkpoint, error) {
	if token == "" {
		return checkpoint.New(t.Channels(), t.opts.Checkpoint), nil
	}
	return checkpoint.Parse(t.Channels(), token, t.opts.Checkpoint)
}

// Resume runs one pass from token. It feeds one batch of insertions from
// the first channel that has any, starting at the channel the token points
// to, then one batch of deletions. A failed item is rolled back and ends
// its batch so that it is retried on the next pass.
func (t *Traverser) Resume(ctx context.Context, token string) (*Result, error) {
	cp, err := t.Open(token)
	if err != nil {
		return nil, err
	}

	result := &Result{Channel: cp.InsertIndex()}

	if err := t.insertions(ctx, cp, result); err != nil {
		return nil, err
	}
	if err := t.deletions(ctx, cp, result); err != nil {
		return nil, err
	}

	// HasChanged only measures the last Set against its restore point and
	// counts the pending move to the next channel, so it cannot tell whether
	// the saved token needs rewriting. Comparing tokens also catches a legacy
	// token rewritten by migration.
	result.Token = cp.String()
	result.Changed = result.Token != token

	logger.LogPass(t.opts.Logger, result.Channel, result.Inserted, result.Deleted, result.Failed, result.CycleComplete)
	return result, nil
}

func (t *Traverser) insertions(ctx context.Context, cp *checkpoint.Checkpoint, result *Result) error {
	var items []Item
	for {
		ch := t.channel(cp.InsertIndex())
		after := checkpoint.Mark{ID: cp.InsertID(), Date: cp.InsertDate()}

		var err error
		items, err = t.query(ctx, func(ctx context.Context) ([]Item, error) {
			return t.repo.FindInserted(ctx, ch, after, t.opts.BatchSize)
		})
		if err != nil {
			return errs.New(errs.ErrorTypeRepository, "failed to find inserted items", err)
		}
		if len(items) > 0 {
			break
		}

		if cp.Advance() {
			// Every channel is empty
			result.CycleComplete = true
			result.Channel = cp.InsertIndex()
			return nil
		}
	}

	result.Channel = cp.InsertIndex()
	for _, item := range items {
		cp.SetInsertCheckpoint(null.TimeFrom(item.Date), null.StringFrom(item.ID))
		if err := t.index.Feed(ctx, item); err != nil {
			cp.Restore()
			result.Failed++
			err = errs.New(errs.ErrorTypeIndex, "feed rejected", err)
			t.opts.Logger.WithError(err).WarnWithFields("Failed to feed item", map[string]interface{}{
				"id":      item.ID,
				"channel": result.Channel,
			})
			// Stay on this channel so the item is retried
			return nil
		}
		result.Inserted++
	}

	result.CycleComplete = cp.Advance()
	return nil
}

func (t *Traverser) deletions(ctx context.Context, cp *checkpoint.Checkpoint, result *Result) error {
	after := checkpoint.Mark{ID: cp.DeleteID(), Date: cp.DeleteDate()}

	items, err := t.query(ctx, func(ctx context.Context) ([]Item, error) {
		return t.repo.FindDeleted(ctx, after, t.opts.BatchSize)
	})
	if err != nil {
		return errs.New(errs.ErrorTypeRepository, "failed to find deleted items", err)
	}

	for _, item := range items {
		cp.SetDeleteCheckpoint(null.TimeFrom(item.Date), null.StringFrom(item.ID))
		if err := t.index.Remove(ctx, item); err != nil {
			cp.Restore()
			result.Failed++
			err = errs.New(errs.ErrorTypeIndex, "remove rejected", err)
			t.opts.Logger.WithError(err).WarnWithFields("Failed to remove item", map[string]interface{}{
				"id": item.ID,
			})
			return nil
		}
		result.Deleted++
	}
	return nil
}

// query paces and retries a repository call
func (t *Traverser) query(ctx context.Context, find func(ctx context.Context) ([]Item, error)) ([]Item, error) {
	return retry.DoWithResult(ctx, func(ctx context.Context) ([]Item, error) {
		if err := t.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return find(ctx)
	}, t.opts.Retry)
}
