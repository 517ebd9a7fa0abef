package traversal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"synccursor/pkg/checkpoint"
	"synccursor/pkg/config"
	errs "synccursor/pkg/errors"
	"synccursor/pkg/logger"
	"synccursor/pkg/retry"
)

var base = time.Date(2009, 6, 1, 12, 0, 0, 0, time.UTC)

func item(id string, offset time.Duration) Item {
	return Item{ID: id, Date: base.Add(offset)}
}

// fakeRepository serves items from memory in (date, id) order
type fakeRepository struct {
	mu       sync.Mutex
	inserted map[int][]Item
	deleted  []Item

	// failures left before queries succeed
	failures int

	queried []Channel
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{inserted: make(map[int][]Item)}
}

func (r *fakeRepository) add(channel int, items ...Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted[channel] = sortItems(append(r.inserted[channel], items...))
}

func (r *fakeRepository) remove(items ...Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = sortItems(append(r.deleted, items...))
}

func sortItems(items []Item) []Item {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func after(items []Item, mark checkpoint.Mark, limit int) []Item {
	var out []Item
	for _, it := range items {
		if mark.Date.Valid {
			if it.Date.Before(mark.Date.Time) {
				continue
			}
			if it.Date.Equal(mark.Date.Time) && (!mark.ID.Valid || it.ID <= mark.ID.String) {
				continue
			}
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (r *fakeRepository) FindInserted(ctx context.Context, channel Channel, mark checkpoint.Mark, limit int) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.queried = append(r.queried, channel)
	if r.failures > 0 {
		r.failures--
		return nil, errs.New(errs.ErrorTypeRepository, "connection lost", nil)
	}
	return after(r.inserted[channel.Index], mark, limit), nil
}

func (r *fakeRepository) FindDeleted(ctx context.Context, mark checkpoint.Mark, limit int) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return after(r.deleted, mark, limit), nil
}

// fakeIndex records fed and removed ids
type fakeIndex struct {
	mu      sync.Mutex
	fed     []string
	removed []string
	failOn  map[string]bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{failOn: make(map[string]bool)}
}

func (x *fakeIndex) Feed(ctx context.Context, it Item) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.failOn[it.ID] {
		return errors.New("index rejected " + it.ID)
	}
	x.fed = append(x.fed, it.ID)
	return nil
}

func (x *fakeIndex) Remove(ctx context.Context, it Item) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.failOn[it.ID] {
		return errors.New("index rejected " + it.ID)
	}
	x.removed = append(x.removed, it.ID)
	return nil
}

func newTestTraverser(repo Repository, index Index, clauses ...string) *Traverser {
	log := logger.NewNopLogger()
	return New(repo, index, Options{
		Clauses:   clauses,
		BatchSize: 10,
		Retry: &retry.Config{
			MaxAttempts: 3,
			Backoff:     &retry.ConstantBackoff{},
			Logger:      log,
		},
		Checkpoint: &checkpoint.Options{
			Location:        time.UTC,
			MigrationOffset: checkpoint.DefaultMigrationOffset,
			Logger:          log,
		},
		Logger: log,
	})
}

func TestResumeSingleChannel(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	repo.add(0, item("a", 0), item("b", time.Hour))
	repo.remove(item("d1", 30*time.Minute))
	index := newFakeIndex()
	tr := newTestTraverser(repo, index)

	result, err := tr.Resume(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Failed)
	assert.True(t, result.Changed)
	assert.True(t, result.CycleComplete)
	assert.Equal(t,
		`{"uuid":"b","lastModified":"2009-06-01 13:00:00","uuidToRemove":"d1","lastRemoved":"2009-06-01 12:30:00"}`,
		result.Token)
	assert.Equal(t, []string{"a", "b"}, index.fed)
	assert.Equal(t, []string{"d1"}, index.removed)

	again, err := tr.Resume(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)
	assert.Equal(t, 0, again.Deleted)
	assert.False(t, again.Changed)
	assert.Equal(t, result.Token, again.Token)
}

func TestResumeEmptyRepository(t *testing.T) {
	tr := newTestTraverser(newFakeRepository(), newFakeIndex(), "x", "y", "z")

	result, err := tr.Resume(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.True(t, result.CycleComplete)
	assert.Equal(t, `{"index":0,"uuid":[null,null,null],"lastModified":[null,null,null]}`, result.Token)

	single := newTestTraverser(newFakeRepository(), newFakeIndex())
	result, err = single.Resume(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "", result.Token)
	assert.False(t, result.Changed)
}

func TestResumeRoundRobin(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	repo.add(0, item("a1", 0))
	repo.add(2, item("c1", time.Minute))
	index := newFakeIndex()
	tr := newTestTraverser(repo, index, "type = 'a'", "type = 'b'", "type = 'c'")

	first, err := tr.Resume(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, first.Channel)
	assert.Equal(t, 1, first.Inserted)
	assert.False(t, first.CycleComplete)
	assert.Equal(t, `{"index":1,"uuid":["a1",null],"lastModified":["2009-06-01 12:00:00",null]}`, first.Token)

	second, err := tr.Resume(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Channel, "empty channel 1 is skipped")
	assert.Equal(t, 1, second.Inserted)
	assert.False(t, second.CycleComplete)

	third, err := tr.Resume(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Inserted)
	assert.True(t, third.CycleComplete)
	assert.False(t, third.Changed)
	assert.Equal(t, second.Token, third.Token)

	assert.Equal(t, []string{"a1", "c1"}, index.fed)

	var clauses []string
	for _, ch := range repo.queried[:2] {
		clauses = append(clauses, ch.Clause)
	}
	assert.Equal(t, []string{"type = 'a'", "type = 'b'"}, clauses)
}

func TestResumeFeedFailureRestores(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	repo.add(0, item("a", 0), item("b", time.Minute), item("c", 2*time.Minute))
	index := newFakeIndex()
	index.failOn["b"] = true
	tr := newTestTraverser(repo, index)

	first, err := tr.Resume(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)
	assert.Equal(t, 1, first.Failed)
	assert.False(t, first.CycleComplete, "a failed batch does not advance the ring")
	assert.Equal(t, `{"uuid":"a","lastModified":"2009-06-01 12:00:00"}`, first.Token)

	delete(index.failOn, "b")
	second, err := tr.Resume(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Inserted)
	assert.Equal(t, []string{"a", "b", "c"}, index.fed)
}

func TestResumeFeedFailureStaysOnChannel(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	repo.add(0, item("a", 0), item("b", time.Minute))
	index := newFakeIndex()
	index.failOn["b"] = true
	tr := newTestTraverser(repo, index, "x", "y")

	result, err := tr.Resume(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, `{"index":0,"uuid":["a"],"lastModified":["2009-06-01 12:00:00"]}`, result.Token)
}

func TestResumeUnchangedTokenIsNotRewritten(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	repo.add(0, item("a", 0), item("b", time.Minute))
	index := newFakeIndex()
	index.failOn["b"] = true
	tr := newTestTraverser(repo, index, "x", "y")

	token := `{"index":0,"uuid":["a"],"lastModified":["2009-06-01 12:00:00"]}`
	cp, err := tr.Open(token)
	require.NoError(t, err)
	assert.True(t, cp.HasChanged(), "a ring of two always has a pending move")

	result, err := tr.Resume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, token, result.Token)
	assert.False(t, result.Changed, "the rolled back pass leaves the saved token alone")
}

func TestResumeRemoveFailureRestores(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	repo.remove(item("d1", 0), item("d2", time.Minute))
	index := newFakeIndex()
	index.failOn["d2"] = true
	tr := newTestTraverser(repo, index)

	result, err := tr.Resume(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, `{"uuidToRemove":"d1","lastRemoved":"2009-06-01 12:00:00"}`, result.Token)
}

func TestResumeRetriesRepository(t *testing.T) {
	repo := newFakeRepository()
	repo.add(0, item("a", 0))
	repo.failures = 2
	tr := newTestTraverser(repo, newFakeIndex())

	result, err := tr.Resume(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Len(t, repo.queried, 3)
}

func TestResumeRepositoryFailure(t *testing.T) {
	repo := newFakeRepository()
	repo.failures = 10
	tr := newTestTraverser(repo, newFakeIndex())

	_, err := tr.Resume(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeRepository))
}

func TestResumeInvalidToken(t *testing.T) {
	tr := newTestTraverser(newFakeRepository(), newFakeIndex())

	_, err := tr.Resume(context.Background(), "{not json")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidCheckpoint(err))
}

func TestResumeMigratesLegacyToken(t *testing.T) {
	tr := newTestTraverser(newFakeRepository(), newFakeIndex())

	legacy := `{"uuid":"a","lastModified":"2009-06-01 12:00:00","lastRemoveDate":"2009-06-03 00:00:00"}`
	result, err := tr.Resume(context.Background(), legacy)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, `{"uuid":"a","lastModified":"2009-06-01 12:00:00","lastRemoved":"2009-06-02 00:00:00"}`, result.Token)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Traversal.Channels = []string{"x", "y"}

	tr, err := NewFromConfig(cfg, newFakeRepository(), newFakeIndex(), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Channels())
	assert.Equal(t, cfg.Traversal.BatchSize, tr.opts.BatchSize)

	cfg.Checkpoint.Location = "Not/AZone"
	_, err = NewFromConfig(cfg, newFakeRepository(), newFakeIndex(), logger.NewNopLogger())
	assert.True(t, errs.IsType(err, errs.ErrorTypeConfig))
}

func TestChannelsDefaultToOne(t *testing.T) {
	tr := newTestTraverser(newFakeRepository(), newFakeIndex())
	assert.Equal(t, 1, tr.Channels())
	assert.Equal(t, Channel{Index: 0}, tr.channel(0))
}
