package checkpoint

import (
	"time"

	"github.com/guregu/null"
	"synccursor/pkg/logger"
)

// DefaultMigrationOffset is added to legacy local deletion timestamps when
// they are migrated to the UTC field. Real offsets lie between -14h and
// +10h; a full day guarantees the migrated value sorts before any UTC
// timestamp it could collide with, at the cost of replaying some deletions.
const DefaultMigrationOffset = -24 * time.Hour

// Options controls how a Checkpoint formats dates and migrates old tokens
type Options struct {
	// Location dates are formatted in and parsed from. Insertion dates are
	// repository-local and deletion dates are UTC; the token does not
	// record the difference.
	Location *time.Location

	// MigrationOffset shifts a legacy deletion timestamp on parse
	MigrationOffset time.Duration

	// Logger receives parse, migration and encoding diagnostics
	Logger logger.Logger
}

// DefaultOptions returns options with UTC dates and a one day migration offset
func DefaultOptions() *Options {
	return &Options{
		Location:        time.UTC,
		MigrationOffset: DefaultMigrationOffset,
		Logger:          logger.GetLogger(),
	}
}

// withDefaults returns a copy of opts with unset fields filled in
func (o *Options) withDefaults() *Options {
	if o == nil {
		return DefaultOptions()
	}
	opts := *o
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	return &opts
}

// Mark is a high-water mark: the id and timestamp of the last processed item
type Mark struct {
	ID   null.String
	Date null.Time
}

func (m Mark) equal(other Mark) bool {
	if m.ID.Valid != other.ID.Valid || m.Date.Valid != other.Date.Valid {
		return false
	}
	if m.ID.Valid && m.ID.String != other.ID.String {
		return false
	}
	return !m.Date.Valid || m.Date.Time.Equal(other.Date.Time)
}

// action records which mark the rollback shadow restores
type action int

const (
	actionNone action = iota
	actionInsert
	actionDelete
)

// Checkpoint is the resume cursor of an incremental traversal. It keeps one
// insertion mark per channel and a single deletion mark, and can undo the
// most recent update. A Checkpoint is owned by one traversal pass and is not
// safe for concurrent use.
type Checkpoint struct {
	opts *Options

	// channels is the ring modulus, never less than one
	channels int

	index int
	start int
	next  int

	inserts  []Mark
	deletion Mark

	// baselines for HasChanged and Restore
	prevInsert Mark
	prevDelete Mark
	last       action
}

// newCheckpoint returns a checkpoint with a single empty slot at index 0
func newCheckpoint(channels int, opts *Options) *Checkpoint {
	if channels < 1 {
		channels = 1
	}
	return &Checkpoint{
		opts:     opts.withDefaults(),
		channels: channels,
		inserts:  []Mark{{}},
	}
}

// New creates an empty checkpoint for a ring of the given number of channels
func New(channels int, opts *Options) *Checkpoint {
	c := newCheckpoint(channels, opts)
	c.next = incrementModulo(0, c.channels)
	c.rebaseline()
	return c
}

// InsertID returns the id of the last item inserted on the current channel
func (c *Checkpoint) InsertID() null.String {
	return c.inserts[c.index].ID
}

// InsertDate returns the modification date of the last item inserted on the current channel
func (c *Checkpoint) InsertDate() null.Time {
	return c.inserts[c.index].Date
}

// InsertIndex returns the channel currently being read
func (c *Checkpoint) InsertIndex() int {
	return c.index
}

// DeleteID returns the id of the last item deleted
func (c *Checkpoint) DeleteID() null.String {
	return c.deletion.ID
}

// DeleteDate returns the UTC audit timestamp of the last item deleted
func (c *Checkpoint) DeleteDate() null.Time {
	return c.deletion.Date
}

// InsertMarks returns a copy of the insertion marks of every tracked channel
func (c *Checkpoint) InsertMarks() []Mark {
	marks := make([]Mark, len(c.inserts))
	copy(marks, c.inserts)
	return marks
}

// SetInsertCheckpoint records the last inserted item on the current channel.
// The previous value becomes the restore point.
func (c *Checkpoint) SetInsertCheckpoint(date null.Time, id null.String) {
	c.prevInsert = c.inserts[c.index]
	c.inserts[c.index] = Mark{ID: id, Date: date}
	c.last = actionInsert
}

// SetDeleteCheckpoint records the last deleted item.
// The previous value becomes the restore point.
func (c *Checkpoint) SetDeleteCheckpoint(date null.Time, id null.String) {
	c.prevDelete = c.deletion
	c.deletion = Mark{ID: id, Date: date}
	c.last = actionDelete
}

// Restore undoes the most recent Set call, so that a failed item is
// retried on the next pass. Only one update can be undone; calling Restore
// again is a no-op.
func (c *Checkpoint) Restore() {
	switch c.last {
	case actionInsert:
		c.inserts[c.index] = c.prevInsert
	case actionDelete:
		c.deletion = c.prevDelete
	}
	c.last = actionNone
}

// HasChanged reports whether the checkpoint differs from its restore point,
// counting a pending move to another channel as a change.
func (c *Checkpoint) HasChanged() bool {
	return c.next != c.index ||
		!c.inserts[c.index].equal(c.prevInsert) ||
		!c.deletion.equal(c.prevDelete)
}

// rebaseline makes the current values the restore point
func (c *Checkpoint) rebaseline() {
	c.last = actionNone
	c.prevInsert = c.inserts[c.index]
	c.prevDelete = c.deletion
}
