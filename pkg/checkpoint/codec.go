package checkpoint

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	errs "synccursor/pkg/errors"
	"synccursor/pkg/logger"
)

// DateLayout is the second-precision format of every date in a token
const DateLayout = "2006-01-02 15:04:05"

// Token field names
const (
	fieldIndex            = "index"
	fieldInsertID         = "uuid"
	fieldInsertDate       = "lastModified"
	fieldDeleteID         = "uuidToRemove"
	fieldDeleteDate       = "lastRemoved"
	fieldLegacyDeleteDate = "lastRemoveDate"
)

// String encodes the checkpoint as a token. The index field is the channel
// the next pass resumes on, the one InsertIndex reports. It returns "" when
// there is nothing to resume from: a single slot without a date and no
// deletion date.
func (c *Checkpoint) String() string {
	if len(c.inserts) == 1 && !c.InsertDate().Valid && !c.deletion.Date.Valid {
		return ""
	}

	var token string
	var err error
	set := func(path string, value interface{}) {
		if err == nil {
			token, err = sjson.Set(token, path, value)
		}
	}

	if len(c.inserts) > 1 || c.next > 0 {
		ids := make([]interface{}, len(c.inserts))
		dates := make([]interface{}, len(c.inserts))
		for i, m := range c.inserts {
			if m.ID.Valid {
				ids[i] = m.ID.String
			}
			if m.Date.Valid {
				dates[i] = c.formatDate(m.Date)
			}
		}
		set(fieldIndex, c.index)
		set(fieldInsertID, ids)
		set(fieldInsertDate, dates)
	} else {
		if m := c.inserts[0]; m.ID.Valid {
			set(fieldInsertID, m.ID.String)
		}
		if m := c.inserts[0]; m.Date.Valid {
			set(fieldInsertDate, c.formatDate(m.Date))
		}
	}

	if c.deletion.ID.Valid {
		set(fieldDeleteID, c.deletion.ID.String)
	}
	if c.deletion.Date.Valid {
		set(fieldDeleteDate, c.formatDate(c.deletion.Date))
	}

	if err != nil {
		// Strings, ints and nulls always encode.
		panic(fmt.Sprintf("checkpoint: encode: %v", err))
	}

	c.opts.Logger.DebugWithFields("Created checkpoint", map[string]interface{}{
		"token": token,
	})
	return token
}

func (c *Checkpoint) formatDate(date null.Time) string {
	return date.Time.In(c.opts.Location).Format(DateLayout)
}

// Parse decodes a token produced by String, or by the legacy single-channel
// encoding, for a ring of the given number of channels. A token that is not
// a JSON object, holds an unparseable date, has insertion arrays of
// different lengths, or names a channel outside the ring is rejected with an
// invalid-checkpoint error.
func Parse(channels int, token string, opts *Options) (*Checkpoint, error) {
	c := newCheckpoint(channels, opts)

	if err := c.decode(token); err != nil {
		logger.LogInvalidCheckpoint(c.opts.Logger, token, err)
		return nil, errs.New(errs.ErrorTypeInvalidCheckpoint, fmt.Sprintf("invalid checkpoint %q", token), err)
	}

	c.start = c.index
	c.next = incrementModulo(c.index, c.channels)
	c.rebaseline()

	logger.LogCheckpointParsed(c.opts.Logger, token, c.index, c.channels)
	return c, nil
}

func (c *Checkpoint) decode(token string) error {
	if !gjson.Valid(token) {
		return errors.New("malformed JSON")
	}
	root := gjson.Parse(token)
	if !root.IsObject() {
		return errors.New("not a JSON object")
	}

	if index := root.Get(fieldIndex); index.Exists() {
		if err := c.decodeIndexed(root, index); err != nil {
			return err
		}
	} else {
		id, err := jsonString(root.Get(fieldInsertID))
		if err != nil {
			return fmt.Errorf("%s: %w", fieldInsertID, err)
		}
		date, err := c.jsonDate(root.Get(fieldInsertDate))
		if err != nil {
			return fmt.Errorf("%s: %w", fieldInsertDate, err)
		}
		c.index = 0
		c.inserts = []Mark{{ID: id, Date: date}}
	}

	id, err := jsonString(root.Get(fieldDeleteID))
	if err != nil {
		return fmt.Errorf("%s: %w", fieldDeleteID, err)
	}
	date, err := c.jsonDate(root.Get(fieldDeleteDate))
	if err != nil {
		return fmt.Errorf("%s: %w", fieldDeleteDate, err)
	}
	c.deletion = Mark{ID: id, Date: date}

	if !c.deletion.Date.Valid {
		legacy, err := c.jsonDate(root.Get(fieldLegacyDeleteDate))
		if err != nil {
			return fmt.Errorf("%s: %w", fieldLegacyDeleteDate, err)
		}
		if legacy.Valid {
			// Repeated on every parse until the migrated token is persisted.
			migrated := legacy.Time.Add(c.opts.MigrationOffset)
			c.deletion.Date = null.TimeFrom(migrated)
			logger.LogMigration(c.opts.Logger, legacy.Time, migrated)
		}
	}

	return nil
}

func (c *Checkpoint) decodeIndexed(root, indexField gjson.Result) error {
	index, err := jsonInt(indexField)
	if err != nil {
		return fmt.Errorf("%s: %w", fieldIndex, err)
	}

	ids := root.Get(fieldInsertID)
	dates := root.Get(fieldInsertDate)
	if !ids.IsArray() || !dates.IsArray() {
		return fmt.Errorf("%s and %s must be arrays in the indexed form", fieldInsertID, fieldInsertDate)
	}
	idList := ids.Array()
	dateList := dates.Array()
	if len(idList) != len(dateList) {
		return fmt.Errorf("%d ids but %d dates", len(idList), len(dateList))
	}
	if index < 0 || index > len(idList) || index >= c.channels {
		return fmt.Errorf("index %d out of range for %d slots and %d channels", index, len(idList), c.channels)
	}

	inserts := make([]Mark, 0, len(idList)+1)
	for i := range idList {
		id, err := jsonString(idList[i])
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", fieldInsertID, i, err)
		}
		date, err := c.jsonDate(dateList[i])
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", fieldInsertDate, i, err)
		}
		inserts = append(inserts, Mark{ID: id, Date: date})
	}
	if index == len(inserts) {
		// About to start a channel that has never been visited.
		inserts = append(inserts, Mark{})
	}

	c.index = index
	c.inserts = inserts
	return nil
}

// jsonString returns a trimmed scalar, or null when it is missing, null or blank
func jsonString(r gjson.Result) (null.String, error) {
	switch r.Type {
	case gjson.Null:
		return null.String{}, nil
	case gjson.JSON:
		return null.String{}, errors.New("expected a string")
	}
	value := strings.TrimSpace(r.String())
	if value == "" {
		return null.String{}, nil
	}
	return null.StringFrom(value), nil
}

// jsonDate parses a formatted date, or returns null when it is missing, null or blank
func (c *Checkpoint) jsonDate(r gjson.Result) (null.Time, error) {
	value, err := jsonString(r)
	if err != nil || !value.Valid {
		return null.Time{}, err
	}
	t, err := time.ParseInLocation(DateLayout, value.String, c.opts.Location)
	if err != nil {
		return null.Time{}, err
	}
	return null.TimeFrom(t), nil
}

// jsonInt accepts an integral number or a string holding one
func jsonInt(r gjson.Result) (int, error) {
	switch r.Type {
	case gjson.Number:
		if r.Num != math.Trunc(r.Num) {
			return 0, fmt.Errorf("%s is not an integer", r.Raw)
		}
		return int(r.Num), nil
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(r.Str))
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", r.Str)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s is not an integer", r.Raw)
	}
}
