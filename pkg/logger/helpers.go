package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// orGlobal returns l, or the global logger when l is nil
func orGlobal(l Logger) Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}

// LogCheckpointParsed logs a successfully decoded checkpoint token
func LogCheckpointParsed(l Logger, token string, index, channels int) {
	orGlobal(l).DebugWithFields("Parsed checkpoint", map[string]interface{}{
		"token":    token,
		"index":    index,
		"channels": channels,
	})
}

// LogInvalidCheckpoint logs a token that could not be decoded
func LogInvalidCheckpoint(l Logger, token string, err error) {
	orGlobal(l).WithError(err).ErrorWithFields("Invalid checkpoint", map[string]interface{}{
		"token": token,
	})
}

// LogMigration logs the shift of a legacy deletion timestamp
func LogMigration(l Logger, legacy, migrated time.Time) {
	orGlobal(l).InfoWithFields("Migrating legacy deletion timestamp", map[string]interface{}{
		"legacy":   legacy,
		"migrated": migrated,
	})
}

// LogPass logs the outcome of one traversal pass
func LogPass(l Logger, channel, inserted, deleted, failed int, cycleComplete bool) {
	fields := map[string]interface{}{
		"channel":        channel,
		"inserted":       inserted,
		"deleted":        deleted,
		"failed":         failed,
		"cycle_complete": cycleComplete,
	}

	if failed > 0 {
		orGlobal(l).WarnWithFields("Traversal pass stopped on failed item", fields)
		return
	}
	orGlobal(l).InfoWithFields("Traversal pass completed", fields)
}

// LogStoreOperation logs a cursor store call
func LogStoreOperation(l Logger, backend, operation, name string, err error) {
	fields := map[string]interface{}{
		"backend":   backend,
		"operation": operation,
		"name":      name,
	}

	if err != nil {
		orGlobal(l).WithError(err).ErrorWithFields("Cursor store operation failed", fields)
		return
	}
	orGlobal(l).DebugWithFields("Cursor store operation", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
