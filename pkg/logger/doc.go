// Package logger provides structured logging for the cursor synchronizer.
//
// It wraps zerolog behind a small Logger interface so that library packages
// can accept a Logger in their options and tests can substitute a
// TestLogger or NopLogger.
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//	logger.WithField("connector", "docbase1").Info("Resuming traversal")
//
// Without a log file, output is written to stderr in console format. With a
// file configured, JSON lines are appended to the file as well.
package logger
