// Package logger provides a simple, thread-safe logging facility.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, optional component tag, and
// message. The component tag is usually a scenario ID ("SC1") or the
// capability that produced the line ("hal:xai").
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Harness started")
//	logger.Info("SC1", "Threat START: ransomware")
//	logger.Warn("SC1", "threat list truncated to %d entries", 8)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("SC1", "vote cast by detector-1")
//
// # Log Levels
//
// Messages below the configured level are filtered:
//   - LevelDebug: all messages
//   - LevelInfo: Info, Warn, Error
//   - LevelWarn: Warn, Error
//   - LevelError: Error only
//
// Warnings() counts every Warn/Error call, filtered or not, so callers can
// tell whether a run produced degraded results.
//
// # Thread Safety
//
// All logging operations are protected by a mutex and safe for concurrent use.
package logger
