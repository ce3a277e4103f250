// Package report persists fail-safe outcomes.
//
// A Reporter keeps every outcome in memory in load order and writes it
// to each configured Sink. A failing sink never stops the run: the error
// is logged wrapped in ErrSinkWrite, remembered, and can be re-attempted
// with Retry.
//
// Sinks:
//
//   - ConsoleSink logs one line per outcome through the logger package.
//   - CSVSink appends rows and writes the header only to an empty file.
//   - JSONLSink appends one JSON object per line.
//   - SQLiteSink stores rows in an embedded schema with WAL enabled.
//
// Summary renders the end-of-run text report.
package report
