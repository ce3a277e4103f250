package report

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"qsafp-harness/internal/failsafe"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteSink は結果をSQLiteに保存する
// Close 後の Write と Outcomes は os.ErrClosed を返す
type SQLiteSink struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite はデータベースを作成または開き、スキーマを適用する
// WAL モード、busy_timeout 5秒、単一コネクション
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite の書き込みは1つずつ
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &SQLiteSink{path: path, db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Name はシンク名を返す
func (s *SQLiteSink) Name() string { return "sqlite:" + s.path }

// Write は結果を1行挿入する（同じ run_id/scenario_id は上書きしない）
func (s *SQLiteSink) Write(o failsafe.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return os.ErrClosed
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO outcomes (
			run_id, scenario_id, description, triggered, quorum_satisfied,
			trigger_reason, decision_time_ms, containment_time_ms, lease_window_ms,
			threat_count, trigger_votes, hold_votes, monitors, threshold,
			skipped_threats, aborted_threats, cancelled, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.ScenarioID, o.Description, o.Triggered, o.QuorumSatisfied,
		o.TriggerReason.String(), o.DecisionTimeMs, o.ContainmentTimeMs, o.LeaseWindowMs,
		o.ThreatCount, o.TriggerVotes, o.HoldVotes, o.Monitors, o.Threshold,
		o.SkippedThreats, o.AbortedThreats, o.Cancelled, o.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert outcome %s: %w", o.ScenarioID, err)
	}
	return nil
}

// Outcomes は runID の結果を挿入順に返す（空文字なら全件）
func (s *SQLiteSink) Outcomes(ctx context.Context, runID string) ([]failsafe.Outcome, error) {
	query := `
		SELECT run_id, scenario_id, description, triggered, quorum_satisfied,
			trigger_reason, decision_time_ms, containment_time_ms, lease_window_ms,
			threat_count, trigger_votes, hold_votes, monitors, threshold,
			skipped_threats, aborted_threats, cancelled, completed_at
		FROM outcomes`
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY seq"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, os.ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []failsafe.Outcome
	for rows.Next() {
		var (
			o           failsafe.Outcome
			reason      string
			completedAt string
		)
		if err := rows.Scan(
			&o.RunID, &o.ScenarioID, &o.Description, &o.Triggered, &o.QuorumSatisfied,
			&reason, &o.DecisionTimeMs, &o.ContainmentTimeMs, &o.LeaseWindowMs,
			&o.ThreatCount, &o.TriggerVotes, &o.HoldVotes, &o.Monitors, &o.Threshold,
			&o.SkippedThreats, &o.AbortedThreats, &o.Cancelled, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if err := o.TriggerReason.UnmarshalText([]byte(reason)); err != nil {
			return nil, err
		}
		if o.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close はデータベースを閉じる
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
