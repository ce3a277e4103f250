package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"qsafp-harness/internal/failsafe"
	"qsafp-harness/internal/logger"
)

// ErrSinkWrite は結果の永続化に失敗したことを表す
var ErrSinkWrite = errors.New("sink write failed")

// Sink は結果の出力先
type Sink interface {
	Name() string
	Write(o failsafe.Outcome) error
	Close() error
}

// CSVHeader はCSV出力の列
var CSVHeader = []string{
	"scenario_id",
	"containment_time_ms",
	"threat_count",
	"trigger_reason",
	"quorum_satisfied",
	"decision_time_ms",
}

// CSVRecord は結果をCSVの1行に変換する
func CSVRecord(o failsafe.Outcome) []string {
	return []string{
		o.ScenarioID,
		strconv.FormatFloat(o.ContainmentTimeMs, 'f', 3, 64),
		strconv.Itoa(o.ThreatCount),
		o.TriggerReason.String(),
		strconv.FormatBool(o.QuorumSatisfied),
		strconv.FormatFloat(o.DecisionTimeMs, 'f', 3, 64),
	}
}

// ConsoleSink はロガーに結果を出力する
type ConsoleSink struct {
	log *logger.Logger
}

// NewConsoleSink は新しい ConsoleSink を作成する（nil なら既定のロガー）
func NewConsoleSink(l *logger.Logger) *ConsoleSink {
	if l == nil {
		l = logger.Default
	}
	return &ConsoleSink{log: l}
}

// Name はシンク名を返す
func (c *ConsoleSink) Name() string { return "console" }

// Write は結果を1行で出力する
func (c *ConsoleSink) Write(o failsafe.Outcome) error {
	c.log.Info(o.ScenarioID, "[RESULT] %s elapsed=%.2fms decision=%.2fms threats=%d votes=%d/%d quorum=%t",
		o.TriggerReason, o.ContainmentTimeMs, o.DecisionTimeMs, o.ThreatCount,
		o.TriggerVotes, o.Threshold, o.QuorumSatisfied)
	return nil
}

// Close は何もしない
func (c *ConsoleSink) Close() error { return nil }

// CSVSink はCSVファイルに追記する
type CSVSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// OpenCSV はCSVファイルを追記モードで開く
// 空のファイルにだけヘッダーを書く
func OpenCSV(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv %s: %w", path, err)
	}

	s := &CSVSink{path: path, file: f, writer: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.writeRecord(CSVHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Name はシンク名を返す
func (s *CSVSink) Name() string { return "csv:" + s.path }

// Write は結果を1行追記する
func (s *CSVSink) Write(o failsafe.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRecord(CSVRecord(o))
}

func (s *CSVSink) writeRecord(record []string) error {
	if s.file == nil {
		return os.ErrClosed
	}
	if err := s.writer.Write(record); err != nil {
		return err
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Close はファイルを閉じる
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	err := errors.Join(s.writer.Error(), s.file.Close())
	s.file = nil
	return err
}

// JSONLSink は1結果1行のJSONを書き出す
type JSONLSink struct {
	name string

	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// OpenJSONL はJSON Linesファイルを追記モードで開く
func OpenJSONL(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl %s: %w", path, err)
	}
	return &JSONLSink{name: "jsonl:" + path, w: f, closer: f}, nil
}

// NewJSONLWriter は任意の Writer に出力する JSONLSink を作成する
func NewJSONLWriter(name string, w io.Writer) *JSONLSink {
	return &JSONLSink{name: name, w: w}
}

// Name はシンク名を返す
func (s *JSONLSink) Name() string { return s.name }

// Write は結果を1行のJSONで書き出す
func (s *JSONLSink) Write(o failsafe.Outcome) error {
	line, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return os.ErrClosed
	}
	_, err = s.w.Write(line)
	return err
}

// Close は出力先を閉じる
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
