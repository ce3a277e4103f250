package report

import (
	"errors"
	"fmt"
	"sync"

	"qsafp-harness/internal/failsafe"
	"qsafp-harness/internal/logger"
	"qsafp-harness/internal/metrics"
)

// failure は書き込みに失敗した結果とシンクの組
type failure struct {
	sink    Sink
	outcome failsafe.Outcome
}

// Reporter は結果を保持し、全シンクに書き出す
// 結果は追記のみで、読み込み順を保つ
type Reporter struct {
	sinks   []Sink
	metrics *metrics.Metrics

	mu       sync.Mutex
	outcomes []failsafe.Outcome
	failures []failure
}

// New は新しい Reporter を作成する
func New(sinks ...Sink) *Reporter {
	return &Reporter{sinks: sinks}
}

// SetMetrics は結果を集計するメトリクスを設定する
func (r *Reporter) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// AddSink はシンクを追加する
func (r *Reporter) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Append は結果を記録し、全シンクに書き出す
// シンクの失敗はログに残して保持し、結果自体は必ずメモリに残る
func (r *Reporter) Append(o failsafe.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = append(r.outcomes, o)
	if r.metrics != nil {
		r.metrics.RecordOutcome(metrics.Observation{
			Quorum:      o.QuorumSatisfied,
			Decision:    o.DecisionTime(),
			Containment: o.ContainmentTime(),
			Skipped:     o.SkippedThreats,
			Aborted:     o.AbortedThreats,
		})
	}

	var errs []error
	for _, s := range r.sinks {
		if err := r.write(s, o); err != nil {
			r.failures = append(r.failures, failure{sink: s, outcome: o})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reporter) write(s Sink, o failsafe.Outcome) error {
	if err := s.Write(o); err != nil {
		err = fmt.Errorf("%w: %s: %s: %v", ErrSinkWrite, s.Name(), o.ScenarioID, err)
		logger.Error(o.ScenarioID, "%v", err)
		return err
	}
	return nil
}

// Retry は失敗した書き込みを再試行する
func (r *Reporter) Retry() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.failures
	r.failures = nil

	var errs []error
	for _, f := range pending {
		if err := r.write(f.sink, f.outcome); err != nil {
			r.failures = append(r.failures, f)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending は未書き込みの件数を返す
func (r *Reporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

// Outcomes は記録済みの結果のコピーを返す
func (r *Reporter) Outcomes() []failsafe.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]failsafe.Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Summary は記録済みの結果のテキストレポートを返す
func (r *Reporter) Summary() string {
	return Summary(r.Outcomes())
}

// Close は全シンクを閉じる
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
