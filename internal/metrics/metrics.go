package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Config はメトリクスの設定
type Config struct {
	MaxSamples int // P99計算用に保持する封じ込め時間のサンプル数
}

// Metrics はシナリオ結果の統計を収集する
type Metrics struct {
	scenarios        atomic.Uint64
	quorumTriggers   atomic.Uint64
	leaseTriggers    atomic.Uint64
	skippedThreats   atomic.Uint64
	abortedThreats   atomic.Uint64
	totalContainNs   atomic.Uint64
	totalDecisionNs  atomic.Uint64

	mu             sync.RWMutex
	startTime      time.Time
	containments   []time.Duration
	maxSamples     int
	maxContainment time.Duration
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(Config{MaxSamples: 1000})
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	if config.MaxSamples <= 0 {
		config.MaxSamples = 1000
	}
	return &Metrics{
		startTime:    time.Now(),
		containments: make([]time.Duration, 0, config.MaxSamples),
		maxSamples:   config.MaxSamples,
	}
}

// Observation は1シナリオ分の計測値
type Observation struct {
	Quorum      bool          // クォーラムで発火したか（false ならリース期限切れ）
	Decision    time.Duration // 開始から発火まで
	Containment time.Duration // 開始から COMPLETED まで
	Skipped     int
	Aborted     int
}

// RecordOutcome はシナリオ結果を記録する
func (m *Metrics) RecordOutcome(o Observation) {
	m.scenarios.Add(1)
	if o.Quorum {
		m.quorumTriggers.Add(1)
	} else {
		m.leaseTriggers.Add(1)
	}
	m.skippedThreats.Add(uint64(max(o.Skipped, 0)))
	m.abortedThreats.Add(uint64(max(o.Aborted, 0)))
	m.totalContainNs.Add(uint64(max(o.Containment, 0)))
	m.totalDecisionNs.Add(uint64(max(o.Decision, 0)))

	m.mu.Lock()
	if len(m.containments) < m.maxSamples {
		m.containments = append(m.containments, o.Containment)
	}
	if o.Containment > m.maxContainment {
		m.maxContainment = o.Containment
	}
	m.mu.Unlock()
}

// Scenarios は記録済みシナリオ数を返す
func (m *Metrics) Scenarios() uint64 {
	return m.scenarios.Load()
}

// QuorumTriggers はクォーラムで発火した数を返す
func (m *Metrics) QuorumTriggers() uint64 {
	return m.quorumTriggers.Load()
}

// LeaseTriggers はリース期限切れで発火した数を返す
func (m *Metrics) LeaseTriggers() uint64 {
	return m.leaseTriggers.Load()
}

// QuorumRate はクォーラム発火の割合を返す（0.0〜1.0）
func (m *Metrics) QuorumRate() float64 {
	total := m.scenarios.Load()
	if total == 0 {
		return 0
	}
	return float64(m.quorumTriggers.Load()) / float64(total)
}

// AverageContainment は平均封じ込め時間を返す
func (m *Metrics) AverageContainment() time.Duration {
	total := m.scenarios.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalContainNs.Load() / total)
}

// AverageDecision は平均判定時間を返す
func (m *Metrics) AverageDecision() time.Duration {
	total := m.scenarios.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalDecisionNs.Load() / total)
}

// P99Containment はP99封じ込め時間を返す（サンプルベース）
func (m *Metrics) P99Containment() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.containments) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.containments))
	copy(sorted, m.containments)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// MaxContainment は最大封じ込め時間を返す
func (m *Metrics) MaxContainment() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxContainment
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Scenarios          uint64        `json:"scenarios"`
	QuorumTriggers     uint64        `json:"quorum_triggers"`
	LeaseTriggers      uint64        `json:"lease_triggers"`
	QuorumRate         float64       `json:"quorum_rate"`
	SkippedThreats     uint64        `json:"skipped_threats"`
	AbortedThreats     uint64        `json:"aborted_threats"`
	AverageDecision    time.Duration `json:"average_decision_ns"`
	AverageContainment time.Duration `json:"average_containment_ns"`
	P99Containment     time.Duration `json:"p99_containment_ns"`
	MaxContainment     time.Duration `json:"max_containment_ns"`
	Elapsed            time.Duration `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Scenarios:          m.Scenarios(),
		QuorumTriggers:     m.QuorumTriggers(),
		LeaseTriggers:      m.LeaseTriggers(),
		QuorumRate:         m.QuorumRate(),
		SkippedThreats:     m.skippedThreats.Load(),
		AbortedThreats:     m.abortedThreats.Load(),
		AverageDecision:    m.AverageDecision(),
		AverageContainment: m.AverageContainment(),
		P99Containment:     m.P99Containment(),
		MaxContainment:     m.MaxContainment(),
		Elapsed:            time.Since(m.startTime),
	}
}
