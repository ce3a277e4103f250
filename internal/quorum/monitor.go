package quorum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qsafp-harness/internal/events"
	"qsafp-harness/internal/logger"
)

// 投票を受け付けない理由
var (
	ErrClosed         = errors.New("quorum monitor closed")
	ErrDuplicateVote  = errors.New("monitor already voted")
	ErrUnknownMonitor = errors.New("unknown monitor")
)

// Verdict はモニターの判定
type Verdict int

const (
	VerdictTrigger Verdict = iota
	VerdictHold
)

func (v Verdict) String() string {
	switch v {
	case VerdictTrigger:
		return "TRIGGER"
	case VerdictHold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// Vote は1つのモニターの投票
type Vote struct {
	MonitorID string
	Verdict   Verdict
	Timestamp time.Time // モノトニック時刻を含む time.Now() の値
	Nonce     string
	HostTime  uint64 // HAL のタイムスタンプ（参考値）
}

// MajorityThreshold は k モニターの過半数 ⌈k/2⌉ を返す（最小1）
func MajorityThreshold(k int) int {
	if k <= 0 {
		return 1
	}
	return (k + 1) / 2
}

// Result はクォーラム判定の結果
type Result struct {
	Satisfied    bool
	Expired      bool
	Cancelled    bool
	TriggerVotes int
	HoldVotes    int
	LateVotes    int
	Monitors     int
	Threshold    int
	ResolvedAt   time.Time
}

// Monitor はリース期限までの投票を集計する
type Monitor struct {
	lease     Lease
	threshold int
	monitors  map[string]struct{}
	eventBus  *events.Bus

	mu          sync.Mutex
	voted       map[string]bool
	triggers    int
	holds       int
	late        int
	satisfied   bool
	satisfiedAt time.Time
	decided     bool
	result      Result
	closed      bool
	reached     chan struct{}
}

// NewMonitor は新しいMonitorを作成する
// threshold が0以下なら過半数、k>0 で k を超える場合は k に丸める
func NewMonitor(lease Lease, monitorIDs []string, threshold int) *Monitor {
	k := len(monitorIDs)
	if threshold <= 0 {
		threshold = MajorityThreshold(k)
	}
	if k > 0 && threshold > k {
		logger.Warn(lease.ScenarioID, "quorum threshold %d exceeds %d monitors, clamping", threshold, k)
		threshold = k
	}

	monitors := make(map[string]struct{}, k)
	for _, id := range monitorIDs {
		monitors[id] = struct{}{}
	}

	return &Monitor{
		lease:     lease,
		threshold: threshold,
		monitors:  monitors,
		voted:     make(map[string]bool, k),
		reached:   make(chan struct{}),
	}
}

// SetEventBus はイベントバスを設定する
func (m *Monitor) SetEventBus(bus *events.Bus) {
	m.eventBus = bus
}

// Lease はリースを返す
func (m *Monitor) Lease() Lease {
	return m.lease
}

// Threshold は必要なTRIGGER票数を返す
func (m *Monitor) Threshold() int {
	return m.threshold
}

// Monitors はモニター数 k を返す
func (m *Monitor) Monitors() int {
	return len(m.monitors)
}

// Cast は投票を記録する
// 期限以降のタイムスタンプの票、および判定確定後の票は遅延票として数えない
func (m *Monitor) Cast(v Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.monitors[v.MonitorID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMonitor, v.MonitorID)
	}
	if m.voted[v.MonitorID] {
		return fmt.Errorf("%w: %s", ErrDuplicateVote, v.MonitorID)
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}

	m.voted[v.MonitorID] = true

	// 判定確定後に届いた票は、打刻が期限前でも遅延票として扱う
	if m.decided || !v.Timestamp.Before(m.lease.Deadline) {
		m.late++
		logger.Debug(m.lease.ScenarioID, "late vote from %s ignored", v.MonitorID)
		return nil
	}

	switch v.Verdict {
	case VerdictTrigger:
		m.triggers++
	default:
		m.holds++
	}
	logger.Debug(m.lease.ScenarioID, "vote %s from %s (%d/%d)", v.Verdict, v.MonitorID, m.triggers, m.threshold)
	if m.eventBus != nil {
		m.eventBus.Publish(events.NewVoteCastEvent(m.lease.ScenarioID, v.MonitorID, v.Verdict.String()))
	}

	if !m.satisfied && m.triggers >= m.threshold {
		m.satisfied = true
		m.satisfiedAt = v.Timestamp
		close(m.reached)
	}
	return nil
}

// Wait はクォーラム成立・リース期限・ctx キャンセルのいずれかまで待機する
// 票が0でも期限で必ず戻る。2回目以降は確定済みの結果を返す
func (m *Monitor) Wait(ctx context.Context) Result {
	timer := time.NewTimer(m.lease.Remaining(time.Now()))
	defer timer.Stop()

	select {
	case <-m.reached:
	case <-timer.C:
	case <-ctx.Done():
	}

	return m.resolve(ctx)
}

// resolve は判定を確定する
func (m *Monitor) resolve(ctx context.Context) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.decided {
		return m.result
	}

	r := Result{
		TriggerVotes: m.triggers,
		HoldVotes:    m.holds,
		LateVotes:    m.late,
		Monitors:     len(m.monitors),
		Threshold:    m.threshold,
	}

	now := time.Now()
	switch {
	case m.satisfied:
		r.Satisfied = true
		r.ResolvedAt = m.satisfiedAt
	case m.lease.Expired(now):
		r.Expired = true
		r.ResolvedAt = now
	case ctx.Err() != nil:
		r.Cancelled = true
		r.ResolvedAt = now
	default:
		// タイマーは期限前には発火しない
		r.Expired = true
		r.ResolvedAt = now
	}

	m.decided = true
	m.result = r
	return r
}

// Close は以降の投票を拒否する
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
