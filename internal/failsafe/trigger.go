package failsafe

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"qsafp-harness/internal/events"
	"qsafp-harness/internal/hal"
	"qsafp-harness/internal/logger"
	"qsafp-harness/internal/quorum"
)

// 状態遷移の誤用
var (
	ErrNotTriggered = errors.New("fail-safe not triggered")
	ErrCompleted    = errors.New("fail-safe already completed")
)

// State はフェイルセーフの状態
type State int

const (
	StateArmed State = iota
	StateTriggered
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "ARMED"
	case StateTriggered:
		return "TRIGGERED"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Reason は発火理由
type Reason int

const (
	ReasonNone Reason = iota
	ReasonQuorum
	ReasonLeaseExpiry
)

func (r Reason) String() string {
	switch r {
	case ReasonQuorum:
		return "QUORUM"
	case ReasonLeaseExpiry:
		return "LEASE_EXPIRY"
	default:
		return "NONE"
	}
}

// MarshalText は理由名で出力する
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText は理由名を読み込む
func (r *Reason) UnmarshalText(text []byte) error {
	switch string(text) {
	case "QUORUM":
		*r = ReasonQuorum
	case "LEASE_EXPIRY":
		*r = ReasonLeaseExpiry
	case "NONE", "":
		*r = ReasonNone
	default:
		return fmt.Errorf("unknown trigger reason %q", text)
	}
	return nil
}

// Resolve はクォーラム判定を発火理由に変換する
// 期限切れ・キャンセルはフェイルセーフとして LEASE_EXPIRY 扱い
func Resolve(r quorum.Result) Reason {
	if r.Satisfied {
		return ReasonQuorum
	}
	return ReasonLeaseExpiry
}

// Alerter はアラート信号の送信先
type Alerter interface {
	Alert(sig hal.Signal)
}

// Trigger は1シナリオ分のフェイルセーフ状態機械
type Trigger struct {
	scenarioID string
	startedAt  time.Time
	eventBus   *events.Bus
	alerter    Alerter

	mu          sync.Mutex
	state       State
	reason      Reason
	triggeredAt time.Time
	completedAt time.Time
}

// New は ARMED 状態の Trigger を作成する
func New(scenarioID string, startedAt time.Time) *Trigger {
	return &Trigger{
		scenarioID: scenarioID,
		startedAt:  startedAt,
	}
}

// SetEventBus はイベントバスを設定する
func (t *Trigger) SetEventBus(bus *events.Bus) {
	t.eventBus = bus
}

// SetAlerter はアラート送信先を設定する
func (t *Trigger) SetAlerter(a Alerter) {
	t.alerter = a
}

// State は現在の状態を返す
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reason は発火理由を返す
func (t *Trigger) Reason() Reason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Fire は ARMED から TRIGGERED へ遷移する
// 最初の呼び出しのみ有効で、以降は false を返す
func (t *Trigger) Fire(reason Reason, at time.Time) bool {
	t.mu.Lock()
	if t.state != StateArmed {
		t.mu.Unlock()
		return false
	}
	t.state = StateTriggered
	t.reason = reason
	t.triggeredAt = at
	t.mu.Unlock()

	logger.Info(t.scenarioID, "FAIL-SAFE TRIGGERED (%s) after %.2fms", reason, ms(at.Sub(t.startedAt)))
	if t.alerter != nil {
		t.alerter.Alert(hal.SignalTriggered)
	}
	if t.eventBus != nil {
		t.eventBus.Publish(events.NewFailSafeTriggeredEvent(t.scenarioID, reason.String()))
	}
	return true
}

// Complete は TRIGGERED から COMPLETED へ遷移する
func (t *Trigger) Complete(at time.Time) error {
	t.mu.Lock()
	switch t.state {
	case StateArmed:
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotTriggered, t.scenarioID)
	case StateCompleted:
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCompleted, t.scenarioID)
	}
	t.state = StateCompleted
	t.completedAt = at
	reason := t.reason
	t.mu.Unlock()

	containment := ms(at.Sub(t.startedAt))
	logger.Info(t.scenarioID, "fail-safe completed (%s), containment %.2fms", reason, containment)
	if t.alerter != nil {
		t.alerter.Alert(hal.SignalCompleted)
	}
	if t.eventBus != nil {
		t.eventBus.Publish(events.NewFailSafeCompletedEvent(t.scenarioID, reason.String(), containment))
	}
	return nil
}

// Outcome は COMPLETED 後に base へ発火情報を埋めた結果を返す
func (t *Trigger) Outcome(base Outcome) (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateCompleted {
		return Outcome{}, fmt.Errorf("%w: outcome requested in state %s", ErrNotTriggered, t.state)
	}

	base.ScenarioID = t.scenarioID
	base.Triggered = true
	base.TriggerReason = t.reason
	base.QuorumSatisfied = t.reason == ReasonQuorum
	base.DecisionTimeMs = ms(t.triggeredAt.Sub(t.startedAt))
	if base.ContainmentTimeMs == 0 {
		base.ContainmentTimeMs = ms(t.completedAt.Sub(t.startedAt))
	}
	base.CompletedAt = t.completedAt
	return base, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
