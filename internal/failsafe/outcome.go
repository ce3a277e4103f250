package failsafe

import "time"

// Outcome は1シナリオの最終結果（作成後は変更しない）
type Outcome struct {
	RunID             string    `json:"run_id"`
	ScenarioID        string    `json:"scenario_id"`
	Description       string    `json:"description"`
	Triggered         bool      `json:"triggered"`
	QuorumSatisfied   bool      `json:"quorum_satisfied"`
	TriggerReason     Reason    `json:"trigger_reason"`
	DecisionTimeMs    float64   `json:"decision_time_ms"`
	ContainmentTimeMs float64   `json:"containment_time_ms"`
	LeaseWindowMs     float64   `json:"lease_window_ms"`
	ThreatCount       int       `json:"threat_count"`
	TriggerVotes      int       `json:"trigger_votes"`
	HoldVotes         int       `json:"hold_votes"`
	Monitors          int       `json:"monitors"`
	Threshold         int       `json:"threshold"`
	SkippedThreats    int       `json:"skipped_threats"`
	AbortedThreats    int       `json:"aborted_threats"`
	Cancelled         bool      `json:"cancelled"`
	CompletedAt       time.Time `json:"completed_at"`
}

// ContainmentTime は封じ込め時間を time.Duration で返す
func (o Outcome) ContainmentTime() time.Duration {
	return time.Duration(o.ContainmentTimeMs * float64(time.Millisecond))
}

// DecisionTime は判定時間を time.Duration で返す
func (o Outcome) DecisionTime() time.Duration {
	return time.Duration(o.DecisionTimeMs * float64(time.Millisecond))
}
