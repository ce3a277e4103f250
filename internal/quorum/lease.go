package quorum

import "time"

// DefaultGrace はリース期間に上乗せする猶予
const DefaultGrace = 50 * time.Millisecond

// Lease はシナリオごとの判定期限
type Lease struct {
	ScenarioID string
	Start      time.Time
	Deadline   time.Time
}

// NewLease は start から window 後を期限とするリースを作成する
func NewLease(scenarioID string, start time.Time, window time.Duration) Lease {
	if window < 0 {
		window = 0
	}
	return Lease{
		ScenarioID: scenarioID,
		Start:      start,
		Deadline:   start.Add(window),
	}
}

// Window はリースの長さを返す
func (l Lease) Window() time.Duration {
	return l.Deadline.Sub(l.Start)
}

// Expired は now が期限以降かどうかを返す
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.Deadline)
}

// Remaining は期限までの残り時間を返す（期限切れなら0）
func (l Lease) Remaining(now time.Time) time.Duration {
	if d := l.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Window は最長の脅威ウィンドウに猶予を足したリース期間を返す
func Window(maxThreat, grace time.Duration) time.Duration {
	if grace < 0 {
		grace = 0
	}
	return maxThreat + grace
}
