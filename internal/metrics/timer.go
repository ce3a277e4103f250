package metrics

import (
	"sync"
	"time"
)

// Timer はモノトニック時計で経過時間を測る
// time.Now() の値はモノトニック時刻を含むため、壁時計の変更に影響されない
type Timer struct {
	mu      sync.Mutex
	start   time.Time
	stop    time.Time
	stopped bool
}

// StartTimer は計測を開始する
func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Started は開始時刻を返す
func (t *Timer) Started() time.Time {
	return t.start
}

// Stop は計測を終了し経過時間を返す（最初の呼び出しのみ有効）
func (t *Timer) Stop() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.stopped {
		t.stop = time.Now()
		t.stopped = true
	}
	return t.stop.Sub(t.start)
}

// Elapsed は経過時間を返す（停止後は確定値）
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return t.stop.Sub(t.start)
	}
	return time.Since(t.start)
}

// ElapsedMs は経過時間をミリ秒で返す
func (t *Timer) ElapsedMs() float64 {
	return Milliseconds(t.Elapsed())
}

// Milliseconds はミリ秒（小数）に変換する
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
