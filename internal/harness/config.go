package harness

import (
	"fmt"
	"time"

	"qsafp-harness/internal/hal"
	"qsafp-harness/internal/quorum"
	"qsafp-harness/internal/scenario"
)

// Config はハーネスの設定
type Config struct {
	Vendor string // HALベンダー名

	// クォーラム設定
	Monitors    int           // 検知モニター数 k（0 なら脅威数）
	Quorum      int           // 必要なTRIGGER票数 q（0 なら過半数）
	LeaseWindow time.Duration // 固定リース窓（0 なら最長脅威時間 + LeaseGrace）
	LeaseGrace  time.Duration // リース窓の猶予
	Biometric   bool          // ベンダーの在席確認をモニターに加える

	// 実行設定
	Parallel        int           // 同時実行シナリオ数
	ScenarioTimeout time.Duration // シナリオごとの監督タイムアウト（0 なら無制限）
	Heartbeat       time.Duration // ホストのハートビート間隔（0 なら無効）

	Limits scenario.Limits
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Vendor:     hal.DefaultVendor,
		LeaseGrace: quorum.DefaultGrace,
		Parallel:   1,
		Limits:     scenario.DefaultLimits(),
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if _, ok := hal.Get(c.Vendor); !ok {
		return fmt.Errorf("unknown vendor %q (available: %v)", c.Vendor, hal.List())
	}
	if c.Monitors < 0 {
		return fmt.Errorf("monitors must be non-negative")
	}
	if c.Quorum < 0 {
		return fmt.Errorf("quorum must be non-negative")
	}
	if c.LeaseWindow < 0 || c.LeaseGrace < 0 {
		return fmt.Errorf("lease window and grace must be non-negative")
	}
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must be non-negative")
	}
	if c.ScenarioTimeout < 0 || c.Heartbeat < 0 {
		return fmt.Errorf("timeouts must be non-negative")
	}
	return nil
}

// leaseWindow はシナリオのリース窓を返す
func (c Config) leaseWindow(spec scenario.Spec) time.Duration {
	if c.LeaseWindow > 0 {
		return c.LeaseWindow
	}
	return quorum.Window(spec.MaxDuration(), c.LeaseGrace)
}

// detectors はシナリオの検知モニター数を返す
func (c Config) detectors(spec scenario.Spec) int {
	if c.Monitors > 0 {
		return c.Monitors
	}
	return len(spec.Threats)
}
