package failsafe

import (
	"context"
	"errors"
	"fmt"

	"qsafp-harness/internal/hal"
	"qsafp-harness/internal/logger"
)

// ErrOutOfBounds は脅威数がホストの許容範囲外であることを表す
var ErrOutOfBounds = errors.New("threat count outside containment bounds")

// Activation は封じ込めの入力
type Activation struct {
	ScenarioID  string
	Reason      Reason
	ThreatCount int
}

// Containment は TRIGGERED と COMPLETED の間に実行される副作用
type Containment interface {
	Contain(ctx context.Context, a Activation) error
}

// ContainmentFunc は関数を Containment として使うためのアダプタ
type ContainmentFunc func(ctx context.Context, a Activation) error

// Contain は f(ctx, a) を呼ぶ
func (f ContainmentFunc) Contain(ctx context.Context, a Activation) error {
	return f(ctx, a)
}

// HostContainment はHALの境界チェックとアラートで封じ込めを行う
type HostContainment struct {
	Host     hal.Capability
	Capacity int
}

// NewHostContainment は新しい HostContainment を作成する
func NewHostContainment(host hal.Capability, capacity int) *HostContainment {
	return &HostContainment{Host: host, Capacity: capacity}
}

// Contain は脅威数を検査し、封じ込めアラートを送る
// 範囲外でもアラートは送り、エラーを返す
func (h *HostContainment) Contain(ctx context.Context, a Activation) error {
	if err := ctx.Err(); err != nil {
		logger.Warn(a.ScenarioID, "containment under cancelled context: %v", err)
	}

	h.Host.Alert(hal.SignalContainment)
	if !h.Host.BoundaryCheck(a.ThreatCount, 0, h.Capacity) {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrOutOfBounds, a.ThreatCount, h.Capacity)
	}
	logger.Info(a.ScenarioID, "containment activated via %s (%s, %d threats)", h.Host.Name(), a.Reason, a.ThreatCount)
	return nil
}
