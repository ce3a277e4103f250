package harness

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"qsafp-harness/internal/hal"
	"qsafp-harness/internal/logger"
	"qsafp-harness/internal/quorum"
	"qsafp-harness/internal/threat"
)

// voters は脅威の開始イベントから票を生成する
// 検知モニターは開始順に1票ずつTRIGGERを投じる
type voters struct {
	scenarioID string
	monitor    *quorum.Monitor
	host       hal.Capability
	detectors  []string
	next       atomic.Int64
}

func detectorIDs(k int) []string {
	ids := make([]string, k)
	for i := range ids {
		ids[i] = fmt.Sprintf("detector-%d", i+1)
	}
	return ids
}

func biometricID(vendor string) string {
	return "biometric-" + vendor
}

// onThreatStart は threat.Hooks.OnStart として各アクターから並行に呼ばれる
func (v *voters) onThreatStart(a threat.Actor) {
	i := int(v.next.Add(1)) - 1
	if i >= len(v.detectors) {
		return
	}
	logger.Info(v.scenarioID, "Threat %s detected by %s", a.Spec.Type, v.detectors[i])
	v.cast(v.detectors[i], quorum.VerdictTrigger)
}

// biometric はベンダーの在席確認の結果を投票する
func (v *voters) biometric(ctx context.Context, vendor string) {
	ok, err := v.host.BiometricQuorum(ctx)
	if err != nil {
		logger.Warn(v.scenarioID, "biometric quorum failed: %v", err)
		return
	}
	verdict := quorum.VerdictHold
	if ok {
		verdict = quorum.VerdictTrigger
	}
	v.cast(biometricID(vendor), verdict)
}

func (v *voters) cast(monitorID string, verdict quorum.Verdict) {
	vote := quorum.Vote{
		MonitorID: monitorID,
		Verdict:   verdict,
		Timestamp: time.Now(),
		Nonce:     v.nonce(),
		HostTime:  v.host.Timestamp(),
	}
	if err := v.monitor.Cast(vote); err != nil {
		if errors.Is(err, quorum.ErrClosed) {
			logger.Debug(v.scenarioID, "vote from %s after close: %v", monitorID, err)
			return
		}
		logger.Warn(v.scenarioID, "vote from %s rejected: %v", monitorID, err)
	}
}

// nonce はホストの乱数から票のnonceを作る
// 乱数が取れないかゼロ埋めのベンダーでは UUID を使う
func (v *voters) nonce() string {
	buf := make([]byte, 16)
	if err := v.host.Entropy(buf); err != nil || isZero(buf) {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}

func isZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
