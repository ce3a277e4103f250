package hal

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"qsafp-harness/internal/events"
	"qsafp-harness/internal/logger"
)

// ErrUnsupported はベンダーが機能を提供しないことを表す
var ErrUnsupported = errors.New("capability not supported by vendor")

// Signal はホストに送るアラート信号
type Signal int

const (
	SignalBoot Signal = iota
	SignalTick
	SignalTriggered
	SignalContainment
	SignalCompleted
	SignalShutdown
)

func (s Signal) String() string {
	switch s {
	case SignalBoot:
		return "boot"
	case SignalTick:
		return "tick"
	case SignalTriggered:
		return "triggered"
	case SignalContainment:
		return "containment"
	case SignalCompleted:
		return "completed"
	case SignalShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Tone は信号に対応するビープ音（周波数Hzと長さms）を返す
func (s Signal) Tone() (hz, ms int) {
	switch s {
	case SignalBoot:
		return 1000, 200
	case SignalTick:
		return 750, 150
	case SignalTriggered, SignalContainment:
		return 1200, 300
	case SignalCompleted:
		return 600, 200
	case SignalShutdown:
		return 400, 500
	default:
		return 0, 0
	}
}

// Capability はホスト/ベンダー依存の機能の契約
type Capability interface {
	Name() string
	Boot() error
	Shutdown(finalTick uint32)
	RuntimeTick(tick uint32)
	BoundaryCheck(value, lo, hi int) bool
	Entropy(buf []byte) error
	Timestamp() uint64
	BiometricQuorum(ctx context.Context) (bool, error)
	Alert(sig Signal)
}

// BiometricFunc は人の在席確認を行う
type BiometricFunc func(ctx context.Context) (bool, error)

// Device は設定で選択される Capability 実装
type Device struct {
	name        string
	label       string
	zeroEntropy bool
	biometric   BiometricFunc
	eventBus    *events.Bus

	booted atomic.Bool
	mu     sync.Mutex
	alerts map[Signal]int
}

func newDevice(name, label string) *Device {
	return &Device{
		name:   name,
		label:  label,
		alerts: make(map[Signal]int),
	}
}

// component はログのコンポーネント名
func (d *Device) component() string {
	return "hal:" + d.name
}

// Name はベンダー名を返す
func (d *Device) Name() string {
	return d.name
}

// SetEventBus はイベントバスを設定する
func (d *Device) SetEventBus(bus *events.Bus) {
	d.eventBus = bus
}

// SetBiometric は在席確認の実装を差し替える（nil で非対応）
func (d *Device) SetBiometric(fn BiometricFunc) {
	d.biometric = fn
}

// Boot はデバイスを起動する（2回目以降はno-op）
func (d *Device) Boot() error {
	if d.booted.Swap(true) {
		return nil
	}
	logger.Info(d.component(), "[BOOT] %s starting up", d.label)
	d.Alert(SignalBoot)
	return nil
}

// Shutdown はデバイスを停止する
func (d *Device) Shutdown(finalTick uint32) {
	if !d.booted.Swap(false) {
		return
	}
	logger.Info(d.component(), "[SHUTDOWN] %s shutting down", d.label)
	d.Alert(SignalShutdown)
	if d.eventBus != nil {
		d.eventBus.Publish(events.NewShutdownEvent(finalTick))
	}
}

// RuntimeTick はホストのハートビート
func (d *Device) RuntimeTick(tick uint32) {
	logger.Debug(d.component(), "[TICK] Runtime tick %d (total ticks: %d)", tick, tick+1)
	d.Alert(SignalTick)
	if d.eventBus != nil {
		d.eventBus.Publish(events.NewHeartbeatEvent(tick + 1))
	}
}

// BoundaryCheck は value が [lo, hi] に収まるかを返す
func (d *Device) BoundaryCheck(value, lo, hi int) bool {
	return BoundaryCheck(value, lo, hi)
}

// Entropy は buf を乱数で埋める
// ゼロ埋めベンダーは安全側の既定値として0を書き込む
func (d *Device) Entropy(buf []byte) error {
	if d.zeroEntropy {
		clear(buf)
		return nil
	}
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("entropy source: %w", err)
	}
	return nil
}

// Timestamp はUNIX秒を返す
func (d *Device) Timestamp() uint64 {
	return uint64(time.Now().Unix())
}

// BiometricQuorum はベンダーの在席確認を実行する
func (d *Device) BiometricQuorum(ctx context.Context) (bool, error) {
	if d.biometric == nil {
		return false, fmt.Errorf("%w: biometric quorum (%s)", ErrUnsupported, d.name)
	}
	logger.Info(d.component(), "[%s] Biometric quorum stub invoked.", d.label)
	return d.biometric(ctx)
}

// Alert はアラート信号を記録する
func (d *Device) Alert(sig Signal) {
	d.mu.Lock()
	d.alerts[sig]++
	d.mu.Unlock()

	hz, ms := sig.Tone()
	logger.Debug(d.component(), "[ALERT] %s (tone %dHz/%dms)", sig, hz, ms)
}

// Alerts は信号ごとの送信回数を返す
func (d *Device) Alerts(sig Signal) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alerts[sig]
}

// BoundaryCheck は純粋な範囲判定
func BoundaryCheck(value, lo, hi int) bool {
	if lo > hi {
		return false
	}
	return value >= lo && value <= hi
}

// confirmPresence はスタブの在席確認（常に在席）
func confirmPresence(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

// registry はベンダー名からデバイスを生成する
var registry = map[string]func() *Device{
	"stub": func() *Device {
		return newDevice("stub", "QSAFP Firmware Stub")
	},
	"xai": func() *Device {
		d := newDevice("xai", "xAI HAL")
		d.zeroEntropy = true
		return d
	},
	"anthropic": func() *Device {
		d := newDevice("anthropic", "Anthropic HAL")
		d.biometric = confirmPresence
		return d
	},
	"nvidia": func() *Device {
		d := newDevice("nvidia", "NVIDIA HAL")
		d.biometric = confirmPresence
		return d
	},
	"openai": func() *Device {
		d := newDevice("openai", "OpenAI HAL")
		d.biometric = confirmPresence
		return d
	},
}

// DefaultVendor は既定のベンダー名
const DefaultVendor = "stub"

// Get は名前からデバイスを生成する
func Get(name string) (*Device, bool) {
	if name == "" {
		name = DefaultVendor
	}
	fn, ok := registry[name]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// List は利用可能なベンダー名を返す
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportsBiometric はベンダーが在席確認を提供するかを返す
func SupportsBiometric(name string) bool {
	d, ok := Get(name)
	return ok && d.biometric != nil
}
