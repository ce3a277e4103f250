package threat

import (
	"strings"
	"time"
)

// Type は脅威の種類を表す
type Type int

const (
	TypeUnknown Type = iota
	TypeRansomware
	TypePrivilegeEscalation
	TypePromptInjection
	TypeDoSSpike
	TypeKeyCompromise
)

// 既定値
const (
	DefaultIntensity  = "medium"
	DefaultDurationMs = 500
)

func (t Type) String() string {
	switch t {
	case TypeRansomware:
		return "ransomware"
	case TypePrivilegeEscalation:
		return "privilege_escalation"
	case TypePromptInjection:
		return "prompt_injection"
	case TypeDoSSpike:
		return "dos_spike"
	case TypeKeyCompromise:
		return "key_compromise"
	default:
		return "unknown"
	}
}

// MarshalText は文字列表現でエンコードする
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText は文字列から脅威タイプを復元する（不明な値は unknown）
func (t *Type) UnmarshalText(text []byte) error {
	*t = ParseType(string(text))
	return nil
}

// ParseType は文字列を脅威タイプに変換する
// 認識できない文字列は TypeUnknown になり、エラーにはしない
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ransomware":
		return TypeRansomware
	case "privilege_escalation":
		return TypePrivilegeEscalation
	case "prompt_injection":
		return TypePromptInjection
	case "dos_spike":
		return TypeDoSSpike
	case "key_compromise":
		return TypeKeyCompromise
	default:
		return TypeUnknown
	}
}

// Types は既知の脅威タイプを返す（unknown を除く）
func Types() []Type {
	return []Type{
		TypeRansomware,
		TypePrivilegeEscalation,
		TypePromptInjection,
		TypeDoSSpike,
		TypeKeyCompromise,
	}
}

// Spec は1つの脅威アクターの定義
type Spec struct {
	Type       Type   `json:"type" yaml:"type"`
	Intensity  string `json:"intensity" yaml:"intensity"`
	DurationMs int    `json:"duration_ms" yaml:"duration_ms"`
}

// Duration は攻撃ウィンドウの長さを返す
func (s Spec) Duration() time.Duration {
	if s.DurationMs <= 0 {
		return 0
	}
	return time.Duration(s.DurationMs) * time.Millisecond
}

// MaxDuration は脅威リスト中の最長の攻撃ウィンドウを返す
func MaxDuration(specs []Spec) time.Duration {
	var longest time.Duration
	for _, s := range specs {
		if d := s.Duration(); d > longest {
			longest = d
		}
	}
	return longest
}
