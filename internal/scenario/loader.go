package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"qsafp-harness/internal/logger"
	"qsafp-harness/internal/threat"
)

// 読み込みエラー（ErrConfig, ErrParse は致命的、それ以外は警告）
var (
	ErrConfig           = errors.New("scenario config error")
	ErrParse            = errors.New("scenario parse error")
	ErrValidation       = errors.New("scenario validation error")
	ErrCapacityExceeded = errors.New("scenario capacity exceeded")
)

// 既定値
const (
	DefaultPath         = "multi_threat_scenarios.json"
	DefaultDescription  = "no-description"
	DefaultMaxScenarios = 32
	DefaultMaxThreats   = 8
)

// Limits は読み込み時の上限
type Limits struct {
	MaxScenarios int
	MaxThreats   int
}

// DefaultLimits はデフォルトの上限を返す
func DefaultLimits() Limits {
	return Limits{
		MaxScenarios: DefaultMaxScenarios,
		MaxThreats:   DefaultMaxThreats,
	}
}

func (l Limits) normalize() Limits {
	if l.MaxScenarios <= 0 {
		l.MaxScenarios = DefaultMaxScenarios
	}
	if l.MaxThreats <= 0 {
		l.MaxThreats = DefaultMaxThreats
	}
	return l
}

// Spec は読み込み済みのシナリオ（読み込み後は変更しない）
type Spec struct {
	ID          string        `json:"id" yaml:"id"`
	Description string        `json:"description" yaml:"description"`
	Threats     []threat.Spec `json:"threats" yaml:"threats"`
}

// MaxDuration は最長の脅威時間を返す
func (s Spec) MaxDuration() time.Duration {
	return threat.MaxDuration(s.Threats)
}

// Format はシナリオファイルの形式
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFromPath は拡張子から形式を判定する（既定はJSON）
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadResult は読み込み結果
type LoadResult struct {
	Scenarios []Spec
	Warnings  []error
}

// LoadFile はファイルからシナリオを読み込む
func LoadFile(path string, limits Limits) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	result, err := Parse(data, FormatFromPath(path), limits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("loader", "Loaded %d scenario(s) from %s", len(result.Scenarios), path)
	return result, nil
}

// Parse はメモリ上のデータからシナリオを読み込む
// フィールド単位の問題は既定値で補い、警告として記録する
func Parse(data []byte, format Format, limits Limits) (*LoadResult, error) {
	root, err := decode(data, format)
	if err != nil {
		return nil, err
	}

	items, ok := root.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be an array, got %s", ErrParse, kindOf(root))
	}

	l := &loader{limits: limits.normalize(), seen: make(map[string]int)}
	if len(items) > l.limits.MaxScenarios {
		l.warn(ErrCapacityExceeded, "%d scenarios exceed limit %d, ignoring the rest", len(items), l.limits.MaxScenarios)
		items = items[:l.limits.MaxScenarios]
	}

	scenarios := make([]Spec, 0, len(items))
	for i, item := range items {
		scenarios = append(scenarios, l.scenario(i+1, item))
	}

	return &LoadResult{Scenarios: scenarios, Warnings: l.warnings}, nil
}

// decode は共通の汎用ツリーに変換する
func decode(data []byte, format Format) (any, error) {
	var root any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&root); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if dec.More() {
			return nil, fmt.Errorf("%w: trailing data after document", ErrParse)
		}
	}
	return root, nil
}

type loader struct {
	limits   Limits
	seen     map[string]int
	warnings []error
}

func (l *loader) warn(kind error, format string, args ...any) {
	err := fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
	l.warnings = append(l.warnings, err)
	logger.Warn("loader", "%v", err)
}

func (l *loader) scenario(pos int, item any) Spec {
	obj, ok := item.(map[string]any)
	if !ok {
		l.warn(ErrValidation, "scenario %d is %s, not an object", pos, kindOf(item))
		obj = map[string]any{}
	}

	id, ok := obj["id"].(string)
	if !ok {
		id = fmt.Sprintf("scenario_%d", pos)
		l.warn(ErrValidation, "scenario %d has no id, using %q", pos, id)
	}
	id = l.unique(id)

	desc, ok := obj["description"].(string)
	if !ok {
		desc = DefaultDescription
		l.warn(ErrValidation, "%s: missing or non-string description, using %q", id, desc)
	}

	var threats []threat.Spec
	switch raw := obj["threats"].(type) {
	case nil:
	case []any:
		if len(raw) > l.limits.MaxThreats {
			l.warn(ErrCapacityExceeded, "%s: %d threats exceed limit %d, truncating", id, len(raw), l.limits.MaxThreats)
			raw = raw[:l.limits.MaxThreats]
		}
		threats = make([]threat.Spec, 0, len(raw))
		for i, t := range raw {
			threats = append(threats, l.threat(id, i, t))
		}
	default:
		l.warn(ErrValidation, "%s: threats is %s, using zero threats", id, kindOf(raw))
	}

	return Spec{ID: id, Description: desc, Threats: threats}
}

// unique は重複IDに連番を付ける
func (l *loader) unique(id string) string {
	n := l.seen[id]
	l.seen[id] = n + 1
	if n == 0 {
		return id
	}
	for {
		n++
		candidate := fmt.Sprintf("%s_%d", id, n)
		if l.seen[candidate] == 0 {
			l.seen[candidate] = 1
			l.warn(ErrValidation, "duplicate scenario id %q renamed to %q", id, candidate)
			return candidate
		}
	}
}

func (l *loader) threat(scenarioID string, idx int, item any) threat.Spec {
	spec := threat.Spec{
		Type:       threat.TypeUnknown,
		Intensity:  threat.DefaultIntensity,
		DurationMs: threat.DefaultDurationMs,
	}

	obj, ok := item.(map[string]any)
	if !ok {
		l.warn(ErrValidation, "%s: threat %d is %s, using defaults", scenarioID, idx, kindOf(item))
		return spec
	}

	if s, ok := obj["type"].(string); ok {
		spec.Type = threat.ParseType(s)
		if spec.Type == threat.TypeUnknown && !strings.EqualFold(strings.TrimSpace(s), "unknown") {
			l.warn(ErrValidation, "%s: threat %d has unrecognized type %q", scenarioID, idx, s)
		}
	} else {
		l.warn(ErrValidation, "%s: threat %d has no type, using unknown", scenarioID, idx)
	}

	if s, ok := obj["intensity"].(string); ok {
		spec.Intensity = s
	} else {
		l.warn(ErrValidation, "%s: threat %d has no intensity, using %q", scenarioID, idx, threat.DefaultIntensity)
	}

	raw, present := obj["duration_ms"]
	d, ok := number(raw)
	switch {
	case !ok:
		if present {
			l.warn(ErrValidation, "%s: threat %d duration_ms is not numeric, using %d", scenarioID, idx, threat.DefaultDurationMs)
		} else {
			l.warn(ErrValidation, "%s: threat %d has no duration_ms, using %d", scenarioID, idx, threat.DefaultDurationMs)
		}
	case d < 0:
		l.warn(ErrValidation, "%s: threat %d duration_ms %v is negative, clamping to 0", scenarioID, idx, d)
		spec.DurationMs = 0
	default:
		spec.DurationMs = int(math.Min(math.Trunc(d), math.MaxInt32))
	}

	return spec
}

// number はJSON/YAMLの数値を float64 に変換する
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && !math.IsNaN(f)
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number, float64, int, int64, uint64:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
