package scenario

import (
	"qsafp-harness/internal/threat"
)

// Preset は組み込みのシナリオセット
type Preset struct {
	Name        string
	Description string
	Scenarios   []Spec
}

// BaselinePreset は基準シナリオ SC1 を返す
// ransomware 500ms と dos_spike 200ms の同時実行
func BaselinePreset() Preset {
	return Preset{
		Name:        "baseline",
		Description: "Two concurrent threats, quorum expected at first detection",
		Scenarios: []Spec{
			{
				ID:          "SC1",
				Description: "ransomware with concurrent dos spike",
				Threats: []threat.Spec{
					{Type: threat.TypeRansomware, Intensity: "high", DurationMs: 500},
					{Type: threat.TypeDoSSpike, Intensity: "low", DurationMs: 200},
				},
			},
		},
	}
}

// IdlePreset は脅威なしのシナリオを返す
// 票が出ないためリース期限切れで発火する
func IdlePreset() Preset {
	return Preset{
		Name:        "idle",
		Description: "No threats, fail-safe fires on lease expiry",
		Scenarios: []Spec{
			{ID: "IDLE", Description: "no threats observed"},
		},
	}
}

// SaturationPreset は上限いっぱいの脅威を同時に走らせる
func SaturationPreset() Preset {
	threats := make([]threat.Spec, 0, DefaultMaxThreats)
	types := threat.Types()
	for i := 0; i < DefaultMaxThreats; i++ {
		threats = append(threats, threat.Spec{
			Type:       types[i%len(types)],
			Intensity:  "high",
			DurationMs: 300,
		})
	}
	return Preset{
		Name:        "saturation",
		Description: "Eight concurrent threats at full capacity",
		Scenarios: []Spec{
			{ID: "SAT", Description: "capacity saturation", Threats: threats},
		},
	}
}

// MixedPreset は全脅威タイプを時間差で並べた複数シナリオを返す
func MixedPreset() Preset {
	return Preset{
		Name:        "mixed",
		Description: "Every threat type with staggered durations",
		Scenarios: []Spec{
			{
				ID:          "MIX1",
				Description: "credential and prompt attacks",
				Threats: []threat.Spec{
					{Type: threat.TypeKeyCompromise, Intensity: "high", DurationMs: 150},
					{Type: threat.TypePromptInjection, Intensity: "medium", DurationMs: 250},
					{Type: threat.TypePrivilegeEscalation, Intensity: "high", DurationMs: 350},
				},
			},
			{
				ID:          "MIX2",
				Description: "availability attacks",
				Threats: []threat.Spec{
					{Type: threat.TypeDoSSpike, Intensity: "high", DurationMs: 100},
					{Type: threat.TypeRansomware, Intensity: "medium", DurationMs: 400},
				},
			},
			{
				ID:          "MIX3",
				Description: "unclassified activity",
				Threats: []threat.Spec{
					{Type: threat.TypeUnknown, Intensity: "low", DurationMs: 200},
				},
			},
		},
	}
}

// GetPreset は名前からプリセットを取得する
func GetPreset(name string) (Preset, bool) {
	presets := map[string]func() Preset{
		"baseline":   BaselinePreset,
		"idle":       IdlePreset,
		"saturation": SaturationPreset,
		"mixed":      MixedPreset,
	}

	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Preset{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	return []string{"baseline", "idle", "saturation", "mixed"}
}
