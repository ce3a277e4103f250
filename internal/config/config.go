package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qsafp-harness/internal/hal"
	"qsafp-harness/internal/harness"
	"qsafp-harness/internal/logger"
	"qsafp-harness/internal/scenario"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Harness HarnessConfig `yaml:"harness" json:"harness"`
}

// HarnessConfig はハーネス設定
type HarnessConfig struct {
	Scenarios string `yaml:"scenarios" json:"scenarios"` // シナリオファイルのパス
	Preset    string `yaml:"preset" json:"preset"`
	Vendor    string `yaml:"vendor" json:"vendor"`
	LogLevel  string `yaml:"log_level" json:"log_level"`

	Quorum QuorumConfig `yaml:"quorum" json:"quorum"`
	Run    RunConfig    `yaml:"run" json:"run"`
	Limits LimitsConfig `yaml:"limits" json:"limits"`
	Output OutputConfig `yaml:"output" json:"output"`
	Server ServerConfig `yaml:"server" json:"server"`
}

// QuorumConfig はクォーラム設定
type QuorumConfig struct {
	Monitors    int    `yaml:"monitors" json:"monitors"`
	Threshold   int    `yaml:"threshold" json:"threshold"`
	LeaseWindow string `yaml:"lease_window" json:"lease_window"`
	LeaseGrace  string `yaml:"lease_grace" json:"lease_grace"`
	Biometric   bool   `yaml:"biometric" json:"biometric"`
}

// RunConfig は実行設定
type RunConfig struct {
	Parallel        int    `yaml:"parallel" json:"parallel"`
	ScenarioTimeout string `yaml:"scenario_timeout" json:"scenario_timeout"`
	Heartbeat       string `yaml:"heartbeat" json:"heartbeat"`
}

// LimitsConfig は読み込み上限
type LimitsConfig struct {
	MaxScenarios int `yaml:"max_scenarios" json:"max_scenarios"`
	MaxThreats   int `yaml:"max_threats" json:"max_threats"`
}

// OutputConfig は結果の出力先
type OutputConfig struct {
	CSV   string `yaml:"csv" json:"csv"`
	JSONL string `yaml:"jsonl" json:"jsonl"`
	DB    string `yaml:"db" json:"db"`
}

// ServerConfig はライブフィードのサーバー設定
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToHarnessConfig はFileConfigをharness.Configに変換する
func (f *FileConfig) ToHarnessConfig() (harness.Config, error) {
	hc := f.Harness

	// デフォルト値の設定
	config := harness.DefaultConfig()

	if hc.Vendor != "" {
		config.Vendor = hc.Vendor
	}

	// Quorum設定
	if hc.Quorum.Monitors > 0 {
		config.Monitors = hc.Quorum.Monitors
	}
	if hc.Quorum.Threshold > 0 {
		config.Quorum = hc.Quorum.Threshold
	}
	config.Biometric = hc.Quorum.Biometric

	var err error
	if config.LeaseWindow, err = parseDuration("quorum.lease_window", hc.Quorum.LeaseWindow, config.LeaseWindow); err != nil {
		return config, err
	}
	if config.LeaseGrace, err = parseDuration("quorum.lease_grace", hc.Quorum.LeaseGrace, config.LeaseGrace); err != nil {
		return config, err
	}

	// Run設定
	if hc.Run.Parallel > 0 {
		config.Parallel = hc.Run.Parallel
	}
	if config.ScenarioTimeout, err = parseDuration("run.scenario_timeout", hc.Run.ScenarioTimeout, config.ScenarioTimeout); err != nil {
		return config, err
	}
	if config.Heartbeat, err = parseDuration("run.heartbeat", hc.Run.Heartbeat, config.Heartbeat); err != nil {
		return config, err
	}

	// Limits設定
	if hc.Limits.MaxScenarios > 0 {
		config.Limits.MaxScenarios = hc.Limits.MaxScenarios
	}
	if hc.Limits.MaxThreats > 0 {
		config.Limits.MaxThreats = hc.Limits.MaxThreats
	}

	return config, nil
}

// parseDuration は空文字なら既定値を返す
func parseDuration(key, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	hc := f.Harness

	if hc.Vendor != "" {
		if _, ok := hal.Get(hc.Vendor); !ok {
			return fmt.Errorf("unknown vendor: %s", hc.Vendor)
		}
	}

	if hc.Preset != "" {
		if _, ok := scenario.GetPreset(hc.Preset); !ok {
			return fmt.Errorf("unknown preset: %s", hc.Preset)
		}
	}

	if hc.LogLevel != "" {
		if _, err := logger.ParseLevel(hc.LogLevel); err != nil {
			return err
		}
	}

	if hc.Quorum.Monitors < 0 {
		return fmt.Errorf("quorum.monitors must be non-negative")
	}

	if hc.Quorum.Threshold < 0 {
		return fmt.Errorf("quorum.threshold must be non-negative")
	}

	if hc.Run.Parallel < 0 {
		return fmt.Errorf("run.parallel must be non-negative")
	}

	if hc.Limits.MaxScenarios < 0 || hc.Limits.MaxThreats < 0 {
		return fmt.Errorf("limits must be non-negative")
	}

	return nil
}
