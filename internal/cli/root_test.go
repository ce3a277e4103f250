package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qsafp-harness/internal/scenario"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "qsafp-harness", cmd.Name())

	for _, name := range []string{"presets", "vendors", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "command %s should exist", name)
		assert.Equal(t, name, sub.Name())
	}

	for _, flag := range []string{
		"config", "preset", "vendor", "monitors", "quorum", "lease-window", "lease-grace",
		"biometric", "parallel", "csv", "jsonl", "db", "serve", "heartbeat", "log-level",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag --%s should exist", flag)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "qsafp-harness version dev\n", out)
}

func TestPresetsCommand(t *testing.T) {
	out, err := execute(t, "presets")
	require.NoError(t, err)
	for _, name := range scenario.ListPresets() {
		assert.Contains(t, out, name)
	}
}

func TestVendorsCommand(t *testing.T) {
	out, err := execute(t, "vendors")
	require.NoError(t, err)
	assert.Contains(t, out, "stub       biometric=false (default)")
	assert.Contains(t, out, "anthropic  biometric=true")
}

func TestRunPresetWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "outcomes.csv")
	jsonlPath := filepath.Join(dir, "outcomes.jsonl")
	dbPath := filepath.Join(dir, "outcomes.db")

	out, err := execute(t, "--preset", "idle", "--csv", csvPath, "--jsonl", jsonlPath, "--db", dbPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Source: preset:idle (1 scenario(s))")
	assert.Contains(t, out, "FAIL-SAFE RUN REPORT")
	assert.Contains(t, out, "IDLE")
	assert.Contains(t, out, "LEASE_EXPIRY")

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "scenario_id,"))

	data, err = os.ReadFile(jsonlPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestRunContinuesWhenOutputCannotOpen(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")

	out, err := execute(t, "--preset", "idle",
		"--csv", filepath.Join(missing, "x.csv"),
		"--jsonl", filepath.Join(missing, "x.jsonl"),
		"--db", filepath.Join(missing, "x.db"))
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, GetExitCode(err))

	assert.Contains(t, out, "[RESULT]")
	assert.Contains(t, out, "FAIL-SAFE RUN REPORT")
	assert.Contains(t, out, "LEASE_EXPIRY")
	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunJSONLToStdout(t *testing.T) {
	out, err := execute(t, "--preset", "idle", "--jsonl", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"scenario_id":"IDLE"`)
	assert.Contains(t, out, `"trigger_reason":"LEASE_EXPIRY"`)
}

func TestRunScenarioFile(t *testing.T) {
	path := writeFile(t, "scenarios.json", `[
  {"id":"F1","description":"file","threats":[{"type":"ransomware","intensity":"high","duration_ms":20}]},
  {"id":"F2","threats":[]}
]`)

	out, err := execute(t, path, "--lease-grace", "10ms", "--parallel", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "Source: "+path+" (2 scenario(s))")

	idx := strings.Index(out, "FAIL-SAFE RUN REPORT")
	require.GreaterOrEqual(t, idx, 0)
	summary := out[idx:]
	require.Contains(t, summary, "F1")
	require.Contains(t, summary, "F2")
	assert.Less(t, strings.Index(summary, "F1"), strings.Index(summary, "F2"))
}

func TestRunMissingFile(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, scenario.ErrConfig))
}

func TestRunObjectRoot(t *testing.T) {
	path := writeFile(t, "scenarios.json", `{"id":"SC1","threats":[]}`)

	out, err := execute(t, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, scenario.ErrParse))
	assert.NotContains(t, out, "FAIL-SAFE RUN REPORT")
}

func TestRunEmptyArray(t *testing.T) {
	path := writeFile(t, "scenarios.json", `[]`)

	_, err := execute(t, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no scenarios loaded")
}

func TestRunInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown vendor", []string{"--preset", "idle", "--vendor", "acme"}},
		{"unknown preset", []string{"--preset", "chaos"}},
		{"bad log level", []string{"--preset", "idle", "--log-level", "loud"}},
		{"preset and path", []string{"--preset", "idle", "scenarios.json"}},
		{"negative monitors", []string{"--preset", "idle", "--monitors", "-1"}},
		{"missing config", []string{"--config", "/nonexistent/harness.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestResolveConfigFileThenFlags(t *testing.T) {
	cfgPath := writeFile(t, "harness.yaml", `
harness:
  preset: baseline
  vendor: xai
  log_level: warn
  quorum:
    monitors: 3
    lease_window: 2s
  run:
    parallel: 2
  output:
    csv: from-config.csv
`)

	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath, "--vendor", "nvidia", "--quorum", "1", "--csv", "from-flag.csv"}))

	s, err := resolve(cmd, opts, nil)
	require.NoError(t, err)

	assert.Equal(t, "baseline", s.preset)
	assert.Equal(t, "preset:baseline", s.source())
	assert.Equal(t, "nvidia", s.harness.Vendor)
	assert.Equal(t, 3, s.harness.Monitors)
	assert.Equal(t, 1, s.harness.Quorum)
	assert.Equal(t, 2*time.Second, s.harness.LeaseWindow)
	assert.Equal(t, 2, s.harness.Parallel)
	assert.Equal(t, "warn", s.logLevel)
	assert.Equal(t, "from-flag.csv", s.output.CSV)
}

func TestResolvePositionalOverridesConfigPreset(t *testing.T) {
	cfgPath := writeFile(t, "harness.json", `{"harness":{"preset":"mixed"}}`)

	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath}))

	s, err := resolve(cmd, opts, []string{"custom.json"})
	require.NoError(t, err)
	assert.Empty(t, s.preset)
	assert.Equal(t, "custom.json", s.path)
}

func TestResolveDefaultPath(t *testing.T) {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	require.NoError(t, cmd.ParseFlags(nil))

	s, err := resolve(cmd, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, scenario.DefaultPath, s.path)
	assert.Equal(t, 50*time.Millisecond, s.harness.LeaseGrace)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))

	wrapped := WrapExitError(ExitFailure, "load", scenario.ErrParse)
	assert.True(t, errors.Is(wrapped, scenario.ErrParse))
	assert.Equal(t, "load: "+scenario.ErrParse.Error(), wrapped.Error())
}
