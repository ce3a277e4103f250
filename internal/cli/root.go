package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qsafp-harness/internal/api"
	"qsafp-harness/internal/config"
	"qsafp-harness/internal/events"
	"qsafp-harness/internal/harness"
	"qsafp-harness/internal/logger"
	"qsafp-harness/internal/report"
	"qsafp-harness/internal/scenario"
)

// Version はビルド時に -ldflags で上書きする
var Version = "dev"

// RootOptions はルートコマンドのフラグ
type RootOptions struct {
	ConfigFile string
	Preset     string
	Vendor     string
	LogLevel   string

	Monitors    int
	Quorum      int
	LeaseWindow time.Duration
	LeaseGrace  time.Duration
	Biometric   bool

	Parallel  int
	Heartbeat time.Duration

	CSV   string
	JSONL string
	DB    string
	Serve string
}

// NewRootCommand はルートコマンドを作成する
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qsafp-harness [path]",
		Short: "Quorum-gated fail-safe harness",
		Long: `qsafp-harness runs multi-threat scenarios against a quorum-gated fail-safe.

Each scenario launches its threats concurrently, lets the detection monitors
vote, and fires the fail-safe on quorum or when the lease window expires.
One outcome per scenario is reported in load order.

Examples:
  # 既定のシナリオファイルを実行
  qsafp-harness

  # シナリオファイルを指定して実行
  qsafp-harness scenarios.yaml --csv outcomes.csv

  # プリセットを実行
  qsafp-harness --preset baseline --vendor anthropic --biometric

  # 設定ファイルから実行し、ライブフィードを公開
  qsafp-harness --config harness.yaml --serve :8080`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ConfigFile, "config", "", "設定ファイルパス (YAML/JSON)")
	f.StringVar(&opts.Preset, "preset", "", fmt.Sprintf("プリセットシナリオ名 %v", scenario.ListPresets()))
	f.StringVar(&opts.Vendor, "vendor", "", "HALベンダー名 (既定: stub)")
	f.StringVar(&opts.LogLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	f.IntVar(&opts.Monitors, "monitors", 0, "検知モニター数 (0 なら脅威数)")
	f.IntVar(&opts.Quorum, "quorum", 0, "必要なTRIGGER票数 (0 なら過半数)")
	f.DurationVar(&opts.LeaseWindow, "lease-window", 0, "固定リース窓 (0 なら最長脅威時間 + 猶予)")
	f.DurationVar(&opts.LeaseGrace, "lease-grace", 0, "リース窓の猶予 (既定: 50ms)")
	f.BoolVar(&opts.Biometric, "biometric", false, "ベンダーの在席確認をモニターに加える")
	f.IntVar(&opts.Parallel, "parallel", 0, "同時実行シナリオ数 (既定: 1)")
	f.DurationVar(&opts.Heartbeat, "heartbeat", 0, "ホストのハートビート間隔 (0 なら無効)")
	f.StringVar(&opts.CSV, "csv", "", "結果を追記するCSVファイル")
	f.StringVar(&opts.JSONL, "jsonl", "", "結果を追記するJSONLファイル (- で標準出力)")
	f.StringVar(&opts.DB, "db", "", "結果を記録するSQLiteデータベース")
	f.StringVar(&opts.Serve, "serve", "", "ライブフィードのアドレス (例: :8080)")

	cmd.AddCommand(NewPresetsCommand())
	cmd.AddCommand(NewVendorsCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// settings は設定ファイルとフラグを合成した実行設定
type settings struct {
	harness  harness.Config
	path     string
	preset   string
	logLevel string
	output   config.OutputConfig
	serve    string
}

// resolve は設定ファイル → フラグの順に設定を合成する
func resolve(cmd *cobra.Command, opts *RootOptions, args []string) (*settings, error) {
	s := &settings{harness: harness.DefaultConfig()}

	// 1. 設定ファイルから読み込み
	if opts.ConfigFile != "" {
		fc, err := config.LoadFile(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := fc.Validate(); err != nil {
			return nil, err
		}
		if s.harness, err = fc.ToHarnessConfig(); err != nil {
			return nil, err
		}
		s.path = fc.Harness.Scenarios
		s.preset = fc.Harness.Preset
		s.logLevel = fc.Harness.LogLevel
		s.output = fc.Harness.Output
		s.serve = fc.Harness.Server.Addr
	}

	// 2. 明示されたフラグでオーバーライド
	f := cmd.Flags()
	if f.Changed("preset") {
		s.preset = opts.Preset
	}
	if f.Changed("vendor") {
		s.harness.Vendor = opts.Vendor
	}
	if f.Changed("log-level") {
		s.logLevel = opts.LogLevel
	}
	if f.Changed("monitors") {
		s.harness.Monitors = opts.Monitors
	}
	if f.Changed("quorum") {
		s.harness.Quorum = opts.Quorum
	}
	if f.Changed("lease-window") {
		s.harness.LeaseWindow = opts.LeaseWindow
	}
	if f.Changed("lease-grace") {
		s.harness.LeaseGrace = opts.LeaseGrace
	}
	if f.Changed("biometric") {
		s.harness.Biometric = opts.Biometric
	}
	if f.Changed("parallel") {
		s.harness.Parallel = opts.Parallel
	}
	if f.Changed("heartbeat") {
		s.harness.Heartbeat = opts.Heartbeat
	}
	if f.Changed("csv") {
		s.output.CSV = opts.CSV
	}
	if f.Changed("jsonl") {
		s.output.JSONL = opts.JSONL
	}
	if f.Changed("db") {
		s.output.DB = opts.DB
	}
	if f.Changed("serve") {
		s.serve = opts.Serve
	}

	// 3. 位置引数のパス
	if len(args) > 0 {
		if f.Changed("preset") {
			return nil, fmt.Errorf("--preset and a scenario path are mutually exclusive")
		}
		s.path = args[0]
		s.preset = ""
	}
	if s.path == "" && s.preset == "" {
		s.path = scenario.DefaultPath
	}

	if s.preset != "" {
		if _, ok := scenario.GetPreset(s.preset); !ok {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", s.preset, scenario.ListPresets())
		}
	}
	if s.logLevel != "" {
		if _, err := logger.ParseLevel(s.logLevel); err != nil {
			return nil, err
		}
	}
	if err := s.harness.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// source は実行対象の表示名
func (s *settings) source() string {
	if s.preset != "" {
		return "preset:" + s.preset
	}
	return s.path
}

// scenarios はプリセットまたはファイルからシナリオを取得する
func (s *settings) scenarios() ([]scenario.Spec, error) {
	if s.preset != "" {
		p, _ := scenario.GetPreset(s.preset)
		return p.Scenarios, nil
	}
	loaded, err := scenario.LoadFile(s.path, s.harness.Limits)
	if err != nil {
		return nil, err
	}
	return loaded.Scenarios, nil
}

// openReporter はコンソールと指定された出力先のシンクを開く
// 開けなかったシンクは警告を出して外し、コンソールとメモリ上の結果で続行する
// SQLite を開けた場合はその読み出し用に返す
func openReporter(out config.OutputConfig, stdout io.Writer) (*report.Reporter, *report.SQLiteSink) {
	r := report.New(report.NewConsoleSink(logger.New(stdout, logger.LevelInfo)))

	if out.CSV != "" {
		if sink, err := report.OpenCSV(out.CSV); err != nil {
			logger.Warn("cli", "csv output disabled: %v", err)
		} else {
			r.AddSink(sink)
		}
	}
	switch out.JSONL {
	case "":
	case "-":
		r.AddSink(report.NewJSONLWriter("jsonl:stdout", stdout))
	default:
		if sink, err := report.OpenJSONL(out.JSONL); err != nil {
			logger.Warn("cli", "jsonl output disabled: %v", err)
		} else {
			r.AddSink(sink)
		}
	}

	var store *report.SQLiteSink
	if out.DB != "" {
		if sink, err := report.OpenSQLite(out.DB); err != nil {
			logger.Warn("cli", "sqlite output disabled: %v", err)
		} else {
			r.AddSink(sink)
			store = sink
		}
	}
	return r, store
}

func runHarness(cmd *cobra.Command, opts *RootOptions, args []string) error {
	s, err := resolve(cmd, opts, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if s.logLevel != "" {
		level, _ := logger.ParseLevel(s.logLevel)
		logger.Default.SetLevel(level)
	}

	scenarios, err := s.scenarios()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load scenarios", err)
	}
	if len(scenarios) == 0 {
		return NewExitError(ExitFailure, "no scenarios loaded from "+s.source())
	}

	out := cmd.OutOrStdout()
	reporter, store := openReporter(s.output, out)
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Error("cli", "failed to close outputs: %v", err)
		}
	}()

	engine, err := harness.New(s.harness, reporter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	defer engine.Shutdown()

	// シグナルハンドリング
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ライブフィード
	if s.serve != "" {
		bus := events.NewBus()
		defer bus.Close()
		engine.SetEventBus(bus)

		srv := api.NewServer(s.serve, engine, bus)
		if store != nil {
			srv.SetStore(store)
		}
		// API から始めた実行を止めて終わるまで待ち、それから出力先を閉じる
		defer func() {
			stop()
			srv.Wait()
		}()
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("cli", "server error: %v", err)
			}
		}()
	}

	printBanner(out, s, len(scenarios))

	if _, err := engine.Run(ctx, scenarios); err != nil {
		if errors.Is(err, harness.ErrNoScenarios) {
			return NewExitError(ExitFailure, "no scenarios loaded from "+s.source())
		}
		return WrapExitError(ExitFailure, "run failed", err)
	}

	// 書き込みに失敗したシンクへ1度だけ再送
	if reporter.Pending() > 0 {
		if err := reporter.Retry(); err != nil {
			logger.Warn("cli", "%d outcome write(s) still failing: %v", reporter.Pending(), err)
		}
	}

	fmt.Fprintln(out, reporter.Summary())

	if s.serve != "" && ctx.Err() == nil {
		logger.Info("cli", "Live feed on http://%s, press Ctrl+C to stop", s.serve)
		<-ctx.Done()
	}
	return nil
}

func printBanner(w io.Writer, s *settings, count int) {
	hc := s.harness

	monitors := "per threat"
	if hc.Monitors > 0 {
		monitors = fmt.Sprint(hc.Monitors)
	}
	quorum := "majority"
	if hc.Quorum > 0 {
		quorum = fmt.Sprint(hc.Quorum)
	}
	lease := fmt.Sprintf("longest threat + %v", hc.LeaseGrace)
	if hc.LeaseWindow > 0 {
		lease = hc.LeaseWindow.String()
	}

	fmt.Fprintln(w, "QSAFP Fail-Safe Harness")
	fmt.Fprintln(w, "====================================================")
	fmt.Fprintf(w, "Source: %s (%d scenario(s))\n", s.source(), count)
	fmt.Fprintf(w, "Vendor: %s, Biometric: %v\n", hc.Vendor, hc.Biometric)
	fmt.Fprintf(w, "Monitors: %s, Quorum: %s, Lease: %s\n", monitors, quorum, lease)
	fmt.Fprintf(w, "Parallel: %d\n", max(hc.Parallel, 1))
	fmt.Fprintln(w, "====================================================")
	fmt.Fprintln(w)
}
