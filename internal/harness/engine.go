package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"qsafp-harness/internal/events"
	"qsafp-harness/internal/failsafe"
	"qsafp-harness/internal/hal"
	"qsafp-harness/internal/logger"
	"qsafp-harness/internal/metrics"
	"qsafp-harness/internal/quorum"
	"qsafp-harness/internal/report"
	"qsafp-harness/internal/scenario"
	"qsafp-harness/internal/threat"
)

// ErrNoScenarios は実行するシナリオがないことを表す
var ErrNoScenarios = errors.New("no scenarios to run")

// ErrAlreadyRunning は実行中に Run が呼ばれたことを表す
var ErrAlreadyRunning = errors.New("harness is already running")

// ErrShutdown は Shutdown 後に Run が呼ばれたことを表す
var ErrShutdown = errors.New("harness is shut down")

// RunResult は1回の実行結果
type RunResult struct {
	RunID      string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Outcomes   []failsafe.Outcome
	Metrics    metrics.Snapshot
	Heartbeats uint32
}

// Engine はシナリオを順に（または並行に）実行する
type Engine struct {
	config      Config
	host        *hal.Device
	reporter    *report.Reporter
	metrics     *metrics.Metrics
	eventBus    *events.Bus
	spawner     threat.SpawnerFactory
	containment failsafe.Containment

	mu      sync.RWMutex
	running bool
	runID   string

	// ホストの起動・停止はプロセスで1回
	lifeMu   sync.Mutex
	booted   bool
	shutdown bool
	hb       *heartbeat
}

// New は新しいEngineを作成する（reporter が nil ならコンソール出力のみ）
func New(config Config, reporter *report.Reporter) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	host, _ := hal.Get(config.Vendor)

	if config.Biometric && !hal.SupportsBiometric(host.Name()) {
		logger.Warn("harness", "vendor %s has no biometric quorum, ignoring --biometric", host.Name())
		config.Biometric = false
	}
	if config.Parallel <= 0 {
		config.Parallel = 1
	}
	if config.Limits.MaxScenarios <= 0 || config.Limits.MaxThreats <= 0 {
		config.Limits = scenario.DefaultLimits()
	}
	if reporter == nil {
		reporter = report.New(report.NewConsoleSink(nil))
	}

	m := metrics.New()
	reporter.SetMetrics(m)

	return &Engine{
		config:      config,
		host:        host,
		reporter:    reporter,
		metrics:     m,
		containment: failsafe.NewHostContainment(host, config.Limits.MaxThreats),
	}, nil
}

// SetEventBus はイベントバスを設定する
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.eventBus = bus
	e.host.SetEventBus(bus)
}

// SetSpawnerFactory はアクターの起動方法を差し替える
func (e *Engine) SetSpawnerFactory(f threat.SpawnerFactory) {
	e.spawner = f
}

// SetContainment は封じ込めの実装を差し替える
func (e *Engine) SetContainment(c failsafe.Containment) {
	e.containment = c
}

// Config は設定を返す
func (e *Engine) Config() Config {
	return e.config
}

// Host はHALデバイスを返す
func (e *Engine) Host() *hal.Device {
	return e.host
}

// Reporter は結果の記録先を返す
func (e *Engine) Reporter() *report.Reporter {
	return e.reporter
}

// Metrics はメトリクスを返す
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// RunID は現在（または直前）の実行IDを返す
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// Boot はホストを起動してハートビートを開始する（2回目以降はno-op）
// Run は未起動なら自動で呼ぶ
func (e *Engine) Boot() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.shutdown {
		return ErrShutdown
	}
	if e.booted {
		return nil
	}
	if err := e.host.Boot(); err != nil {
		return fmt.Errorf("host boot failed: %w", err)
	}
	e.booted = true
	e.hb = startHeartbeat(e.host, e.config.Heartbeat)
	return nil
}

// Shutdown はハートビートを止めてホストを停止し、送信したtick数を返す
// 以降の Run は ErrShutdown を返す
func (e *Engine) Shutdown() uint32 {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.shutdown {
		return 0
	}
	e.shutdown = true
	if !e.booted {
		return 0
	}
	ticks := e.hb.stop()
	e.host.Shutdown(ticks)
	return ticks
}

// heartbeats はこれまでに送信したtick数
func (e *Engine) heartbeats() uint32 {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.hb == nil {
		return 0
	}
	return e.hb.count()
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Run は全シナリオを実行し、読み込み順に結果を記録する
// シナリオ単位の失敗で実行全体は止まらない
func (e *Engine) Run(ctx context.Context, scenarios []scenario.Spec) (*RunResult, error) {
	if len(scenarios) == 0 {
		return nil, ErrNoScenarios
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.runID = newRunID()
	runID := e.runID
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if err := e.Boot(); err != nil {
		return nil, err
	}

	result := &RunResult{RunID: runID, StartTime: time.Now()}
	logger.Info("harness", "=== Run %s started: %d scenario(s), vendor=%s ===", runID, len(scenarios), e.host.Name())

	for o := range e.execute(ctx, runID, scenarios) {
		// シンクの失敗はログ済みで、結果はメモリに残る
		_ = e.reporter.Append(o)
		result.Outcomes = append(result.Outcomes, o)
	}

	result.Heartbeats = e.heartbeats()
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Metrics = e.metrics.Snapshot()

	logger.Info("harness", "=== Run %s completed in %v ===", runID, result.Duration.Round(time.Millisecond))
	return result, nil
}

// execute はシナリオを Parallel 件まで並行に実行し、結果を読み込み順に流す
func (e *Engine) execute(ctx context.Context, runID string, scenarios []scenario.Spec) <-chan failsafe.Outcome {
	out := make(chan failsafe.Outcome)
	slots := make([]chan failsafe.Outcome, len(scenarios))
	for i := range slots {
		slots[i] = make(chan failsafe.Outcome, 1)
	}

	sem := make(chan struct{}, e.config.Parallel)
	go func() {
		for i, spec := range scenarios {
			sem <- struct{}{}
			go func(i int, spec scenario.Spec) {
				defer func() { <-sem }()
				slots[i] <- e.runScenario(ctx, runID, spec)
			}(i, spec)
		}
	}()

	go func() {
		defer close(out)
		for _, slot := range slots {
			out <- <-slot
		}
	}()
	return out
}

// RunScenario は1シナリオを実行して結果を返す（Reporter には記録しない）
func (e *Engine) RunScenario(ctx context.Context, spec scenario.Spec) failsafe.Outcome {
	return e.runScenario(ctx, e.RunID(), spec)
}

func (e *Engine) runScenario(ctx context.Context, runID string, spec scenario.Spec) failsafe.Outcome {
	if e.config.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ScenarioTimeout)
		defer cancel()
	}

	logger.Info(spec.ID, "--- Scenario %s: %s (%d threats) ---", spec.ID, spec.Description, len(spec.Threats))

	timer := metrics.StartTimer()
	start := timer.Started()

	window := e.config.leaseWindow(spec)
	lease := quorum.NewLease(spec.ID, start, window)

	detectors := detectorIDs(e.config.detectors(spec))
	monitorIDs := detectors
	if e.config.Biometric {
		monitorIDs = append(append([]string{}, detectors...), biometricID(e.host.Name()))
	}

	monitor := quorum.NewMonitor(lease, monitorIDs, e.config.Quorum)
	monitor.SetEventBus(e.eventBus)

	trigger := failsafe.New(spec.ID, start)
	trigger.SetEventBus(e.eventBus)
	trigger.SetAlerter(e.host)

	v := &voters{
		scenarioID: spec.ID,
		monitor:    monitor,
		host:       e.host,
		detectors:  detectors,
	}

	actorCtx, cancelActors := context.WithCancel(ctx)
	defer cancelActors()

	sim := threat.NewSimulator()
	sim.SetEventBus(e.eventBus)
	sim.SetSpawnerFactory(e.spawner)
	run := sim.Start(actorCtx, spec.ID, spec.Threats, threat.Hooks{OnStart: v.onThreatStart})

	// 在席確認はシナリオ内で終わらせる
	bioCtx, cancelBio := context.WithCancel(ctx)
	bioDone := make(chan struct{})
	if e.config.Biometric {
		go func() {
			defer close(bioDone)
			v.biometric(bioCtx, e.host.Name())
		}()
	} else {
		close(bioDone)
	}

	logger.Debug(spec.ID, "lease window %v, %d monitor(s), threshold %d", window, monitor.Monitors(), monitor.Threshold())
	decision := monitor.Wait(ctx)
	reason := failsafe.Resolve(decision)
	trigger.Fire(reason, decision.ResolvedAt)

	if err := e.containment.Contain(ctx, failsafe.Activation{
		ScenarioID:  spec.ID,
		Reason:      reason,
		ThreatCount: len(spec.Threats),
	}); err != nil {
		logger.Warn(spec.ID, "containment: %v", err)
	}

	if decision.Cancelled {
		cancelActors()
	}
	threats := run.Wait()
	monitor.Close()
	cancelBio()
	<-bioDone

	if err := trigger.Complete(time.Now()); err != nil {
		logger.Error(spec.ID, "fail-safe: %v", err)
	}
	timer.Stop()

	outcome, err := trigger.Outcome(failsafe.Outcome{
		RunID:             runID,
		Description:       spec.Description,
		ContainmentTimeMs: timer.ElapsedMs(),
		LeaseWindowMs:     metrics.Milliseconds(window),
		ThreatCount:       len(spec.Threats),
		TriggerVotes:      decision.TriggerVotes,
		HoldVotes:         decision.HoldVotes,
		Monitors:          decision.Monitors,
		Threshold:         decision.Threshold,
		SkippedThreats:    threats.Skipped(),
		AbortedThreats:    threats.Aborted(),
		Cancelled:         decision.Cancelled || ctx.Err() != nil,
	})
	if err != nil {
		logger.Error(spec.ID, "outcome: %v", err)
		outcome.ScenarioID = spec.ID
	}
	return outcome
}
