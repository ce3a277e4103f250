package threat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qsafp-harness/internal/events"
	"qsafp-harness/internal/logger"
	"qsafp-harness/internal/worker"
)

// ErrSpawnFailure はアクタータスクを起動できなかったことを表す
var ErrSpawnFailure = errors.New("threat actor spawn failure")

// Status はアクターの最終状態
type Status int

const (
	StatusPending Status = iota
	StatusCompleted
	StatusAborted
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Actor は1つの脅威アクターの実行記録
type Actor struct {
	Index     int
	Spec      Spec
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
}

// Elapsed は実際の攻撃ウィンドウを返す（スキップ時は0）
func (a Actor) Elapsed() time.Duration {
	if a.StartedAt.IsZero() || a.EndedAt.IsZero() {
		return 0
	}
	return a.EndedAt.Sub(a.StartedAt)
}

// Result はシナリオ1回分のアクター実行結果
type Result struct {
	ScenarioID string
	Actors     []Actor
}

// Count は指定状態のアクター数を返す
func (r Result) Count(status Status) int {
	n := 0
	for _, a := range r.Actors {
		if a.Status == status {
			n++
		}
	}
	return n
}

// Skipped は起動できなかったアクター数を返す
func (r Result) Skipped() int { return r.Count(StatusSkipped) }

// Aborted は途中で中断されたアクター数を返す
func (r Result) Aborted() int { return r.Count(StatusAborted) }

// Hooks はアクターの開始・終了を通知するコールバック
// 各アクターのゴルーチンから並行に呼ばれる
type Hooks struct {
	OnStart func(Actor)
	OnEnd   func(Actor)
}

// Spawner はアクタータスクを起動する
// 拒否した場合は理由を返す
type Spawner interface {
	TrySubmit(job worker.Job) error
}

// SpawnerFactory はシナリオごとに Spawner と停止関数を用意する
type SpawnerFactory func(name string, workers int) (Spawner, func())

// PoolSpawner はアクター数ぶんのワーカーを持つプールを起動する
// プールはシナリオのコンテキストから切り離す（キャンセル時もキュー済みジョブを必ず消化させるため）
func PoolSpawner(name string, workers int) (Spawner, func()) {
	pool := worker.NewPoolWithConfig(worker.PoolConfig{
		Name:        name,
		NumWorkers:  workers,
		QueueFactor: 1,
	})
	pool.Start(context.Background())
	return pool, pool.Stop
}

// Simulator は脅威アクターを並行に実行する
type Simulator struct {
	eventBus *events.Bus
	spawn    SpawnerFactory
}

// NewSimulator は新しいSimulatorを作成する
func NewSimulator() *Simulator {
	return &Simulator{
		spawn: PoolSpawner,
	}
}

// SetEventBus はイベントバスを設定する
func (s *Simulator) SetEventBus(bus *events.Bus) {
	s.eventBus = bus
}

// SetSpawnerFactory はタスク起動方法を差し替える
func (s *Simulator) SetSpawnerFactory(f SpawnerFactory) {
	if f == nil {
		f = PoolSpawner
	}
	s.spawn = f
}

// publishEvent はイベントを発行する
func (s *Simulator) publishEvent(event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(event)
	}
}

// Run は実行中のシナリオのハンドル
type Run struct {
	done   chan struct{}
	result Result
}

// Done は全アクターが終了（またはスキップ）したときに閉じられる
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait は合流バリアで待機し、結果を返す
func (r *Run) Wait() Result {
	<-r.done
	return r.result
}

// Start は脅威ごとに1つのタスクを起動し、すぐに戻る
func (s *Simulator) Start(ctx context.Context, scenarioID string, threats []Spec, hooks Hooks) *Run {
	run := &Run{
		done: make(chan struct{}),
		result: Result{
			ScenarioID: scenarioID,
			Actors:     make([]Actor, len(threats)),
		},
	}

	if len(threats) == 0 {
		close(run.done)
		return run
	}

	spawner, stop := s.spawn(scenarioID, len(threats))

	var wg sync.WaitGroup
	for i, spec := range threats {
		actor := &run.result.Actors[i]
		actor.Index = i
		actor.Spec = spec

		wg.Add(1)
		if err := ctx.Err(); err != nil {
			s.skip(scenarioID, actor, err)
			wg.Done()
			continue
		}

		err := spawner.TrySubmit(func() {
			defer wg.Done()
			s.act(ctx, scenarioID, actor, hooks)
		})
		if err != nil {
			s.skip(scenarioID, actor, fmt.Errorf("%w: %w", ErrSpawnFailure, err))
			wg.Done()
		}
	}

	go func() {
		wg.Wait()
		stop()
		close(run.done)
	}()

	return run
}

// act は1つのアクターの攻撃ウィンドウを模擬する
func (s *Simulator) act(ctx context.Context, scenarioID string, actor *Actor, hooks Hooks) {
	spec := actor.Spec
	actor.StartedAt = time.Now()

	logger.Info(scenarioID, ">> Threat START: %s (intensity=%s) for %d ms",
		spec.Type, spec.Intensity, spec.DurationMs)
	s.publishEvent(events.NewThreatStartEvent(scenarioID, actor.Index, spec.Type.String(), spec.Intensity, spec.DurationMs))
	if hooks.OnStart != nil {
		hooks.OnStart(*actor)
	}

	timer := time.NewTimer(spec.Duration())
	defer timer.Stop()

	select {
	case <-timer.C:
		actor.Status = StatusCompleted
	case <-ctx.Done():
		actor.Status = StatusAborted
		actor.Err = ctx.Err()
	}
	actor.EndedAt = time.Now()

	if actor.Status == StatusAborted {
		logger.Warn(scenarioID, ">> Threat ABORTED: %s after %v", spec.Type, actor.Elapsed().Round(time.Millisecond))
	} else {
		logger.Info(scenarioID, ">> Threat END:   %s (intensity=%s)", spec.Type, spec.Intensity)
	}
	s.publishEvent(events.NewThreatEndEvent(scenarioID, actor.Index, spec.Type.String(), actor.Status == StatusAborted))
	if hooks.OnEnd != nil {
		hooks.OnEnd(*actor)
	}
}

// skip は起動できなかったアクターを長さ0のno-opとして記録する
func (s *Simulator) skip(scenarioID string, actor *Actor, err error) {
	actor.Status = StatusSkipped
	actor.Err = err
	logger.Warn(scenarioID, "Failed to start threat %d (%s): %v", actor.Index, actor.Spec.Type, err)
	s.publishEvent(events.NewThreatSkippedEvent(scenarioID, actor.Index, actor.Spec.Type.String(), err))
}
