package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"qsafp-harness/internal/logger"
)

// 投入を拒否した理由
var (
	ErrNotStarted = errors.New("worker pool not started")
	ErrStopped    = errors.New("worker pool stopped")
	ErrQueueFull  = errors.New("worker pool queue full")
)

// Job はワーカーが実行するジョブを表す
type Job func()

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	Name        string // ログ出力時のコンポーネント名
	NumWorkers  int    // ワーカー数（0でCPU数）
	QueueFactor int    // キューサイズ = NumWorkers * QueueFactor
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:  0,   // CPU数
		QueueFactor: 100, // デフォルト倍率
	}
}

// Stats はプールの統計情報
type Stats struct {
	Workers   int
	Queued    int
	Active    int
	Completed uint64
	Panicked  uint64
	Rejected  uint64
}

type poolState int

const (
	stateIdle poolState = iota
	stateRunning
	stateStopped
)

// Pool はゴルーチンのプールを管理する
// キューが満杯のときは待たずに拒否する（呼び出し側で起動失敗として扱う）
type Pool struct {
	name       string
	numWorkers int
	jobs       chan Job
	wg         sync.WaitGroup

	mu    sync.RWMutex
	state poolState
	ctx   context.Context

	active    atomic.Int32
	completed atomic.Uint64
	panicked  atomic.Uint64
	rejected  atomic.Uint64
}

// NewPool は新しいワーカープールを作成する
// numWorkers が 0 以下の場合は CPU 数を使用
func NewPool(numWorkers int) *Pool {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig は設定を指定してワーカープールを作成する
func NewPoolWithConfig(config PoolConfig) *Pool {
	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	queueFactor := config.QueueFactor
	if queueFactor <= 0 {
		queueFactor = 100
	}
	return &Pool{
		name:       config.Name,
		numWorkers: numWorkers,
		jobs:       make(chan Job, numWorkers*queueFactor),
	}
}

// Start はワーカーを起動する。停止後の再起動はできない
// ctx がキャンセルされるとワーカーはキューの残りを捨てて終了する
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateIdle {
		return
	}
	p.state = stateRunning
	p.ctx = ctx

	p.wg.Add(p.numWorkers)
	for range p.numWorkers {
		go p.worker(ctx)
	}

	logger.Debug(p.name, "WorkerPool started with %d workers", p.numWorkers)
}

// worker はキューが閉じられるまでジョブを処理する
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(job)
		}
	}
}

// run はジョブを実行する。ジョブ内のpanicはワーカーを巻き込まない
func (p *Pool) run(job Job) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panicked.Add(1)
			logger.Error(p.name, "WorkerPool: job panicked: %v", r)
		}
	}()
	job()
}

// TrySubmit はジョブを投入する。拒否した場合は理由を返す
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var err error
	switch p.state {
	case stateIdle:
		err = ErrNotStarted
	case stateStopped:
		err = ErrStopped
	default:
		if p.ctx.Err() != nil {
			err = ErrStopped
			break
		}
		select {
		case p.jobs <- job:
			return nil
		default:
			err = ErrQueueFull
		}
	}

	p.rejected.Add(1)
	logger.Debug(p.name, "WorkerPool rejected job: %v", err)
	return err
}

// Submit はジョブを投入し、受け付けたかどうかを返す
func (p *Pool) Submit(job Job) bool {
	return p.TrySubmit(job) == nil
}

// Stop は新規投入を止め、キュー済みのジョブを消化してから戻る
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.state != stateRunning {
		p.state = stateStopped
		p.mu.Unlock()
		return
	}
	p.state = stateStopped
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	logger.Debug(p.name, "WorkerPool stopped (%d jobs completed)", p.completed.Load())
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// QueueSize は現在のキューサイズを返す
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// Active は実行中のジョブ数を返す
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Completed は完了したジョブ数を返す（panicしたジョブも含む）
func (p *Pool) Completed() uint64 {
	return p.completed.Load()
}

// Stats は統計情報のスナップショットを返す
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.numWorkers,
		Queued:    len(p.jobs),
		Active:    int(p.active.Load()),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
	}
}
