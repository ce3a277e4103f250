package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	pool := NewPool(4)
	if pool.NumWorkers() != 4 {
		t.Errorf("expected 4 workers, got %d", pool.NumWorkers())
	}

	// Zero should default to CPU count
	pool2 := NewPool(0)
	if pool2.NumWorkers() != runtime.NumCPU() {
		t.Errorf("expected %d workers, got %d", runtime.NumCPU(), pool2.NumWorkers())
	}
}

func TestWorkerPoolNegativeWorkers(t *testing.T) {
	pool := NewPool(-5)
	if pool.NumWorkers() != runtime.NumCPU() {
		t.Errorf("expected %d workers for negative input, got %d", runtime.NumCPU(), pool.NumWorkers())
	}
}

func TestWorkerPoolStartStop(t *testing.T) {
	pool := NewPool(2)
	ctx := context.Background()

	pool.Start(ctx)
	// Double start should be no-op
	pool.Start(ctx)

	pool.Stop()
	// Double stop should be no-op
	pool.Stop()
}

func TestWorkerPoolSubmit(t *testing.T) {
	pool := NewPool(2)
	pool.Start(context.Background())
	defer pool.Stop()

	var wg sync.WaitGroup
	var counter atomic.Int32

	for range 10 {
		wg.Add(1)
		if !pool.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		}) {
			t.Fatal("expected Submit to succeed")
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for jobs to complete")
	}

	if counter.Load() != 10 {
		t.Errorf("expected 10 jobs completed, got %d", counter.Load())
	}
}

func TestWorkerPoolSubmitBeforeStart(t *testing.T) {
	pool := NewPool(1)

	if pool.Submit(func() {}) {
		t.Error("expected Submit to return false on a pool that was never started")
	}
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewPool(2)
	pool.Start(context.Background())
	pool.Stop()

	if pool.Submit(func() {}) {
		t.Error("expected Submit to return false after stop")
	}
}

func TestWorkerPoolSubmitAfterCancel(t *testing.T) {
	pool := NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	cancel()

	if pool.Submit(func() {}) {
		t.Error("expected Submit to return false after context cancel")
	}

	pool.Stop()
}

func TestWorkerPoolParallelJobs(t *testing.T) {
	const workers = 4
	pool := NewPoolWithConfig(PoolConfig{Name: "test", NumWorkers: workers, QueueFactor: 1})
	pool.Start(context.Background())
	defer pool.Stop()

	release := make(chan struct{})
	var started sync.WaitGroup
	var finished sync.WaitGroup

	for range workers {
		started.Add(1)
		finished.Add(1)
		pool.Submit(func() {
			defer finished.Done()
			started.Done()
			<-release
		})
	}

	// 全ジョブが同時に実行中にならなければここで詰まる
	started.Wait()
	if pool.Active() != workers {
		t.Errorf("expected %d active jobs, got %d", workers, pool.Active())
	}

	close(release)
	finished.Wait()
}

func TestWorkerPoolRecoversPanic(t *testing.T) {
	pool := NewPool(1)
	pool.Start(context.Background())
	defer pool.Stop()

	pool.Submit(func() { panic("boom") })

	done := make(chan struct{})
	pool.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking job")
	}

	deadline := time.Now().Add(time.Second)
	for pool.Completed() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if pool.Completed() != 2 {
		t.Errorf("expected 2 completed jobs, got %d", pool.Completed())
	}
	if pool.Stats().Panicked != 1 {
		t.Errorf("expected 1 panicked job, got %d", pool.Stats().Panicked)
	}
}

func TestWorkerPoolQueueSize(t *testing.T) {
	pool := NewPool(1)
	pool.Start(context.Background())
	defer pool.Stop()

	if pool.QueueSize() != 0 {
		t.Errorf("expected queue size 0, got %d", pool.QueueSize())
	}
}

func TestWorkerPoolTrySubmitReasons(t *testing.T) {
	pool := NewPool(1)
	if err := pool.TrySubmit(func() {}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}

	pool.Start(context.Background())
	if err := pool.TrySubmit(func() {}); err != nil {
		t.Errorf("expected job to be accepted, got %v", err)
	}

	pool.Stop()
	if err := pool.TrySubmit(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}

	if got := pool.Stats().Rejected; got != 2 {
		t.Errorf("expected 2 rejected jobs, got %d", got)
	}
}

func TestWorkerPoolQueueFullRejectsImmediately(t *testing.T) {
	pool := NewPoolWithConfig(PoolConfig{Name: "full", NumWorkers: 1, QueueFactor: 1})
	pool.Start(context.Background())

	release := make(chan struct{})
	running := make(chan struct{})
	pool.Submit(func() {
		close(running)
		<-release
	})
	<-running

	// ワーカーは塞がっていて、キュー1枠を埋める
	if !pool.Submit(func() {}) {
		t.Fatal("expected queued job to be accepted")
	}

	start := time.Now()
	err := pool.TrySubmit(func() {})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("expected TrySubmit not to block on a full queue")
	}

	close(release)
	pool.Stop()
}

func TestWorkerPoolStopDrainsQueuedJobs(t *testing.T) {
	pool := NewPoolWithConfig(PoolConfig{NumWorkers: 1, QueueFactor: 10})
	pool.Start(context.Background())

	var counter atomic.Int32
	for range 5 {
		pool.Submit(func() {
			time.Sleep(5 * time.Millisecond)
			counter.Add(1)
		})
	}

	pool.Stop()

	if counter.Load() != 5 {
		t.Errorf("expected all 5 queued jobs to run before Stop returned, got %d", counter.Load())
	}
	stats := pool.Stats()
	if stats.Completed != 5 || stats.Queued != 0 || stats.Active != 0 {
		t.Errorf("unexpected stats after stop: %+v", stats)
	}
}

func TestWorkerPoolStopWithoutStart(t *testing.T) {
	pool := NewPool(1)
	pool.Stop()

	pool.Start(context.Background())
	if err := pool.TrySubmit(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected a stopped pool to stay stopped, got %v", err)
	}
}
