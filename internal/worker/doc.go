// Package worker provides a goroutine pool for concurrent job execution.
//
// The Pool manages a fixed number of worker goroutines that process jobs
// from a shared queue. The threat simulator sizes one pool per scenario to
// the number of threats, so every threat actor occupies its own worker and
// sleeps independently of its siblings.
//
// # Basic Usage
//
//	pool := worker.NewPool(4) // 4 workers
//	pool.Start(ctx)
//	defer pool.Stop()
//
//	if err := pool.TrySubmit(func() { /* do work */ }); err != nil {
//	    // ErrNotStarted, ErrStopped or ErrQueueFull: the job never runs
//	}
//
// Submit never blocks. A full queue is rejected immediately so that the
// caller can record the job as a spawn failure.
//
// # Configuration
//
// Use NewPoolWithConfig for custom settings:
//
//	config := worker.PoolConfig{
//	    Name:        "SC1",
//	    NumWorkers:  8,
//	    QueueFactor: 1, // Queue size = 8 * 1 = 8
//	}
//	pool := worker.NewPoolWithConfig(config)
//
// # Failure Handling
//
// A job that panics is logged and counted as completed; the worker keeps
// serving the queue.
//
// # Graceful Shutdown
//
// Stop() rejects new jobs, runs every queued job and waits for in-flight
// jobs before returning. Cancelling the context passed to Start() makes
// the workers exit without draining the queue.
package worker
