package harness

import (
	"sync"
	"sync/atomic"
	"time"

	"qsafp-harness/internal/hal"
)

// heartbeat は一定間隔でホストの RuntimeTick を呼ぶ
type heartbeat struct {
	host     hal.Capability
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
	ticks  atomic.Uint32
}

func startHeartbeat(host hal.Capability, interval time.Duration) *heartbeat {
	h := &heartbeat{
		host:     host,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	if interval <= 0 {
		return h
	}

	h.wg.Add(1)
	go h.loop()
	return h
}

func (h *heartbeat) loop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.host.RuntimeTick(h.ticks.Load())
			h.ticks.Add(1)
		}
	}
}

// stop はハートビートを止め、送信したtick数を返す
func (h *heartbeat) stop() uint32 {
	close(h.stopCh)
	h.wg.Wait()
	return h.ticks.Load()
}

// count は現在までのtick数を返す
func (h *heartbeat) count() uint32 {
	return h.ticks.Load()
}
