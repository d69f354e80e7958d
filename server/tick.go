package server

import (
	"sync/atomic"
	"time"
)

const (
	// TicksPerSecond 房间推进频率（20 TPS）
	TicksPerSecond = 20
)

var tickInterval = time.Duration(1000/TicksPerSecond) * time.Millisecond // 50ms

// StartTicker 启动房间的 Tick 循环（单线程处理成员变化）
func (r *Room) StartTicker() {
	if r.tickerStarted {
		return
	}
	r.tickerStarted = true
	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				r.shutdown()
				return
			case <-ticker.C:
				// 核心循环：处理加入/离开 → 广播成员列表
				start := time.Now()
				atomic.AddInt64(&r.tickSeq, 1)
				r.ProcessEvents()
				r.BroadcastPeers()
				r.metrics.AddTick(time.Since(start).Nanoseconds())
			}
		}
	}()
}

// Stop 结束 Tick 循环并断开所有成员；可重复调用
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
