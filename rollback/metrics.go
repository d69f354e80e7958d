package rollback

import (
	"sync/atomic"
)

// Metrics 引擎运行期关键指标（用于监控与调试）；Tick 线程写，HTTP 线程读
type Metrics struct {
	Ticks             int64 // 推进的帧数
	Rollbacks         int64 // 回滚次数
	FramesResimulated int64 // 回滚中重算的帧数
	PacketsSent       int64
	PacketsReceived   int64
	MalformedDropped  int64 // 解码失败或来源不符被丢弃的包
	WindowExceeded    int64 // 超出保留窗口被丢弃的修正
	ConflictingInputs int64 // 同一 (帧, 玩家) 收到不同的已确认输入
	DesyncsDetected   int64 // 校验和不一致
}

func (m *Metrics) incTicks()              { atomic.AddInt64(&m.Ticks, 1) }
func (m *Metrics) incPacketsSent()        { atomic.AddInt64(&m.PacketsSent, 1) }
func (m *Metrics) incPacketsReceived()    { atomic.AddInt64(&m.PacketsReceived, 1) }
func (m *Metrics) incMalformedDropped()   { atomic.AddInt64(&m.MalformedDropped, 1) }
func (m *Metrics) incWindowExceeded()     { atomic.AddInt64(&m.WindowExceeded, 1) }
func (m *Metrics) incConflictingInputs()  { atomic.AddInt64(&m.ConflictingInputs, 1) }
func (m *Metrics) incDesyncsDetected()    { atomic.AddInt64(&m.DesyncsDetected, 1) }
func (m *Metrics) addRollback(frames int) {
	atomic.AddInt64(&m.Rollbacks, 1)
	atomic.AddInt64(&m.FramesResimulated, int64(frames))
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"ticks":              atomic.LoadInt64(&m.Ticks),
		"rollbacks":          atomic.LoadInt64(&m.Rollbacks),
		"frames_resimulated": atomic.LoadInt64(&m.FramesResimulated),
		"packets_sent":       atomic.LoadInt64(&m.PacketsSent),
		"packets_received":   atomic.LoadInt64(&m.PacketsReceived),
		"malformed_dropped":  atomic.LoadInt64(&m.MalformedDropped),
		"window_exceeded":    atomic.LoadInt64(&m.WindowExceeded),
		"conflicting_inputs": atomic.LoadInt64(&m.ConflictingInputs),
		"desyncs_detected":   atomic.LoadInt64(&m.DesyncsDetected),
	}
}
