package rollback

import (
	"github.com/cespare/xxhash/v2"
)

// Simulation 宿主提供的确定性状态推进
//
// Advance 必须是 (state, inputs) 的纯函数：不读时钟、不用未播种的随机数、不做 I/O。
// 回滚时同一帧会被多次调用，结果必须逐位一致。inputs 按 PlayerHandle 索引。
// Snapshot 返回 state 的深拷贝，用于回滚前保存与恢复。
type Simulation[S any] interface {
	Advance(state S, inputs []FrameInput) S
	Snapshot(state S) S
}

// Checksummer 可选：实现后引擎会交换已确认帧的状态校验和以检测失步
type Checksummer[S any] interface {
	Checksum(state S) uint64
}

// SimulationFunc 适配值类型状态（无共享引用，拷贝即快照）
type SimulationFunc[S any] func(state S, inputs []FrameInput) S

func (f SimulationFunc[S]) Advance(state S, inputs []FrameInput) S { return f(state, inputs) }
func (f SimulationFunc[S]) Snapshot(state S) S                     { return state }

// ChecksumBytes 对状态的规范编码求 64 位校验和
func ChecksumBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}
