package game

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"rollarena/rollback"
)

const (
	// DefaultMoveSpeed 每帧移动距离
	DefaultMoveSpeed float32 = 0.13
	// SpawnSpread 两端出生点到原点的距离
	SpawnSpread float32 = 100
)

// Avatar 玩家在世界中的实体
type Avatar struct {
	X, Y  float32
	Shots uint32
}

// State 竞技场世界状态；Players 按 PlayerHandle 索引
type State struct {
	Frame   int32
	Players []Avatar
}

// Arena 演示用确定性模拟：方向键移动，光标存在时瞬移到光标，开火计数
type Arena struct {
	MoveSpeed float32
}

// NewArena 使用默认移动速度
func NewArena() *Arena {
	return &Arena{MoveSpeed: DefaultMoveSpeed}
}

// NewState 在 x 轴上均匀排布出生点：两人时分别位于 -100 与 +100
func NewState(numPlayers int) State {
	s := State{Players: make([]Avatar, numPlayers)}
	for h := range s.Players {
		x := -SpawnSpread
		if numPlayers > 1 {
			x += 2 * SpawnSpread * float32(h) / float32(numPlayers-1)
		}
		s.Players[h] = Avatar{X: x}
	}
	return s
}

// Advance 原地修改并返回 state；引擎在调用前已保存快照
func (a *Arena) Advance(state State, inputs []rollback.FrameInput) State {
	for h := range state.Players {
		if h >= len(inputs) {
			break
		}
		in := inputs[h]
		p := &state.Players[h]

		var dx, dy float32
		if in.Pressed(rollback.InputUp) {
			dy++
		}
		if in.Pressed(rollback.InputDown) {
			dy--
		}
		if in.Pressed(rollback.InputRight) {
			dx++
		}
		if in.Pressed(rollback.InputLeft) {
			dx--
		}
		p.X += dx * a.MoveSpeed
		p.Y += dy * a.MoveSpeed

		if in.HasCursor {
			p.X = in.CursorX
			p.Y = in.CursorY
		}
		if in.Pressed(rollback.InputFire) {
			p.Shots++
		}
	}
	state.Frame++
	return state
}

// Snapshot 深拷贝 Players
func (a *Arena) Snapshot(state State) State {
	state.Players = append([]Avatar(nil), state.Players...)
	return state
}

// Checksum 对状态的小端编码求 xxhash
func (a *Arena) Checksum(state State) uint64 {
	d := xxhash.New()
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(state.Frame))
	_, _ = d.Write(buf[:4])
	for _, p := range state.Players {
		binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(buf[8:12], p.Shots)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

var (
	_ rollback.Simulation[State]  = (*Arena)(nil)
	_ rollback.Checksummer[State] = (*Arena)(nil)
)
