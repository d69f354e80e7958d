package rollback

import (
	"errors"
	"fmt"
)

// Frame 模拟的逻辑时钟，每个 Tick 恰好 +1
type Frame int

// NullFrame 表示“尚无”
const NullFrame Frame = -1

// SlotStatus 某玩家某帧输入的状态
type SlotStatus uint8

const (
	SlotEmpty     SlotStatus = iota
	SlotPredicted            // 已用预测值模拟过，真实输入未到
	SlotConfirmed            // 权威输入已到，值不再改变
)

func (s SlotStatus) String() string {
	switch s {
	case SlotPredicted:
		return "predicted"
	case SlotConfirmed:
		return "confirmed"
	default:
		return "empty"
	}
}

var (
	errConflictingInput = errors.New("conflicting confirmed input")
	errFrameOutOfWindow = errors.New("frame outside history window")
)

type inputSlot struct {
	status SlotStatus
	input  FrameInput
}

type frameInputs [MaxPlayers]inputSlot

// InputHistory 保留窗口内每帧每玩家的输入；已确认的槽位不会被改写
type InputHistory struct {
	numPlayers int
	frames     *window[frameInputs]
}

// NewInputHistory 容量为 capacity 帧，从 first 开始
func NewInputHistory(numPlayers, capacity int, first Frame) *InputHistory {
	return &InputHistory{
		numPlayers: numPlayers,
		frames:     newWindow[frameInputs](capacity, first),
	}
}

// First 最早保留帧
func (h *InputHistory) First() Frame { return h.frames.first }

// End 第一个不可存储的帧（超前）
func (h *InputHistory) End() Frame { return h.frames.end() }

// Contains 帧是否在窗口内
func (h *InputHistory) Contains(f Frame) bool { return h.frames.contains(f) }

// Input 返回槽位当前值与状态；窗口外为 SlotEmpty
func (h *InputHistory) Input(f Frame, handle PlayerHandle) (FrameInput, SlotStatus) {
	if !h.frames.contains(f) {
		return FrameInput{}, SlotEmpty
	}
	s := h.frames.at(f)[handle]
	return s.input, s.status
}

// Confirm 记录权威输入
// mispredicted 为 true 表示该帧此前用不同的预测值模拟过。
// 同一槽位收到不同的确认值返回 errConflictingInput，原值保留。
func (h *InputHistory) Confirm(f Frame, handle PlayerHandle, in FrameInput) (mispredicted bool, err error) {
	if !h.frames.contains(f) {
		return false, fmt.Errorf("confirm frame %d: %w", f, errFrameOutOfWindow)
	}
	s := &h.frames.at(f)[handle]
	switch s.status {
	case SlotConfirmed:
		if !s.input.Equal(in) {
			return false, fmt.Errorf("frame %d handle %d: %w", f, handle, errConflictingInput)
		}
		return false, nil
	case SlotPredicted:
		mispredicted = !s.input.Equal(in)
	}
	s.status = SlotConfirmed
	s.input = in
	return mispredicted, nil
}

// Resolve 返回模拟第 f 帧时该玩家使用的输入：
// 已确认则用确认值；否则沿用之前最近一帧的已知输入（frame-hold），都没有则为零值，并标记为 predicted。
func (h *InputHistory) Resolve(f Frame, handle PlayerHandle) FrameInput {
	s := h.frames.at(f)
	if s[handle].status == SlotConfirmed {
		return s[handle].input
	}
	pred := h.latestBefore(f, handle)
	s[handle] = inputSlot{status: SlotPredicted, input: pred}
	return pred
}

func (h *InputHistory) latestBefore(f Frame, handle PlayerHandle) FrameInput {
	for prev := f - 1; prev >= h.frames.first; prev-- {
		s := h.frames.at(prev)[handle]
		if s.status != SlotEmpty {
			return s.input
		}
	}
	return FrameInput{}
}

// Prune 丢弃 first 之前的帧
func (h *InputHistory) Prune(first Frame) {
	h.frames.advanceTo(first)
}
