package rollback

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"math"
)

// Buttons 离散按键位集合
type Buttons uint8

const (
	InputUp Buttons = 1 << iota
	InputDown
	InputLeft
	InputRight
	InputFire
)

// InputSize 单条 FrameInput 编码后的固定字节数（所有平台、所有帧一致）
const InputSize = 16

const quietNaNBits = 0x7fc00000

var (
	_ encoding.BinaryMarshaler   = FrameInput{}
	_ encoding.BinaryUnmarshaler = (*FrameInput)(nil)
)

// FrameInput 一名玩家在一帧内的输入，定长且字节稳定
//
// 布局（小端）：
//
//	[0:4]   cursor x (float32 bits)
//	[4:8]   cursor y (float32 bits)
//	[8]     has cursor (0/1)
//	[9]     keys
//	[10:16] padding，必须为 0
type FrameInput struct {
	CursorX   float32
	CursorY   float32
	HasCursor bool
	Keys      Buttons
}

// RawInput 本地输入设备的原始状态（由宿主采集）
type RawInput struct {
	Up, Down, Left, Right, Fire bool

	HasCursor bool
	CursorX   float64
	CursorY   float64
}

// EncodeInput 将原始输入打包为 FrameInput；纯函数，不会失败
func EncodeInput(raw RawInput) FrameInput {
	var in FrameInput
	if raw.Up {
		in.Keys |= InputUp
	}
	if raw.Down {
		in.Keys |= InputDown
	}
	if raw.Left {
		in.Keys |= InputLeft
	}
	if raw.Right {
		in.Keys |= InputRight
	}
	if raw.Fire {
		in.Keys |= InputFire
	}
	if raw.HasCursor {
		in.HasCursor = true
		in.CursorX = canonicalFloat(float32(raw.CursorX))
		in.CursorY = canonicalFloat(float32(raw.CursorY))
	}
	return in
}

// DecodeInput 从定长字节解码；长度或格式不符返回 ErrMalformedInput
func DecodeInput(b []byte) (FrameInput, error) {
	if len(b) != InputSize {
		return FrameInput{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedInput, len(b), InputSize)
	}
	if b[8] > 1 {
		return FrameInput{}, fmt.Errorf("%w: cursor flag %d", ErrMalformedInput, b[8])
	}
	for _, p := range b[10:] {
		if p != 0 {
			return FrameInput{}, fmt.Errorf("%w: non-zero padding", ErrMalformedInput)
		}
	}
	return FrameInput{
		CursorX:   math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		CursorY:   math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		HasCursor: b[8] == 1,
		Keys:      Buttons(b[9]),
	}, nil
}

// Pressed 判断是否按下任意给定按键
func (in FrameInput) Pressed(b Buttons) bool {
	return in.Keys&b != 0
}

// Equal 按编码后的比特比较（NaN 安全，用作校验和比较）
func (in FrameInput) Equal(other FrameInput) bool {
	return in.bits() == other.bits()
}

// AppendBinary 追加编码结果到 dst
func (in FrameInput) AppendBinary(dst []byte) []byte {
	b := in.bits()
	return append(dst, b[:]...)
}

func (in FrameInput) MarshalBinary() ([]byte, error) {
	return in.AppendBinary(make([]byte, 0, InputSize)), nil
}

func (in *FrameInput) UnmarshalBinary(b []byte) error {
	v, err := DecodeInput(b)
	if err != nil {
		return err
	}
	*in = v
	return nil
}

func (in FrameInput) bits() (buf [InputSize]byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(canonicalFloat(in.CursorX)))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(canonicalFloat(in.CursorY)))
	if in.HasCursor {
		buf[8] = 1
	}
	buf[9] = byte(in.Keys)
	return buf
}

// canonicalFloat -0 归一为 +0，NaN 归一为同一个 quiet NaN
func canonicalFloat(f float32) float32 {
	if f != f {
		return math.Float32frombits(quietNaNBits)
	}
	if f == 0 {
		return 0
	}
	return f
}
