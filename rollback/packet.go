package rollback

import (
	"encoding/binary"
	"fmt"
)

const (
	packetMagic      = 0xa7
	packetHeaderSize = 24
)

// inputPacket 一个对端每 Tick 发出的数据包：自 ack+1 起所有尚未确认的本地输入
//
//	[0]      magic
//	[1]      sender handle
//	[2:4]    input count (uint16)
//	[4:8]    ack: 发送方已连续收到的接收方最高帧 (int32)
//	[8:12]   第一条输入的帧号 (int32)
//	[12:16]  校验和对应帧，NullFrame 表示无 (int32)
//	[16:24]  状态校验和 (uint64)
//	[24:]    count * InputSize
type inputPacket struct {
	handle        PlayerHandle
	ack           Frame
	start         Frame
	checksumFrame Frame
	checksum      uint64
	inputs        []FrameInput
}

func (p *inputPacket) appendBinary(dst []byte) []byte {
	var hdr [packetHeaderSize]byte
	hdr[0] = packetMagic
	hdr[1] = byte(p.handle)
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(p.inputs)))
	putFrame(hdr[4:8], p.ack)
	putFrame(hdr[8:12], p.start)
	putFrame(hdr[12:16], p.checksumFrame)
	binary.LittleEndian.PutUint64(hdr[16:24], p.checksum)
	dst = append(dst, hdr[:]...)
	for _, in := range p.inputs {
		dst = in.AppendBinary(dst)
	}
	return dst
}

func decodePacket(b []byte) (inputPacket, error) {
	if len(b) < packetHeaderSize {
		return inputPacket{}, fmt.Errorf("%w: short packet (%d bytes)", ErrMalformedInput, len(b))
	}
	if b[0] != packetMagic {
		return inputPacket{}, fmt.Errorf("%w: bad magic %#x", ErrMalformedInput, b[0])
	}
	count := int(binary.LittleEndian.Uint16(b[2:4]))
	if len(b) != packetHeaderSize+count*InputSize {
		return inputPacket{}, fmt.Errorf("%w: packet length %d does not match %d inputs", ErrMalformedInput, len(b), count)
	}
	p := inputPacket{
		handle:        PlayerHandle(b[1]),
		ack:           getFrame(b[4:8]),
		start:         getFrame(b[8:12]),
		checksumFrame: getFrame(b[12:16]),
		checksum:      binary.LittleEndian.Uint64(b[16:24]),
	}
	if p.start < 0 || p.ack < NullFrame || p.checksumFrame < NullFrame {
		return inputPacket{}, fmt.Errorf("%w: negative frame in header", ErrMalformedInput)
	}
	p.inputs = make([]FrameInput, count)
	for i := range p.inputs {
		off := packetHeaderSize + i*InputSize
		in, err := DecodeInput(b[off : off+InputSize])
		if err != nil {
			return inputPacket{}, fmt.Errorf("input %d: %w", i, err)
		}
		p.inputs[i] = in
	}
	return p, nil
}

func putFrame(b []byte, f Frame) {
	binary.LittleEndian.PutUint32(b, uint32(int32(f)))
}

func getFrame(b []byte) Frame {
	return Frame(int32(binary.LittleEndian.Uint32(b)))
}
