package rollback

import (
	"errors"
	"net"
	"sync"

	"rollarena/logging"
)

const (
	// udpInboxSize 入站缓冲，足够吸收一个 Tick 内的突发，满则丢弃
	udpInboxSize = 256
	// maxDatagram 最大数据包：头 + 2*MaxHistoryWindow+2 条输入，留有余量
	maxDatagram = 8 << 10
)

// UDPTransport 基于 UDP 的对端通道：读协程把数据报压入缓冲通道，Tick 中非阻塞取走
type UDPTransport struct {
	conn   *net.UDPConn
	peers  map[PeerID]*net.UDPAddr
	byAddr map[string]PeerID

	inbox     chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewUDPTransport 接管 conn；peers 为已知对端地址（构造后只读）
func NewUDPTransport(conn *net.UDPConn, peers map[PeerID]*net.UDPAddr) *UDPTransport {
	t := &UDPTransport{
		conn:   conn,
		peers:  make(map[PeerID]*net.UDPAddr, len(peers)),
		byAddr: make(map[string]PeerID, len(peers)),
		inbox:  make(chan Message, udpInboxSize),
		done:   make(chan struct{}),
	}
	for id, addr := range peers {
		t.peers[id] = addr
		t.byAddr[addr.String()] = id
	}
	go t.readLoop()
	return t
}

// LocalAddr 本地绑定地址
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *UDPTransport) readLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-t.done:
				return
			default:
			}
			logging.L().Debugf("udp read: %v", err)
			continue
		}
		peer, ok := t.byAddr[addr.String()]
		if !ok {
			// 未知来源
			continue
		}
		m := Message{From: peer, Payload: append([]byte(nil), buf[:n]...)}
		select {
		case t.inbox <- m:
		default:
			// 拥塞时丢弃，保证 Tick 准时
		}
	}
}

func (t *UDPTransport) Send(peer PeerID, payload []byte) {
	addr, ok := t.peers[peer]
	if !ok {
		return
	}
	if _, err := t.conn.WriteToUDP(payload, addr); err != nil {
		logging.L().Debugf("udp send to %s: %v", peer, err)
	}
}

func (t *UDPTransport) Receive() []Message {
	var msgs []Message
	for {
		select {
		case m := <-t.inbox:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func (t *UDPTransport) PeerCount() int {
	return len(t.peers)
}

func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}
