package rollback

import (
	"math/rand"
	"sync"
)

// PeerID 由 rendezvous 分配的对端标识，全局唯一
type PeerID string

// Message 一条入站消息
type Message struct {
	From    PeerID
	Payload []byte
}

// Transport 不可靠、无序、按对端寻址的消息通道
//
// Send 立即返回，可能静默丢弃；Receive 非阻塞地取走当前已到达的全部消息。
// 重传与排序由引擎负责。Send 返回后调用方会复用 payload，实现不得持有它。
type Transport interface {
	Send(peer PeerID, payload []byte)
	Receive() []Message
	PeerCount() int
	Close() error
}

// memoryInboxLimit 单个端点收件箱上限，满则丢弃新消息
const memoryInboxLimit = 1024

type link struct {
	from, to PeerID
}

// MemoryNetwork 进程内网络：用于测试与本地对战，可模拟丢包与延迟
type MemoryNetwork struct {
	mu        sync.Mutex
	endpoints map[PeerID]*MemoryTransport
	rng       *rand.Rand
	dropProb  float64
	holding   map[link]bool
	held      map[link][]Message
}

// NewMemoryNetwork seed 决定丢包序列，便于复现
func NewMemoryNetwork(seed int64) *MemoryNetwork {
	return &MemoryNetwork{
		endpoints: make(map[PeerID]*MemoryTransport),
		rng:       rand.New(rand.NewSource(seed)),
		holding:   make(map[link]bool),
		held:      make(map[link][]Message),
	}
}

// SetDropProbability 设置丢包概率 [0,1]
func (n *MemoryNetwork) SetDropProbability(p float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropProb = p
}

// Endpoint 获取或创建端点
func (n *MemoryNetwork) Endpoint(id PeerID) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.endpoints[id]
	if !ok {
		t = &MemoryTransport{net: n, id: id}
		n.endpoints[id] = t
	}
	return t
}

// Hold 暂存 from→to 的消息，直到 Release
func (n *MemoryNetwork) Hold(from, to PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.holding[link{from, to}] = true
}

// Release 按发送顺序投递暂存消息并恢复直连
func (n *MemoryNetwork) Release(from, to PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	l := link{from, to}
	delete(n.holding, l)
	msgs := n.held[l]
	delete(n.held, l)
	if dst, ok := n.endpoints[to]; ok {
		for _, m := range msgs {
			dst.enqueueLocked(m)
		}
	}
}

func (n *MemoryNetwork) send(from, to PeerID, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.endpoints[from]; !ok {
		return
	}
	dst, ok := n.endpoints[to]
	if !ok || dst.closed {
		return
	}
	if n.dropProb > 0 && n.rng.Float64() < n.dropProb {
		return
	}
	m := Message{From: from, Payload: append([]byte(nil), payload...)}
	l := link{from, to}
	if n.holding[l] {
		n.held[l] = append(n.held[l], m)
		return
	}
	dst.enqueueLocked(m)
}

// MemoryTransport MemoryNetwork 上的一个端点
type MemoryTransport struct {
	net    *MemoryNetwork
	id     PeerID
	inbox  []Message // 受 net.mu 保护
	closed bool
}

// ID 端点标识
func (t *MemoryTransport) ID() PeerID { return t.id }

func (t *MemoryTransport) Send(peer PeerID, payload []byte) {
	t.net.send(t.id, peer, payload)
}

func (t *MemoryTransport) Receive() []Message {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	msgs := t.inbox
	t.inbox = nil
	return msgs
}

func (t *MemoryTransport) PeerCount() int {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	n := 0
	for id, ep := range t.net.endpoints {
		if id != t.id && !ep.closed {
			n++
		}
	}
	return n
}

func (t *MemoryTransport) Close() error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.closed = true
	t.inbox = nil
	delete(t.net.endpoints, t.id)
	return nil
}

func (t *MemoryTransport) enqueueLocked(m Message) {
	if t.closed || len(t.inbox) >= memoryInboxLimit {
		return
	}
	t.inbox = append(t.inbox, m)
}
