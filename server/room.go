package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"rollarena/logging"
)

// Room 一个房间实例：成员表只在 Tick 协程中修改
type Room struct {
	ID       string // 实例标识，如 extreme_bevy#2
	Name     string // 客户端请求的房间名
	Capacity int    // next=N；0 表示不限

	peers   map[PeerID]*Peer
	order   []PeerID       // 加入顺序
	events  chan roomEvent // 加入与离开共用一个通道，保证先后顺序
	changed bool
	filled  int32 // 满员列表已广播过（atomic）

	tickSeq int64
	metrics *RoomMetrics

	stop          chan struct{}
	stopOnce      sync.Once
	tickerStarted bool
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(id, name string, capacity int) *Room {
	return &Room{
		ID:       id,
		Name:     name,
		Capacity: capacity,
		peers:    make(map[PeerID]*Peer),
		events:   make(chan roomEvent, 128),
		metrics:  &RoomMetrics{},
		stop:     make(chan struct{}),
	}
}

// roomEvent 成员变化：join 非空为加入，否则为 leave 离开
type roomEvent struct {
	join  *Peer
	leave PeerID
}

// Metrics 房间指标
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Tick 已执行的 Tick 数
func (r *Room) Tick() int64 { return atomic.LoadInt64(&r.tickSeq) }

// Filled 满员的成员列表是否已广播（对端可能已据此建立会话）
func (r *Room) Filled() bool { return atomic.LoadInt32(&r.filled) == 1 }

// JoinPeer 请求在 Tick 线程中加入对端
func (r *Room) JoinPeer(p *Peer) {
	r.post(roomEvent{join: p})
}

// RequestLeave 请求在 Tick 线程中移除对端，避免并发改动房间状态
func (r *Room) RequestLeave(id PeerID) {
	r.post(roomEvent{leave: id})
}

// post 阻塞写入以保证事件不丢；房间停止后直接放弃
func (r *Room) post(ev roomEvent) {
	select {
	case r.events <- ev:
	case <-r.stop:
	}
}

// ProcessEvents 按到达顺序处理积压的加入/离开（非阻塞 drain）
func (r *Room) ProcessEvents() {
	for {
		select {
		case ev := <-r.events:
			if ev.join != nil {
				r.addPeer(ev.join)
			} else {
				r.removePeer(ev.leave)
			}
		default:
			return
		}
	}
}

func (r *Room) addPeer(p *Peer) {
	r.peers[p.ID] = p
	r.order = append(r.order, p.ID)
	r.changed = true
	r.metrics.IncJoins()
	b, _ := json.Marshal(Message{Type: MsgID, ID: string(p.ID)})
	r.send(p, b)
	logging.L().Infof("peer joined: room=%s peer=%s addr=%s", r.ID, p.ID, p.Addr)
}

func (r *Room) removePeer(id PeerID) {
	p, ok := r.peers[id]
	if !ok {
		return
	}
	if p.Conn != nil {
		p.Conn.Close()
	}
	delete(r.peers, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.changed = true
	r.metrics.IncLeaves()
	logging.L().Infof("peer left: room=%s peer=%s", r.ID, id)
}

// BroadcastPeers 成员有变化时，把完整成员列表广播给所有人
func (r *Room) BroadcastPeers() {
	if !r.changed {
		return
	}
	r.changed = false
	if len(r.order) == 0 {
		return
	}
	list := make([]PeerInfo, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.peers[id].info())
	}
	b, _ := json.Marshal(Message{Type: MsgPeers, Peers: list})
	for _, id := range r.order {
		r.send(r.peers[id], b)
	}
	r.metrics.IncBroadcasts()
	if r.Capacity > 0 && len(r.order) >= r.Capacity {
		atomic.StoreInt32(&r.filled, 1)
	}
}

func (r *Room) send(p *Peer, b []byte) {
	if p.Conn == nil {
		return
	}
	if !p.Conn.Enqueue(b) {
		r.metrics.IncChanFullDiscarded()
	}
}

// PeerCount 当前成员数；仅在 Tick 线程或停止后调用
func (r *Room) PeerCount() int { return len(r.peers) }

// shutdown 停止时断开所有成员
func (r *Room) shutdown() {
	r.ProcessEvents()
	for _, id := range r.order {
		if p := r.peers[id]; p.Conn != nil {
			p.Conn.Close()
		}
	}
	r.peers = make(map[PeerID]*Peer)
	r.order = nil
}
