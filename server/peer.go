package server

// PeerID 服务端分配的对端标识（uuid）
type PeerID string

// Peer 房间内的一个对端：信令连接 + 对外公布的 UDP 地址
type Peer struct {
	ID   PeerID
	Addr string // host:port，对端据此直连

	Conn *ClientConn // 网络连接的发送端（写协程）
}

func (p *Peer) info() PeerInfo {
	return PeerInfo{ID: string(p.ID), Addr: p.Addr}
}
