package server

// 服务端 → 客户端的信令消息类型（WebSocket 文本 JSON）
const (
	MsgID    = "id"    // {"type":"id","id":"..."} 仅发给新加入者
	MsgPeers = "peers" // {"type":"peers","peers":[...]} 成员变化时发给所有人
)

// PeerInfo 房间成员
type PeerInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// Message 信令消息
type Message struct {
	Type  string     `json:"type"`
	ID    string     `json:"id,omitempty"`
	Peers []PeerInfo `json:"peers,omitempty"`
}
