package server

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rollarena/logging"
)

const (
	// DefaultRoom 未指定 room 时使用的房间名
	DefaultRoom = "extreme_bevy"

	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws    *websocket.Conn
	send  chan []byte   // Tick 线程持有
	queue <-chan []byte // 写协程持有
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	ch := make(chan []byte, 64)
	return &ClientConn{
		ws:    ws,
		send:  ch,
		queue: ch,
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）；返回是否入队
func (c *ClientConn) Enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close 关闭发送队列，写协程随之发出关闭帧并退出
func (c *ClientConn) Close() {
	if c.send != nil {
		close(c.send)
		c.send = nil
	}
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.queue:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 客户端不发送业务消息，这里只维持读超时与检测断开
func (c *ClientConn) readPump(onClose func()) {
	defer c.ws.Close()
	defer onClose()
	c.ws.SetReadLimit(4 << 10)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS 使用默认管理器接入
func HandleWS(w http.ResponseWriter, r *http.Request) {
	GetRoomManager().HandleWS(w, r)
}

// HandleWS WebSocket 接入：?room=extreme_bevy&next=2&port=3536[&host=1.2.3.4]
// host 缺省时取连接的远端 IP。
func (m *RoomManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("room")
	if name == "" {
		name = DefaultRoom
	}
	next := 0
	if s := q.Get("next"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "invalid next", http.StatusBadRequest)
			return
		}
		next = n
	}
	port, err := strconv.Atoi(q.Get("port"))
	if err != nil || port < 1 || port > 65535 {
		http.Error(w, "missing or invalid port", http.StatusBadRequest)
		return
	}
	host := q.Get("host")
	if host == "" {
		if host, _, err = net.SplitHostPort(r.RemoteAddr); err != nil {
			host = r.RemoteAddr
		}
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warnf("upgrade error: %v", err)
		return
	}

	room := m.Assign(name, next)
	peer := &Peer{
		ID:   PeerID(uuid.NewString()),
		Addr: net.JoinHostPort(host, strconv.Itoa(port)),
		Conn: NewClientConn(ws),
	}
	room.JoinPeer(peer)

	go peer.Conn.writePump()
	// 读泵退出时，通知房间在 Tick 线程中移除该对端
	go peer.Conn.readPump(func() {
		room.RequestLeave(peer.ID)
		m.Release(room)
	})
}
