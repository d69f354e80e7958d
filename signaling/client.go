// Package signaling 是 rendezvous 服务的客户端：通过 WebSocket 发现同房间对端，
// 凑齐后把本地 UDP 套接字交给 rollback 会话。
package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rollarena/logging"
	"rollarena/rollback"
	"rollarena/server"
)

// Client 实现 rollback.Rendezvous；除读协程外只在调用方线程中使用
type Client struct {
	ws   *websocket.Conn
	udp  *net.UDPConn
	log  *zap.SugaredLogger
	done chan struct{}

	incoming chan server.Message
	errc     chan error
	err      error

	localID rollback.PeerID
	hasID   bool
	peers   []rollback.PeerID
	addrs   map[rollback.PeerID]*net.UDPAddr
	taken   bool

	closeOnce sync.Once
}

// Dial 连接 rendezvous；未显式给出 port 参数时使用 udp 的本地端口
func Dial(ctx context.Context, rawURL string, udp *net.UDPConn) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse signaling url: %w", err)
	}
	q := u.Query()
	if q.Get("port") == "" {
		q.Set("port", strconv.Itoa(udp.LocalAddr().(*net.UDPAddr).Port))
	}
	u.RawQuery = q.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	c := &Client{
		ws:       ws,
		udp:      udp,
		log:      logging.L(),
		done:     make(chan struct{}),
		incoming: make(chan server.Message, 64),
		errc:     make(chan error, 1),
		addrs:    make(map[rollback.PeerID]*net.UDPAddr),
	}
	go c.readPump()
	return c, nil
}

func (c *Client) readPump() {
	for {
		var msg server.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			select {
			case c.errc <- err:
			default:
			}
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// UpdatePeers 非阻塞地处理已到达的信令消息；连接断开返回错误
func (c *Client) UpdatePeers() error {
	if c.err != nil {
		return c.err
	}
	for {
		select {
		case msg := <-c.incoming:
			c.handle(msg)
		default:
			select {
			case err := <-c.errc:
				c.err = fmt.Errorf("signaling connection: %w", err)
				return c.err
			default:
			}
			return nil
		}
	}
}

func (c *Client) handle(msg server.Message) {
	switch msg.Type {
	case server.MsgID:
		c.localID = rollback.PeerID(msg.ID)
		c.hasID = true
		c.log.Infof("my peer id: %s", msg.ID)
	case server.MsgPeers:
		// 列表是全量的，直接替换
		peers := make([]rollback.PeerID, 0, len(msg.Peers))
		addrs := make(map[rollback.PeerID]*net.UDPAddr, len(msg.Peers))
		for _, p := range msg.Peers {
			id := rollback.PeerID(p.ID)
			if c.hasID && id == c.localID {
				continue
			}
			addr, err := net.ResolveUDPAddr("udp", p.Addr)
			if err != nil {
				c.log.Warnf("ignoring peer %s with bad addr %q: %v", p.ID, p.Addr, err)
				continue
			}
			peers = append(peers, id)
			addrs[id] = addr
		}
		for _, id := range peers {
			if _, ok := c.addrs[id]; !ok {
				c.log.Infof("new peer joined: %s", id)
			}
		}
		c.peers, c.addrs = peers, addrs
	default:
		c.log.Debugf("unknown signaling message %q", msg.Type)
	}
}

func (c *Client) LocalID() (rollback.PeerID, bool) { return c.localID, c.hasID }

func (c *Client) Peers() []rollback.PeerID {
	return append([]rollback.PeerID(nil), c.peers...)
}

// TakeChannel 用已知对端地址构建 UDP 通道，只能调用一次
func (c *Client) TakeChannel() (rollback.Transport, error) {
	if c.taken {
		return nil, rollback.ErrChannelTaken
	}
	if c.udp == nil {
		return nil, errors.New("signaling: no udp socket")
	}
	c.taken = true
	return rollback.NewUDPTransport(c.udp, c.addrs), nil
}

// Close 断开信令连接；UDP 套接字归 TakeChannel 返回的通道所有，未取走时一并关闭
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = c.ws.Close()
		if !c.taken && c.udp != nil {
			_ = c.udp.Close()
		}
	})
	return err
}

var _ rollback.Rendezvous = (*Client)(nil)
