package rollback

import (
	"errors"
	"fmt"
)

// PlayerHandle 会话内稳定的玩家编号 0..N-1
type PlayerHandle int

// SessionState 会话生命周期
type SessionState int

const (
	WaitingForPlayers SessionState = iota
	Running
	Closed
)

func (s SessionState) String() string {
	switch s {
	case WaitingForPlayers:
		return "waiting_for_players"
	case Running:
		return "running"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// PlayerKind 本地或远端玩家
type PlayerKind int

const (
	LocalPlayer PlayerKind = iota
	RemotePlayer
)

// Player 待绑定到句柄的玩家
type Player struct {
	Kind PlayerKind
	Peer PeerID
}

// SessionBuilder 收集句柄绑定，校验后用通道启动会话
type SessionBuilder struct {
	numPlayers int
	players    map[PlayerHandle]Player
	peers      map[PeerID]PlayerHandle
	hasLocal   bool
}

func NewSessionBuilder(numPlayers int) *SessionBuilder {
	return &SessionBuilder{
		numPlayers: numPlayers,
		players:    make(map[PlayerHandle]Player),
		peers:      make(map[PeerID]PlayerHandle),
	}
}

// AddPlayer 绑定玩家到句柄；句柄越界、重复句柄、重复对端或第二个本地玩家返回错误
func (b *SessionBuilder) AddPlayer(p Player, handle PlayerHandle) error {
	if handle < 0 || int(handle) >= b.numPlayers {
		return fmt.Errorf("invalid handle %d for %d players", handle, b.numPlayers)
	}
	if _, ok := b.players[handle]; ok {
		return fmt.Errorf("handle %d already bound", handle)
	}
	if prev, ok := b.peers[p.Peer]; ok {
		return fmt.Errorf("peer %q already bound to handle %d", p.Peer, prev)
	}
	if p.Kind == LocalPlayer && b.hasLocal {
		return errors.New("more than one local player")
	}
	b.players[handle] = p
	b.peers[p.Peer] = handle
	if p.Kind == LocalPlayer {
		b.hasLocal = true
	}
	return nil
}

func (b *SessionBuilder) validate() error {
	if len(b.players) != b.numPlayers {
		return fmt.Errorf("have %d players, want %d", len(b.players), b.numPlayers)
	}
	if !b.hasLocal {
		return errors.New("no local player")
	}
	return nil
}

// Start 校验后接管 channel，返回 Running 状态的会话
func (b *SessionBuilder) Start(channel Transport) (*Session, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, errors.New("nil channel")
	}
	s := &Session{
		peers:     make([]PeerID, b.numPlayers),
		handles:   make(map[PeerID]PlayerHandle, b.numPlayers),
		transport: channel,
		state:     Running,
	}
	for h, p := range b.players {
		s.peers[h] = p.Peer
		s.handles[p.Peer] = h
		if p.Kind == LocalPlayer {
			s.local = h
		}
	}
	return s, nil
}

// Session 运行中的会话：句柄↔对端绑定，独占通信通道
type Session struct {
	local     PlayerHandle
	peers     []PeerID
	handles   map[PeerID]PlayerHandle
	transport Transport
	state     SessionState
}

func (s *Session) LocalHandle() PlayerHandle { return s.local }
func (s *Session) NumPlayers() int           { return len(s.peers) }
func (s *Session) State() SessionState       { return s.state }
func (s *Session) Transport() Transport      { return s.transport }

// PeerOf 句柄对应的对端
func (s *Session) PeerOf(h PlayerHandle) (PeerID, bool) {
	if h < 0 || int(h) >= len(s.peers) {
		return "", false
	}
	return s.peers[h], true
}

// HandleOf 对端对应的句柄
func (s *Session) HandleOf(peer PeerID) (PlayerHandle, bool) {
	h, ok := s.handles[peer]
	return h, ok
}

// RemoteHandles 除本地外的所有句柄，升序
func (s *Session) RemoteHandles() []PlayerHandle {
	var out []PlayerHandle
	for h := range s.peers {
		if PlayerHandle(h) != s.local {
			out = append(out, PlayerHandle(h))
		}
	}
	return out
}

// Close 释放通道并清除绑定；可重复调用
func (s *Session) Close() error {
	if s.state == Closed {
		return nil
	}
	s.state = Closed
	var err error
	if s.transport != nil {
		err = s.transport.Close()
		s.transport = nil
	}
	s.peers = nil
	s.handles = map[PeerID]PlayerHandle{}
	return err
}
