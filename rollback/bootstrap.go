package rollback

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"rollarena/logging"
)

// Rendezvous 信令汇合点的最小能力：枚举已知对端，匹配后交出独占通道（仅一次）
type Rendezvous interface {
	// UpdatePeers 非阻塞地拉取新发现的对端
	UpdatePeers() error
	// LocalID 本端标识；服务端尚未分配时 ok 为 false
	LocalID() (PeerID, bool)
	// Peers 当前已知的远端对端（不含本端）
	Peers() []PeerID
	// TakeChannel 交出通信通道；第二次调用返回 ErrChannelTaken
	TakeChannel() (Transport, error)
}

// Bootstrap 等待玩家凑齐并一次性构建会话：WaitingForPlayers → Running
type Bootstrap struct {
	numPlayers int
	rv         Rendezvous
	state      SessionState
	session    *Session
	log        *zap.SugaredLogger
}

func NewBootstrap(numPlayers int, rv Rendezvous) *Bootstrap {
	return &Bootstrap{
		numPlayers: numPlayers,
		rv:         rv,
		state:      WaitingForPlayers,
		log:        logging.L(),
	}
}

func (b *Bootstrap) State() SessionState { return b.state }

// Session Running 时返回会话，否则 nil
func (b *Bootstrap) Session() *Session { return b.session }

// Poll 每个 Tick 调用一次：拉取对端，人数不足返回 (nil, nil)，凑齐则 Finalize
func (b *Bootstrap) Poll() (*Session, error) {
	if b.state == Running {
		return nil, ErrAlreadyStarted
	}
	if err := b.rv.UpdatePeers(); err != nil {
		return nil, fmt.Errorf("update peers: %w", err)
	}
	if _, ok := b.rv.LocalID(); !ok {
		return nil, nil
	}
	if 1+len(b.rv.Peers()) < b.numPlayers {
		return nil, nil
	}
	return b.Finalize()
}

// Finalize 按对端标识升序分配句柄 0..N-1 并取走通道
// 已 Running 返回 ErrAlreadyStarted 且不改变绑定；构建失败返回 *SessionBuildError，不取通道。
func (b *Bootstrap) Finalize() (*Session, error) {
	if b.state == Running {
		return nil, ErrAlreadyStarted
	}
	local, ok := b.rv.LocalID()
	if !ok {
		return nil, &SessionBuildError{Err: errors.New("local peer id not assigned")}
	}
	ids := append([]PeerID{local}, b.rv.Peers()...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	builder := NewSessionBuilder(b.numPlayers)
	for i, id := range ids {
		p := Player{Kind: RemotePlayer, Peer: id}
		if id == local {
			p.Kind = LocalPlayer
		}
		if err := builder.AddPlayer(p, PlayerHandle(i)); err != nil {
			return nil, &SessionBuildError{Err: err}
		}
	}
	if err := builder.validate(); err != nil {
		return nil, &SessionBuildError{Err: err}
	}

	channel, err := b.rv.TakeChannel()
	if err != nil {
		return nil, fmt.Errorf("take channel: %w", err)
	}
	sess, err := builder.Start(channel)
	if err != nil {
		_ = channel.Close()
		return nil, &SessionBuildError{Err: err}
	}
	b.session = sess
	b.state = Running
	b.log.Infof("all peers have joined, going in-game: local=%s handle=%d players=%v", local, sess.LocalHandle(), ids)
	return sess, nil
}

// Reset 关闭当前会话并回到 WaitingForPlayers，不保留任何旧绑定
func (b *Bootstrap) Reset() error {
	var err error
	if b.session != nil {
		err = b.session.Close()
	}
	b.session = nil
	b.state = WaitingForPlayers
	return err
}
