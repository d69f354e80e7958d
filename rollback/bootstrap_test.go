package rollback

import (
	"errors"
	"testing"
)

// fakeRendezvous 按脚本逐次“发现”对端
type fakeRendezvous struct {
	local    PeerID
	hasLocal bool
	pending  [][]PeerID
	peers    []PeerID
	channel  Transport
	taken    bool
	updates  int
}

func (f *fakeRendezvous) UpdatePeers() error {
	f.updates++
	if len(f.pending) > 0 {
		f.peers = append(f.peers, f.pending[0]...)
		f.pending = f.pending[1:]
	}
	return nil
}

func (f *fakeRendezvous) LocalID() (PeerID, bool) { return f.local, f.hasLocal }
func (f *fakeRendezvous) Peers() []PeerID         { return append([]PeerID(nil), f.peers...) }

func (f *fakeRendezvous) TakeChannel() (Transport, error) {
	if f.taken {
		return nil, ErrChannelTaken
	}
	f.taken = true
	return f.channel, nil
}

func newFakeRendezvous(local PeerID, discover ...[]PeerID) *fakeRendezvous {
	return &fakeRendezvous{
		local:    local,
		hasLocal: true,
		pending:  discover,
		channel:  NewMemoryNetwork(1).Endpoint(local),
	}
}

func TestBootstrapWaitsForPlayers(t *testing.T) {
	rv := newFakeRendezvous("m")
	rv.hasLocal = false
	b := NewBootstrap(2, rv)
	for i := 0; i < 3; i++ {
		sess, err := b.Poll()
		if sess != nil || err != nil {
			t.Fatalf("poll %d: expected wait, got %v, %v", i, sess, err)
		}
	}
	if b.State() != WaitingForPlayers || rv.taken {
		t.Fatalf("state %s taken=%v", b.State(), rv.taken)
	}

	rv.hasLocal = true
	if sess, err := b.Poll(); sess != nil || err != nil {
		t.Fatalf("alone must keep waiting, got %v, %v", sess, err)
	}
}

func TestBootstrapAssignsHandlesAscending(t *testing.T) {
	rv := newFakeRendezvous("m", []PeerID{"z"}, []PeerID{"a"})
	b := NewBootstrap(3, rv)

	if sess, err := b.Poll(); sess != nil || err != nil {
		t.Fatalf("two of three must wait: %v, %v", sess, err)
	}
	sess, err := b.Poll()
	if err != nil || sess == nil {
		t.Fatalf("expected session, got %v, %v", sess, err)
	}
	if b.State() != Running || sess.State() != Running {
		t.Fatalf("expected running, got %s/%s", b.State(), sess.State())
	}
	for h, want := range []PeerID{"a", "m", "z"} {
		if got, _ := sess.PeerOf(PlayerHandle(h)); got != want {
			t.Fatalf("handle %d = %q, want %q", h, got, want)
		}
	}
	if sess.LocalHandle() != 1 {
		t.Fatalf("local handle = %d", sess.LocalHandle())
	}
	if rh := sess.RemoteHandles(); len(rh) != 2 || rh[0] != 0 || rh[1] != 2 {
		t.Fatalf("remote handles = %v", rh)
	}
}

func TestBootstrapTwoPlayersLocalSortsLast(t *testing.T) {
	rv := newFakeRendezvous("B", []PeerID{"A"})
	b := NewBootstrap(2, rv)
	sess, err := b.Poll()
	if err != nil || sess == nil {
		t.Fatalf("poll: %v, %v", sess, err)
	}
	if sess.LocalHandle() != 1 {
		t.Fatalf("local handle = %d", sess.LocalHandle())
	}
	if h, ok := sess.HandleOf("A"); !ok || h != 0 {
		t.Fatalf("remote handle = %d, %v", h, ok)
	}
}

func TestBootstrapDoubleStart(t *testing.T) {
	rv := newFakeRendezvous("B", []PeerID{"A"})
	b := NewBootstrap(2, rv)
	sess, err := b.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}

	rv.peers = append(rv.peers, "C")
	if _, err := b.Finalize(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("finalize: expected ErrAlreadyStarted, got %v", err)
	}
	updates := rv.updates
	if _, err := b.Poll(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("poll: expected ErrAlreadyStarted, got %v", err)
	}
	if rv.updates != updates {
		t.Fatalf("running bootstrap must not poll the rendezvous")
	}
	if b.Session() != sess || sess.NumPlayers() != 2 {
		t.Fatalf("bindings changed after double start")
	}
	if got, _ := sess.PeerOf(0); got != "A" {
		t.Fatalf("handle 0 = %q", got)
	}
}

func TestBootstrapBuildErrors(t *testing.T) {
	t.Run("duplicate peer", func(t *testing.T) {
		rv := newFakeRendezvous("m", []PeerID{"m"})
		b := NewBootstrap(2, rv)
		_, err := b.Poll()
		var be *SessionBuildError
		if !errors.As(err, &be) {
			t.Fatalf("expected SessionBuildError, got %v", err)
		}
		if rv.taken || b.State() != WaitingForPlayers {
			t.Fatalf("failed build must not take the channel")
		}
	})

	t.Run("too many peers", func(t *testing.T) {
		rv := newFakeRendezvous("m", []PeerID{"a", "b"})
		b := NewBootstrap(2, rv)
		_, err := b.Poll()
		var be *SessionBuildError
		if !errors.As(err, &be) {
			t.Fatalf("expected SessionBuildError, got %v", err)
		}
		if rv.taken {
			t.Fatalf("failed build must not take the channel")
		}
	})
}

func TestBootstrapResetCannotRetakeChannel(t *testing.T) {
	rv := newFakeRendezvous("B", []PeerID{"A"})
	b := NewBootstrap(2, rv)
	sess, err := b.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if err := b.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if b.State() != WaitingForPlayers || b.Session() != nil {
		t.Fatalf("reset left state %s", b.State())
	}
	if sess.State() != Closed || sess.NumPlayers() != 0 {
		t.Fatalf("old session keeps bindings")
	}
	if _, ok := sess.HandleOf("A"); ok {
		t.Fatalf("old session keeps peer lookup")
	}
	if _, err := b.Poll(); !errors.Is(err, ErrChannelTaken) {
		t.Fatalf("expected ErrChannelTaken, got %v", err)
	}
}

func TestSessionBuilderValidation(t *testing.T) {
	b := NewSessionBuilder(2)
	if err := b.AddPlayer(Player{Kind: LocalPlayer, Peer: "a"}, 2); err == nil {
		t.Fatalf("expected invalid handle error")
	}
	if err := b.AddPlayer(Player{Kind: LocalPlayer, Peer: "a"}, 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddPlayer(Player{Kind: RemotePlayer, Peer: "b"}, 0); err == nil {
		t.Fatalf("expected duplicate handle error")
	}
	if err := b.AddPlayer(Player{Kind: RemotePlayer, Peer: "a"}, 1); err == nil {
		t.Fatalf("expected duplicate peer error")
	}
	if err := b.AddPlayer(Player{Kind: LocalPlayer, Peer: "b"}, 1); err == nil {
		t.Fatalf("expected second local error")
	}
	if _, err := b.Start(NewMemoryNetwork(1).Endpoint("a")); err == nil {
		t.Fatalf("start with missing player must fail")
	}
	if err := b.AddPlayer(Player{Kind: RemotePlayer, Peer: "b"}, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := b.Start(nil); err == nil {
		t.Fatalf("start without channel must fail")
	}
	sess, err := b.Start(NewMemoryNetwork(1).Endpoint("a"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
