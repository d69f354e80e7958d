package game

import (
	"testing"

	"rollarena/rollback"
)

func TestNewStateSpawnsAtEdges(t *testing.T) {
	s := NewState(2)
	if len(s.Players) != 2 || s.Players[0].X != -100 || s.Players[1].X != 100 {
		t.Fatalf("unexpected spawn %+v", s.Players)
	}
	s = NewState(3)
	if s.Players[1].X != 0 {
		t.Fatalf("middle player should spawn at origin, got %+v", s.Players[1])
	}
}

func TestArenaAdvance(t *testing.T) {
	a := &Arena{MoveSpeed: 2}
	s := NewState(2)
	s = a.Advance(s, []rollback.FrameInput{
		{Keys: rollback.InputUp | rollback.InputRight | rollback.InputFire},
		{Keys: rollback.InputLeft, HasCursor: true, CursorX: 5, CursorY: -7},
	})
	if s.Frame != 1 {
		t.Fatalf("frame = %d", s.Frame)
	}
	if p := s.Players[0]; p.X != -98 || p.Y != 2 || p.Shots != 1 {
		t.Fatalf("player 0 = %+v", p)
	}
	// 光标优先于方向键
	if p := s.Players[1]; p.X != 5 || p.Y != -7 || p.Shots != 0 {
		t.Fatalf("player 1 = %+v", p)
	}

	s = a.Advance(s, []rollback.FrameInput{{Keys: rollback.InputDown | rollback.InputUp}, {}})
	if p := s.Players[0]; p.X != -98 || p.Y != 2 {
		t.Fatalf("opposite keys must cancel, got %+v", p)
	}
}

func TestArenaSnapshotIsDeep(t *testing.T) {
	a := NewArena()
	s := NewState(2)
	snap := a.Snapshot(s)
	s = a.Advance(s, []rollback.FrameInput{{Keys: rollback.InputRight}, {}})
	if snap.Players[0].X != -100 || snap.Frame != 0 {
		t.Fatalf("snapshot mutated by advance: %+v", snap)
	}
	if a.Checksum(snap) == a.Checksum(s) {
		t.Fatalf("checksum must change with state")
	}
	if a.Checksum(snap) != a.Checksum(a.Snapshot(snap)) {
		t.Fatalf("checksum must depend only on contents")
	}
}

func TestScriptedInputIsDeterministic(t *testing.T) {
	fired := 0
	for f := rollback.Frame(0); f < 300; f++ {
		x, y := ScriptedInput(1, f), ScriptedInput(1, f)
		if x != y {
			t.Fatalf("frame %d: %+v != %+v", f, x, y)
		}
		if x.Fire {
			fired++
		}
	}
	if fired == 0 {
		t.Fatalf("script never fires")
	}
	if in := ScriptedInput(0, 120); !in.HasCursor {
		t.Fatalf("expected cursor at frame 120")
	}
	if in := ScriptedInput(0, -1); in != (rollback.RawInput{}) {
		t.Fatalf("negative frame must be idle")
	}
}

func newArenaEngine(t *testing.T, cfg rollback.Config, net *rollback.MemoryNetwork, local rollback.PeerID, handle rollback.PlayerHandle, peers []rollback.PeerID) *rollback.Engine[State] {
	t.Helper()
	b := rollback.NewSessionBuilder(len(peers))
	for h, id := range peers {
		kind := rollback.RemotePlayer
		if rollback.PlayerHandle(h) == handle {
			kind = rollback.LocalPlayer
		}
		if err := b.AddPlayer(rollback.Player{Kind: kind, Peer: id}, rollback.PlayerHandle(h)); err != nil {
			t.Fatalf("add player: %v", err)
		}
	}
	sess, err := b.Start(net.Endpoint(local))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	e, err := rollback.NewEngine[State](cfg, sess, NewArena(), NewState(len(peers)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestArenaConvergesOverLossyNetwork(t *testing.T) {
	cfg := rollback.DefaultConfig()
	// 无输入延迟：每次远端换键都必然触发回滚
	cfg.InputDelay = 0
	net := rollback.NewMemoryNetwork(7)
	net.SetDropProbability(0.15)
	peers := []rollback.PeerID{"alpha", "bravo"}
	a := newArenaEngine(t, cfg, net, "alpha", 0, peers)
	b := newArenaEngine(t, cfg, net, "bravo", 1, peers)

	tick := func(e *rollback.Engine[State]) {
		in := rollback.EncodeInput(ScriptedInput(e.LocalHandle(), e.CurrentFrame()))
		if err := e.Tick(in); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	for i := 0; i < 400; i++ {
		if i == 360 {
			net.SetDropProbability(0)
		}
		tick(a)
		tick(b)
	}

	f := min(a.ConfirmedFrame(), b.ConfirmedFrame())
	if f < 395 {
		t.Fatalf("confirmed frame lags: a=%d b=%d", a.ConfirmedFrame(), b.ConfirmedFrame())
	}
	sa, okA := a.StateAfter(f)
	sb, okB := b.StateAfter(f)
	if !okA || !okB {
		t.Fatalf("state after %d not retained", f)
	}

	// 所有输入已知时顺序模拟的结果
	arena := NewArena()
	want := NewState(2)
	for fr := rollback.Frame(0); fr <= f; fr++ {
		in := make([]rollback.FrameInput, 2)
		if fr >= rollback.Frame(cfg.InputDelay) {
			for h := range in {
				in[h] = rollback.EncodeInput(ScriptedInput(rollback.PlayerHandle(h), fr-rollback.Frame(cfg.InputDelay)))
			}
		}
		want = arena.Advance(want, in)
	}
	if arena.Checksum(sa) != arena.Checksum(want) || arena.Checksum(sb) != arena.Checksum(want) {
		t.Fatalf("frame %d diverged: a=%+v b=%+v want=%+v", f, sa, sb, want)
	}
	if a.Metrics().DesyncsDetected != 0 || b.Metrics().DesyncsDetected != 0 {
		t.Fatalf("unexpected desync reports")
	}
	if a.Metrics().Rollbacks == 0 && b.Metrics().Rollbacks == 0 {
		t.Fatalf("expected some rollbacks under packet loss")
	}
}
