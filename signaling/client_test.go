package signaling

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rollarena/game"
	"rollarena/rollback"
	"rollarena/server"
)

func newRendezvous(t *testing.T) string {
	t.Helper()
	m := server.NewRoomManager()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		m.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=loopback&next=2"
}

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	return conn
}

func dialClient(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, listenUDP(t))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// bootstrapAll 轮询直到所有 bootstrap 进入 Running
func bootstrapAll(t *testing.T, bs ...*rollback.Bootstrap) []*rollback.Session {
	t.Helper()
	sessions := make([]*rollback.Session, len(bs))
	deadline := time.Now().Add(3 * time.Second)
	for {
		done := true
		for i, b := range bs {
			if sessions[i] != nil {
				continue
			}
			sess, err := b.Poll()
			if err != nil {
				t.Fatalf("poll %d: %v", i, err)
			}
			sessions[i] = sess
			done = done && sess != nil
		}
		if done {
			return sessions
		}
		if time.Now().After(deadline) {
			t.Fatalf("peers never matched")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientBootstrapsUDPSession(t *testing.T) {
	url := newRendezvous(t)
	ca := dialClient(t, url)
	cb := dialClient(t, url)

	sessions := bootstrapAll(t, rollback.NewBootstrap(2, ca), rollback.NewBootstrap(2, cb))
	sa, sb := sessions[0], sessions[1]
	if sa.LocalHandle() == sb.LocalHandle() {
		t.Fatalf("both peers got handle %d", sa.LocalHandle())
	}
	idA, _ := ca.LocalID()
	if h, ok := sb.HandleOf(idA); !ok || h != sa.LocalHandle() {
		t.Fatalf("handle assignments disagree: %d vs %d", h, sa.LocalHandle())
	}
	if _, err := ca.TakeChannel(); !errors.Is(err, rollback.ErrChannelTaken) {
		t.Fatalf("expected ErrChannelTaken, got %v", err)
	}
	t.Cleanup(func() {
		sa.Close()
		sb.Close()
	})

	cfg := rollback.DefaultConfig()
	ea, err := rollback.NewEngine[game.State](cfg, sa, game.NewArena(), game.NewState(2))
	if err != nil {
		t.Fatalf("engine a: %v", err)
	}
	eb, err := rollback.NewEngine[game.State](cfg, sb, game.NewArena(), game.NewState(2))
	if err != nil {
		t.Fatalf("engine b: %v", err)
	}

	for i := 0; i < 150; i++ {
		for _, e := range []*rollback.Engine[game.State]{ea, eb} {
			in := rollback.RawInput{}
			if i < 120 {
				in = game.ScriptedInput(e.LocalHandle(), e.CurrentFrame())
			}
			if err := e.Tick(rollback.EncodeInput(in)); err != nil {
				t.Fatalf("tick: %v", err)
			}
		}
		time.Sleep(2 * time.Millisecond)
	}

	f := min(ea.ConfirmedFrame(), eb.ConfirmedFrame())
	if f < 100 {
		t.Fatalf("confirmed frames lag: a=%d b=%d", ea.ConfirmedFrame(), eb.ConfirmedFrame())
	}
	stA, okA := ea.StateAfter(f)
	stB, okB := eb.StateAfter(f)
	if !okA || !okB {
		t.Fatalf("state after %d not retained", f)
	}
	arena := game.NewArena()
	if arena.Checksum(stA) != arena.Checksum(stB) {
		t.Fatalf("peers diverged at frame %d: %+v vs %+v", f, stA, stB)
	}
	if ea.Metrics().PacketsReceived == 0 || eb.Metrics().PacketsReceived == 0 {
		t.Fatalf("no packets crossed the udp link")
	}
}

func TestClientReportsClosedConnection(t *testing.T) {
	url := newRendezvous(t)
	c := dialClient(t, url)
	c.ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := c.UpdatePeers(); err != nil {
			if !strings.Contains(err.Error(), "signaling connection") {
				t.Fatalf("unexpected error %v", err)
			}
			if again := c.UpdatePeers(); again == nil {
				t.Fatalf("connection error must stick")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("closed connection never reported")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
