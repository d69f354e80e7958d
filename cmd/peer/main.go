// Package main 运行一个无界面的对战端：经 rendezvous 找到对手，用回滚引擎驱动演示竞技场。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"rollarena/game"
	"rollarena/logging"
	"rollarena/rollback"
	"rollarena/signaling"
)

type options struct {
	cfg         rollback.Config
	signalURL   string
	udpAddr     string
	fps         int
	metricsAddr string
}

func main() {
	// 环境变量给出默认值，命令行覆盖
	cfg, err := rollback.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	o := options{cfg: cfg}
	var logPath string
	var debug bool
	flag.StringVar(&o.signalURL, "signal", "ws://localhost:8080/ws?room=extreme_bevy&next=2", "rendezvous websocket url")
	flag.StringVar(&o.udpAddr, "udp", ":0", "local udp bind address")
	flag.IntVar(&o.fps, "fps", 60, "simulation frames per second")
	flag.StringVar(&logPath, "log", "peer.log", "rolling log file, empty for stderr only")
	flag.StringVar(&o.metricsAddr, "metrics", "", "serve engine metrics as JSON on this address, e.g. :9090")
	flag.BoolVar(&debug, "debug", false, "debug log level")
	flag.IntVar(&o.cfg.NumPlayers, "players", cfg.NumPlayers, "number of players (ROLLBACK_PLAYERS)")
	flag.IntVar(&o.cfg.InputDelay, "delay", cfg.InputDelay, "input delay in frames (ROLLBACK_INPUT_DELAY)")
	flag.IntVar(&o.cfg.HistoryWindow, "window", cfg.HistoryWindow, "rollback window in frames (ROLLBACK_HISTORY_WINDOW)")
	flag.Parse()

	if err := o.cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.fps < 1 {
		fmt.Fprintln(os.Stderr, "fps must be positive")
		os.Exit(2)
	}
	if err := logging.Init(logging.Options{FilePath: logPath, Console: true, Debug: debug}); err != nil {
		panic(err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil {
		logging.L().Errorf("peer stopped: %v", err)
		logging.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	log := logging.L()

	signalURL, err := withPlayerCount(o.signalURL, o.cfg.NumPlayers)
	if err != nil {
		return err
	}
	laddr, err := net.ResolveUDPAddr("udp", o.udpAddr)
	if err != nil {
		return fmt.Errorf("resolve udp addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	client, err := signaling.Dial(ctx, signalURL, conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()
	log.Infof("udp bound to %s, waiting for %d players at %s", conn.LocalAddr(), o.cfg.NumPlayers, signalURL)

	ticker := time.NewTicker(time.Second / time.Duration(o.fps))
	defer ticker.Stop()

	boot := rollback.NewBootstrap(o.cfg.NumPlayers, client)
	var sess *rollback.Session
	for sess == nil {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if sess, err = boot.Poll(); err != nil {
				return err
			}
		}
	}

	engine, err := rollback.NewEngine[game.State](o.cfg, sess, game.NewArena(), game.NewState(o.cfg.NumPlayers))
	if err != nil {
		_ = boot.Reset()
		return err
	}
	defer engine.Close()

	if o.metricsAddr != "" {
		srv := serveMetrics(o.metricsAddr, engine.Metrics())
		defer srv.Close()
	}

	arena := game.NewArena()
	for {
		select {
		case <-ctx.Done():
			log.Infof("leaving at frame %d (confirmed %d): %v", engine.SimulationFrame(), engine.ConfirmedFrame(), engine.Metrics().Snapshot())
			return nil
		case <-ticker.C:
			in := rollback.EncodeInput(game.ScriptedInput(engine.LocalHandle(), engine.CurrentFrame()))
			if err := engine.Tick(in); err != nil {
				return err
			}
			if engine.SimulationFrame()%rollback.Frame(o.fps) != 0 {
				continue
			}
			st := engine.State()
			log.Infof("frame %d confirmed %d checksum %016x players %+v",
				engine.SimulationFrame(), engine.ConfirmedFrame(), arena.Checksum(st), st.Players)
		}
	}
}

// withPlayerCount 信令 url 未带 next 时补上玩家数
func withPlayerCount(raw string, players int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse signaling url: %w", err)
	}
	q := u.Query()
	if q.Get("next") == "" {
		q.Set("next", strconv.Itoa(players))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func serveMetrics(addr string, m *rollback.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Warnf("metrics server: %v", err)
		}
	}()
	return srv
}
