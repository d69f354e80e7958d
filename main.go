package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollarena/logging"
	"rollarena/server"
)

// rendezvous 入口：HTTP + WebSocket 信令服务，为对端撮合房间并交换 UDP 地址
func main() {
	var addr, logPath string
	var debug bool
	flag.StringVar(&addr, "addr", ":8080", "server listen address, e.g. :8080")
	flag.StringVar(&logPath, "log", "rendezvous.log", "rolling log file, empty for stderr only")
	flag.BoolVar(&debug, "debug", false, "debug log level")
	flag.Parse()

	if err := logging.Init(logging.Options{FilePath: logPath, Console: true, Debug: debug}); err != nil {
		panic(err)
	}
	defer logging.Sync()
	log := logging.L()

	rm := server.GetRoomManager()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS)
	// 管理与监控接口
	mux.HandleFunc("/admin/rooms", server.HandleRooms)
	mux.HandleFunc("/metrics", server.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infof("rendezvous listening on %s; peers connect to ws://localhost%v/ws?room=%s&next=2", addr, addr, server.DefaultRoom)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
	rm.Close()
}
