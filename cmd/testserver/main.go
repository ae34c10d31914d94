// testserver starts a qcflow API server backed by an in-process simulator
// for E2E testing. The simulator is reached over HTTP through the remote
// adapter, so the full request path is exercised.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seantiz/qcflow/internal/api"
	"github.com/seantiz/qcflow/internal/backend"
	"github.com/seantiz/qcflow/internal/backend/remote"
	"github.com/seantiz/qcflow/internal/backend/stub"
	"github.com/seantiz/qcflow/internal/orchestrator"
	"github.com/seantiz/qcflow/internal/store"
)

func main() {
	addr := ":8080"
	if v := os.Getenv("QCFLOW_LISTEN_ADDR"); v != "" {
		addr = v
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("failed to listen for engine: %v", err)
	}
	engine := &http.Server{
		Handler:           remote.NewHandler(&stub.Simulator{Delay: 500 * time.Millisecond}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := engine.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("engine server error", "error", err)
		}
	}()
	defer engine.Close()

	reg := backend.NewRegistry()
	reg.Register(remote.Name, remote.New("http://"+ln.Addr().String(), nil))

	orch := orchestrator.New(db, reg, orchestrator.Config{Backend: remote.Name}, logger)
	defer orch.Shutdown(context.Background())

	srv := api.NewServer(addr, db, reg, orch, logger)

	logger.Info("testserver: starting", "addr", addr, "engine", ln.Addr().String())
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
