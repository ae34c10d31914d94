// Command qcflow-engine runs the reference simulator as a standalone engine.
// It serves circuits over HTTP for the remote adapter, or joins the NATS
// engine queue group when QCFLOW_ENGINE_TRANSPORT=nats.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/seantiz/qcflow/internal/backend/natsbackend"
	"github.com/seantiz/qcflow/internal/backend/remote"
	"github.com/seantiz/qcflow/internal/backend/stub"
	"github.com/seantiz/qcflow/internal/config"
)

func main() {
	cfg := config.LoadEngine()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := &stub.Simulator{Delay: cfg.Delay}

	if cfg.Transport == config.BackendNATS {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("qcflow-engine"))
		if err != nil {
			log.Fatalf("failed to connect to NATS at %s: %v", cfg.NATSURL, err)
		}
		defer nc.Drain()

		if _, err := natsbackend.Serve(nc, cfg.NATSSubject, sim, cfg.Timeout, logger); err != nil {
			log.Fatalf("subscribe %s: %v", cfg.NATSSubject, err)
		}
		logger.Info("qcflow-engine: serving", "transport", "nats", "subject", cfg.NATSSubject, "queue", natsbackend.QueueGroup)
		<-ctx.Done()
		return
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           remote.NewHandler(sim, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("qcflow-engine: serving", "transport", "http", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("engine server error: %v", err)
	}
}
