package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/qcflow/internal/api"
	"github.com/seantiz/qcflow/internal/backend"
	"github.com/seantiz/qcflow/internal/backend/natsbackend"
	"github.com/seantiz/qcflow/internal/backend/remote"
	"github.com/seantiz/qcflow/internal/config"
	"github.com/seantiz/qcflow/internal/notify"
	"github.com/seantiz/qcflow/internal/orchestrator"
	"github.com/seantiz/qcflow/internal/store"
)

const drainTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("qcflow: starting",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store,
		"backend", cfg.Backend,
		"shots", cfg.Shots,
		"exec_timeout", cfg.ExecTimeout,
		"max_concurrent", cfg.MaxConcurrent,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		var connErr *store.ConnectivityError
		if errors.As(err, &connErr) {
			logger.Error("store unreachable", "backend", connErr.Backend, "addr", connErr.Addr, "error", connErr.Err)
		}
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	var nc *nats.Conn
	if cfg.NeedsNATS() {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("qcflow"))
		switch {
		case err == nil:
			defer nc.Drain()
		case cfg.Backend == config.BackendNATS:
			log.Fatalf("failed to connect to NATS at %s: %v", cfg.NATSURL, err)
		default:
			// Only status publishing needs the broker; run without it.
			logger.Warn("NATS unreachable, status events disabled", "nats_url", cfg.NATSURL, "error", err)
			nc = nil
		}
	}

	reg := backend.NewRegistry()
	switch cfg.Backend {
	case config.BackendNATS:
		reg.Register(natsbackend.Name, natsbackend.New(nc, cfg.NATSSubject))
	default:
		reg.Register(remote.Name, remote.New(cfg.EngineURL, nil))
	}

	var opts []orchestrator.Option
	if cfg.StatusSubject != "" && nc != nil {
		opts = append(opts, orchestrator.WithNotifier(notify.NewPublisher(nc, cfg.StatusSubject)))
	}

	orch := orchestrator.New(db, reg, orchestrator.Config{
		Shots:         cfg.Shots,
		Timeout:       cfg.ExecTimeout,
		StartDelay:    cfg.StartDelay,
		MaxConcurrent: cfg.MaxConcurrent,
		Backend:       cfg.Backend,
	}, logger, opts...)

	srv := api.NewServer(cfg.ListenAddr, db, reg, orch, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := orch.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("drain tasks: %w", err)
		}
		logger.Info("orchestrator stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("qcflow: exiting", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return store.NewSQLiteStore(cfg.DBPath)
	}
}
