package infrastructure

import (
	"context"
	"log/slog"

	"jumpgen/internal/config"
	"jumpgen/internal/llm"
	"jumpgen/internal/repository"
	"jumpgen/internal/service"
	transportHTTP "jumpgen/internal/transport/http"
	transportNATS "jumpgen/internal/transport/nats"
	"jumpgen/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Everything is constructed here and passed down explicitly;
// there are no package-level singleton clients. Returns the App, a
// cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, db.Close)

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, nc.Close)

	ledger := repository.NewLedgerRepo(db, rdb)
	jumps := repository.NewJumpsRepo(db)
	counters := repository.NewCountersRepo(db)
	bus, err := transportNATS.NewBus(nc, service.RefundsSubject)
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	client := llm.NewClient(cfg.ModelAPIKey, cfg.ModelBaseURL,
		llm.WithMaxAttempts(cfg.ModelMaxRetries))

	var svc service.GenerationService = service.NewOrchestrator(
		ledger, client, llm.NewParser(), jumps, counters, bus, cfg.ModelName)

	servers := []Server{
		worker.NewRefundWorker(svc, nc),
	}
	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, svc))
	} else {
		slog.Info("HTTP API not started", "reason", apiErr)
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions
// in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
