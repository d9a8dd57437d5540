package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/api"
	"github.com/pefandor/pravda-market/pkg/engine"
	"github.com/pefandor/pravda-market/pkg/exchange"
	"github.com/pefandor/pravda-market/pkg/metrics"
	"github.com/pefandor/pravda-market/pkg/storage/postgres"
	"github.com/pefandor/pravda-market/pkg/ton"
	"github.com/pefandor/pravda-market/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := newLogger(cfg.Server.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		sugar.Fatalw("database open failed", "error", err)
	}
	defer store.Close()

	clock := util.RealClock{}
	met := metrics.NewCollector()
	eng := engine.New(logger, cfg.Exchange.MaxTradesPerOrder, cfg.Exchange.FeeRateBP)
	svc := exchange.New(store, eng, logger, met, clock, cfg.Exchange, cfg.Ton.RateKopecksPerTon)

	auth := api.NewAuthenticator(cfg.Auth, logger, clock)
	server := api.NewServer(cfg.Server, svc, auth, met, logger)

	tonClient := ton.NewClient(cfg.Ton, logger, clock)
	indexer := ton.NewIndexer(tonClient, store, logger, met, clock, cfg.Ton)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return indexer.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	sugar.Infow("pravda-market server running", "addr", cfg.Server.Addr)
	if err := g.Wait(); err != nil {
		sugar.Fatalw("server exited", "error", err)
	}
	sugar.Infow("server stopped")
}

func newLogger(logFile string) (*zap.Logger, error) {
	if logFile != "" {
		return util.NewLoggerWithFile(logFile)
	}
	return util.NewLogger()
}
