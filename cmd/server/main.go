package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/olyamironova/matching-engine/internal/adapter/cache"
	"github.com/olyamironova/matching-engine/internal/adapter/in_memory"
	"github.com/olyamironova/matching-engine/internal/adapter/kafka"
	"github.com/olyamironova/matching-engine/internal/adapter/outbox"
	"github.com/olyamironova/matching-engine/internal/adapter/pg"
	grpcapi "github.com/olyamironova/matching-engine/internal/api/grpc"
	httpapi "github.com/olyamironova/matching-engine/internal/api/http"
	"github.com/olyamironova/matching-engine/internal/api/ws"
	"github.com/olyamironova/matching-engine/internal/config"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/engine"
	"github.com/olyamironova/matching-engine/internal/gateway"
	"github.com/olyamironova/matching-engine/internal/logger"
	"github.com/olyamironova/matching-engine/internal/market"
	"github.com/olyamironova/matching-engine/internal/marketdata"
	"github.com/olyamironova/matching-engine/internal/port"
	"github.com/olyamironova/matching-engine/internal/relay"
)

func main() {
	envPath := flag.String("env", "", "path to a .env file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*envPath)
	if err != nil {
		// logger is not configured yet
		logger.Must("info").Fatal("config_load_failed", zap.Error(err))
	}
	log := logger.Must(cfg.LogLevel)
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
	log.Info("server_stopped")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	sugar := log.Sugar()

	markets, err := market.New(cfg.Engine.Symbols, cfg.Engine.TickSize)
	if err != nil {
		return err
	}

	requests := make(chan domain.ParticipantRequest, cfg.Engine.ChannelSize)
	responses := make(chan domain.ParticipantResponse, cfg.Engine.ChannelSize)
	updates := make(chan domain.MarketUpdate, cfg.Engine.ChannelSize)

	eng, err := engine.New(engine.Config{
		Symbols:   markets.IDs(),
		Limits:    cfg.Engine.Limits,
		InboxSize: cfg.Engine.InboxSize,
	}, log, requests, responses, updates)
	if err != nil {
		return err
	}

	journal, err := openJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer journal.Close(context.Background())

	depthCache, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	deps := gateway.Deps{
		Books:   eng,
		Markets: markets,
		Journal: journal,
		Cache:   depthCache,
		Hub:     marketdata.NewHub(),
	}

	var ob *outbox.Outbox
	if cfg.Outbox.Dir != "" {
		ob, err = outbox.Open(cfg.Outbox.Dir)
		if err != nil {
			return err
		}
		defer ob.Close()
		deps.Outbox = ob
		sugar.Infow("outbox_opened", "dir", cfg.Outbox.Dir)
	}

	gw := gateway.New(gateway.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		DepthLevels:    cfg.Engine.DepthLevels,
		DepthRefresh:   cfg.Engine.DepthRefresh,
	}, log, deps, requests, responses, updates)
	if err := gw.RestoreSequences(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return gw.Run(ctx) })

	if ob != nil && len(cfg.Kafka.Brokers) > 0 {
		marketData := kafka.NewMarketDataWriter(cfg.Kafka.Brokers, cfg.Kafka.MarketDataTopic)
		defer marketData.Close()
		executions, err := kafka.NewExecutionReportProducer(cfg.Kafka.Brokers, cfg.Kafka.ExecutionsTopic)
		if err != nil {
			return err
		}
		defer executions.Close()

		r := relay.New(log, ob, cfg.Outbox.RelayInterval, cfg.Outbox.RelayBatch,
			relay.Route{Kind: outbox.KindMarketUpdate, Publisher: marketData},
			relay.Route{Kind: outbox.KindExecution, Publisher: executions},
		)
		g.Go(func() error { return r.Run(ctx) })
		sugar.Infow("relay_started", "brokers", cfg.Kafka.Brokers)
	}

	httpServer := httpapi.NewHTTPServer(gw, markets, log, cfg.Server.RateLimit)
	grpcServer := grpcapi.NewGRPCServer(gw, markets, gw.Hub(), log)
	wsServer := ws.NewServer(gw, markets, gw.Hub(), log, cfg.Server.CORSOrigins)

	g.Go(func() error { return ignoreClosed(httpServer.Serve(ctx, cfg.Server.HTTPAddr)) })
	g.Go(func() error { return grpcServer.Serve(ctx, cfg.Server.GRPCAddr) })
	g.Go(func() error { return ignoreClosed(wsServer.Serve(ctx, cfg.Server.MarketDataAddr)) })

	sugar.Infow("server_started",
		"symbols", cfg.Engine.Symbols,
		"http", cfg.Server.HTTPAddr,
		"grpc", cfg.Server.GRPCAddr,
		"market_data", cfg.Server.MarketDataAddr,
	)
	return g.Wait()
}

func openJournal(ctx context.Context, cfg config.Config, log *zap.Logger) (port.Journal, error) {
	if cfg.Postgres.DSN == "" {
		log.Info("journal_in_memory")
		return in_memory.NewJournal(1000), nil
	}
	j, err := pg.NewJournal(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if err := j.EnsureSchema(ctx); err != nil {
		j.Close(ctx)
		return nil, err
	}
	log.Info("journal_postgres")
	return j, nil
}

func openCache(ctx context.Context, cfg config.Config, log *zap.Logger) (port.DepthCache, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Info("depth_cache_in_memory")
		return in_memory.NewCache(), func() {}, nil
	}
	c := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	log.Info("depth_cache_redis", zap.String("addr", cfg.Redis.Addr))
	return c, func() { _ = c.Close() }, nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
