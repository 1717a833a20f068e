package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amazo-world/amazo-bot/config"
	app "github.com/amazo-world/amazo-bot/internal/application/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	tgclient "github.com/amazo-world/amazo-bot/internal/infrastructure/external/telegram"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/persistence/memory"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/persistence/postgres"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/persistence/redis"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/persistence/sqlite"
	httpserver "github.com/amazo-world/amazo-bot/internal/interface/http"
	"github.com/amazo-world/amazo-bot/internal/interface/http/handlers"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/handler"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/middleware"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and its HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd)
		},
	}
}

func serveRun(cmd *cobra.Command) error {
	cfg := configFromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting Amazo-World bot",
		"version", cfg.App.Version,
		"store", cfg.Store.Driver,
		"telegram_mode", cfg.Telegram.Mode,
	)
	return run(ctx, cfg, logger)
}

// services groups the long-running parts of the process.
type services struct {
	bot      *telegram.Bot
	server   *httpserver.Server
	sweepers []func(ctx context.Context)
	closers  []func()
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	svc, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := svc.bot.Run(gctx); err != nil {
			return fmt.Errorf("telegram bot: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := svc.server.Run(gctx, cfg.App.ShutdownTimeout); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, sweep := range svc.sweepers {
		g.Go(func() error {
			sweep(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := svc.bot.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop bot gracefully", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
		return err
	}
	logger.Info("shutdown completed")
	return nil
}

// build wires the store, the Telegram client, the handlers and the servers.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	svc := &services{}
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	if cfg.Tracing.Enabled {
		tp, err := setupTracing(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(flushCtx); err != nil {
				logger.Warn("failed to flush traces", "error", err)
			}
		})
		logger.Info("tracing enabled", "exporter", cfg.Tracing.Exporter, "sample_ratio", cfg.Tracing.SampleRatio)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Giveaway store
	// ─────────────────────────────────────────────────────────────────────────
	var repo giveaway.Repository
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory giveaway store, data is lost on restart")
		repo = memory.NewGiveawayRepository(nil)

	case config.DriverSQLite:
		store, err := sqlite.Open(sqlite.Config{Path: cfg.Store.SQLitePath, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		svc.closers = append(svc.closers, func() { _ = store.Close() })
		health.AddCheck("database", handlers.NewPingCheck(store))
		logger.Warn("sqlite store has no draw procedure, /pick is unavailable")
		repo = sqlite.NewGiveawayRepository(store, nil)

	default:
		conn, err := connectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, conn.Close)
		health.AddCheck("database", handlers.NewPingCheck(conn))

		if cfg.Store.AutoMigrate {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				svc.close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", "versions", applied)
		}
		repo = postgres.NewGiveawayRepository(conn)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Conversation store
	// ─────────────────────────────────────────────────────────────────────────
	var conversations giveaway.ConversationStore
	if cfg.Redis.Enabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.URL = cfg.Redis.URL
		client, err := redis.NewClient(ctx, redisCfg)
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		svc.closers = append(svc.closers, func() { _ = client.Close() })
		health.AddCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
		conversations = redis.NewConversationStore(client, cfg.Redis.ConversationTTL)
	} else {
		store := memory.NewConversationStore(cfg.Redis.ConversationTTL)
		svc.sweepers = append(svc.sweepers, func(ctx context.Context) {
			store.RunSweeper(ctx, time.Minute)
		})
		conversations = store
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Telegram client and metrics
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := tgclient.DefaultClientConfig(cfg.Telegram.Token)
	clientCfg.PollTimeout = cfg.Telegram.PollTimeout
	clientCfg.Timeout = time.Duration(cfg.Telegram.PollTimeout)*time.Second + 30*time.Second
	clientCfg.Debug = cfg.App.Debug
	clientCfg.Logger = logger
	client := tgclient.NewClient(clientCfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(registry)

	// ─────────────────────────────────────────────────────────────────────────
	// Application services and handlers
	// ─────────────────────────────────────────────────────────────────────────
	lifecycle := app.NewLifecycle(repo, giveaway.SystemClock(), logger)
	ledger := app.NewLedger(repo, app.LedgerConfig{
		WalletMinLength: cfg.Giveaway.WalletMinLength,
		WalletMaxLength: cfg.Giveaway.WalletMaxLength,
		StandingsLimit:  cfg.Giveaway.LeaderboardLimit,
		Logger:          logger,
	})
	broadcaster := app.NewBroadcaster(ledger, client, app.BroadcastConfig{
		Concurrency:   cfg.Giveaway.BroadcastConcurrency,
		RatePerSecond: cfg.Giveaway.BroadcastRate,
		Logger:        logger,
	})

	router := telegram.NewRouter(telegram.RouterConfig{
		Auth:   middleware.NewAdminAuth(cfg.Telegram.AdminID),
		Logger: logger,
	})
	telegram.RegisterRoutes(router, telegram.Handlers{
		Start: handler.NewStartHandler(conversations, cfg.Telegram.CommunityURL, logger),
		Entry: handler.NewEntryHandler(handler.EntryConfig{
			Lifecycle:      lifecycle,
			Ledger:         ledger,
			Conversations:  conversations,
			Identity:       client,
			OnRegistration: metrics.Registration,
			Logger:         logger,
		}),
		Account: handler.NewAccountHandler(lifecycle, ledger, client, cfg.Giveaway.LeaderboardLimit, logger),
		Admin: handler.NewAdminHandler(handler.AdminConfig{
			Lifecycle:   lifecycle,
			Ledger:      ledger,
			Admin:       app.NewAdmin(repo, logger),
			Broadcaster: broadcaster,
			OnBroadcast: metrics.Broadcast,
		}),
	})

	rateLimit := middleware.DefaultRateLimitConfig()
	rateLimit.RequestsPerMinute = cfg.Telegram.RateLimitPerMinute
	rateLimit.BurstSize = cfg.Telegram.RateLimitBurst
	rateLimit.Whitelist = []int64{cfg.Telegram.AdminID}

	botCfg := telegram.DefaultBotConfig()
	botCfg.Mode = cfg.Telegram.Mode
	botCfg.WebhookURL = cfg.Telegram.WebhookURL
	botCfg.WebhookSecret = cfg.Telegram.WebhookSecret
	botCfg.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	botCfg.GracefulShutdownTimeout = cfg.App.ShutdownTimeout
	botCfg.RateLimit = rateLimit
	botCfg.Metrics = metrics
	botCfg.Logger = logger

	bot, err := telegram.NewBot(client, router, botCfg)
	if err != nil {
		svc.close()
		return nil, fmt.Errorf("create bot: %w", err)
	}
	svc.bot = bot
	health.AddCheck("telegram_bot", handlers.NewRunningCheck("telegram bot", bot))

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.Debug = cfg.App.Debug

	deps := httpserver.Dependencies{
		Health:   health,
		Gatherer: registry,
		Logger:   logger,
	}
	if cfg.Telegram.Mode == telegram.ModeWebhook {
		deps.Webhook = handlers.NewTelegramWebhook(bot, cfg.Telegram.WebhookSecret, logger)
	}
	svc.server = httpserver.NewServer(httpCfg, deps)

	return svc, nil
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Store.DatabaseURL
	pgCfg.MaxConns = cfg.Store.MaxConns
	pgCfg.ConnectTimeout = cfg.Store.ConnectTimeout

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return conn, nil
}
