package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaafuria/furia-feed/internal/bot"
	"github.com/aaafuria/furia-feed/internal/clock"
	"github.com/aaafuria/furia-feed/internal/config"
	"github.com/aaafuria/furia-feed/internal/feed"
	"github.com/aaafuria/furia-feed/internal/health"
	"github.com/aaafuria/furia-feed/internal/httpapi"
	"github.com/aaafuria/furia-feed/internal/leader"
	"github.com/aaafuria/furia-feed/internal/reltime"
	"github.com/aaafuria/furia-feed/internal/store"
	"github.com/aaafuria/furia-feed/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/aaafuria/furia-feed/internal/store/entstore"
	_ "github.com/aaafuria/furia-feed/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	table, err := cfg.RelativeTime.BuildTable()
	if err != nil {
		return fmt.Errorf("building relative time table: %w", err)
	}
	ages, err := reltime.New(clk, table)
	if err != nil {
		return fmt.Errorf("creating age formatter: %w", err)
	}

	// Open store using the configured driver (sqlx or ent).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database",
		slog.String("driver", cfg.Database.Driver),
		slog.String("age_table", table.Name()),
	)

	feedMgr, err := feed.NewManager(repos.Posts, repos.Events, ages, cfg.Feed, logger, tp.TracerProvider, tp.MeterProvider)
	if err != nil {
		return fmt.Errorf("creating feed manager: %w", err)
	}

	healthHandler := health.NewHandler(clk, ages,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// The API and probes run on every replica; only the bot is leader-bound.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	mux.Handle("/", httpapi.NewHandler(feedMgr, ages, logger, tp.TracerProvider).Routes())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	// runBot blocks until ctx ends. Without a token it only waits.
	runBot := func(ctx context.Context) {
		discordBot, botErr := bot.New(cfg.Discord, feedMgr, cfg.Feed.PageSize, logger, tp.TracerProvider)
		switch {
		case errors.Is(botErr, bot.ErrDisabled):
			logger.InfoContext(ctx, "discord token not set, bot disabled")
		case botErr != nil:
			logger.ErrorContext(ctx, "creating bot failed", slog.Any("error", botErr))
			return
		default:
			if botErr = discordBot.Start(ctx); botErr != nil {
				logger.ErrorContext(ctx, "starting bot failed", slog.Any("error", botErr))
				return
			}
			logger.InfoContext(ctx, "discord bot is running")
		}

		<-ctx.Done()

		if discordBot != nil {
			if stopErr := discordBot.Stop(); stopErr != nil {
				logger.Error("bot shutdown error", slog.Any("error", stopErr))
			}
		}
	}

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "feedsvc is running", slog.String("version", version))

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, runBot, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		runBot(ctx)
	}

	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
