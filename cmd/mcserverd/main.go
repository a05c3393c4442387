package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"mcserver-backend/config"
	"mcserver-backend/internal/api"
	"mcserver-backend/internal/bot"
	"mcserver-backend/internal/db"
	"mcserver-backend/internal/gateway"
	"mcserver-backend/internal/metrics"
	"mcserver-backend/internal/notification"
	"mcserver-backend/internal/orchestrator"
	"mcserver-backend/internal/poller"
	"mcserver-backend/internal/report"
	"mcserver-backend/internal/store"
	"mcserver-backend/internal/vote"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mcserverd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("mcserverd", flag.ContinueOnError)
	configPath := flags.String("config", envOr("CONFIG_PATH", "./config/config.yaml"), "path to the YAML config file")
	dev := flags.Bool("dev", false, "human-readable debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logger, err := newLogger(*dev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration from %s: %w", *configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Info("configuration loaded", zap.String("path", *configPath))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return err
	}
	appStore := store.NewGormStore(gormDB)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gw, err := gateway.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer gw.Close()

	discord, err := bot.NewDiscord(cfg.Bot.Token, cfg.Bot.BroadcastChannel, logger, m)
	if err != nil {
		return err
	}

	var webpushOptions *webpush.Options
	sinks := notification.Fanout{discord}
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger, m)
		pool.Start(ctx)
		sinks = append(sinks, pool)
	} else {
		logger.Info("web push disabled: VAPID keys not configured")
	}

	clock := clockwork.NewRealClock()
	orch := orchestrator.New(gw, sinks, cfg.Orchestrator, clock, logger, m)
	pollSvc := poller.NewService(cfg.Poller, appStore, gw, clock, logger, m)
	reporter := report.New(appStore, cfg.Graph, cfg.Poller.Interval, clock, logger)

	handler := bot.NewHandler(cfg.Bot, orch, reporter, vote.NewGate(cfg.Bot.RequiredVotes), discord, logger, m)
	discord.Attach(ctx, handler)
	if err := discord.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer discord.Close()

	// A shutdown sequence already under way finishes before Run returns.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		orch.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		pollSvc.Run(ctx)
	}()

	router := api.NewRouter(api.NewHandler(appStore, reporter, webpushOptions, cfg.Stats.Token), cfg.Server, logger, m)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping services")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}
	wg.Wait()

	logger.Info("stopped")
	return runErr
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
