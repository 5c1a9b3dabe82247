package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/checkqueue/internal/config"
	"github.com/hamed0406/checkqueue/internal/httpapi"
	"github.com/hamed0406/checkqueue/internal/logging"
	"github.com/hamed0406/checkqueue/internal/metrics"
	"github.com/hamed0406/checkqueue/internal/notify"
	"github.com/hamed0406/checkqueue/internal/probe"
	"github.com/hamed0406/checkqueue/internal/repo"
	"github.com/hamed0406/checkqueue/internal/repo/memory"
	"github.com/hamed0406/checkqueue/internal/repo/postgres"
	"github.com/hamed0406/checkqueue/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the check engine and the HTTP API",
	Long: `Run the check engine and the HTTP API until SIGINT or SIGTERM.

Checks are kept in Postgres when DATABASE_URL is set and in memory otherwise.
On start every check that was queued or in progress is reset to pending.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewCollector(reg)

	sink, closeSinks := buildSinks(cfg, store, logger)
	defer closeSinks()

	bridge := notify.NewBridge(store, notify.NewRegistry(), sink, logger, m)
	engine := scheduler.NewEngine(
		logger,
		store,
		probe.NewResolver(cfg.DNSTimeout),
		probe.NewExecutor(cfg.ConnectionTimeout),
		bridge,
		scheduler.Config{
			Limits: scheduler.Limits{
				CheckingLimit: cfg.CheckingLimit,
				IPLimit:       cfg.IPLimit,
			},
			PullInterval:    cfg.PullInterval,
			ServiceInterval: cfg.ServiceInterval,
		},
		scheduler.WithMetrics(m),
	)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Stop()

	api := httpapi.NewServer(logger, store, engine, httpapi.Options{
		AllowedClients: cfg.AllowedClients,
		TrustedProxies: cfg.TrustedProxies,
		SubmitRPM:      cfg.SubmitRPM,
		SubmitBurst:    cfg.SubmitBurst,
		Metrics:        m.Handler(),
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// SSE handlers end when ctx does
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("api_shutdown_error", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown_complete", zap.Error(err))
	return err
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("store_memory")
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	logger.Info("store_postgres")
	return pg, pg.Close, nil
}

// buildSinks returns nil when nothing beyond observers wants transitions.
func buildSinks(cfg config.Config, alerts repo.AlertStore, logger *zap.Logger) (notify.Sink, func()) {
	var sinks notify.Sinks
	closers := []func(){}

	if slack := notify.NewSlack(cfg.SlackWebhookURL); slack != nil {
		alertLog := notify.LogNotifier{Logger: logger.With(zap.String("component", "alerter"))}
		sinks = append(sinks, notify.NewAlerter(notify.Multi{slack, alertLog}, alerts, notify.AlerterConfig{
			AlertOnRecovery: true,
			Cooldown:        cfg.AlertCooldown,
		}))
		logger.Info("sink_slack_enabled", zap.Duration("cooldown", cfg.AlertCooldown))
	}
	if len(cfg.KafkaBrokers) > 0 {
		k := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, k)
		closers = append(closers, func() {
			if err := k.Close(); err != nil {
				logger.Warn("kafka_close_error", zap.Error(err))
			}
		})
		logger.Info("sink_kafka_enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		return nil, closeAll
	}
	return sinks, closeAll
}
