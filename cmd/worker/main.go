// Package main provides the worker application entry point.
// One binary serves both roles of the dispatch pipeline: MODE=filler moves
// queued job rows onto the broker, MODE=consumer turns deliveries into
// stored images and terminal row states.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/blobstore/supabase"
	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/broker/rabbitmq"
	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/generator/sdhttp"
	genstub "github.com/fairyhunter13/imagegen-dispatch/internal/adapter/generator/stub"
	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/moderation/openai"
	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/observability"
	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/imagegen-dispatch/internal/app"
	"github.com/fairyhunter13/imagegen-dispatch/internal/config"
	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
	"github.com/fairyhunter13/imagegen-dispatch/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup logging
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register Prometheus metrics and expose them with a liveness endpoint so
	// the scheduler can probe both worker roles the same way.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()

	// Enable tracing for worker-side spans when an OTLP endpoint is
	// configured.
	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Database connection
	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN())
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	slog.Info("starting worker",
		slog.String("mode", cfg.Mode),
		slog.String("node_id", cfg.NodeID),
		slog.String("gpu", cfg.NodeGPU),
		slog.String("queue", cfg.RabbitMQQueue),
		slog.Duration("discard_threshold", cfg.DiscardThreshold()))

	var runErr error
	if cfg.IsFiller() {
		runErr = runFiller(ctx, cfg, pool)
	} else {
		runErr = runConsumer(ctx, cfg, pool)
	}
	if runErr != nil {
		slog.Error("worker stopped with error", slog.Any("error", runErr))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

// runFiller serves the filler role: claim queued rows and publish them,
// rebuilding the broker session whenever the connection drops.
func runFiller(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) error {
	jobs := postgres.NewJobRepo(pool)
	queue, err := rabbitmq.Dial(cfg.BrokerURL(), cfg.RabbitMQVHost, cfg.RabbitMQQueue)
	if err != nil {
		return fmt.Errorf("broker dial: %w", err)
	}
	return app.ServeBroker(ctx, cfg.ReconnectDelay, func(ctx context.Context) error {
		if queue == nil {
			var derr error
			if queue, derr = redial(cfg); derr != nil {
				return derr
			}
		}
		defer func() { _ = queue.Close(); queue = nil }()
		filler := usecase.NewFiller(jobs, queue, cfg.NodeID,
			cfg.RabbitMQQueueSize, cfg.DiscardThreshold(),
			cfg.FillPollPeriod, cfg.PublishPause)
		return filler.Run(ctx)
	})
}

// runConsumer serves the consumer role: warm the plugin cache, then process
// deliveries one at a time until shutdown.
func runConsumer(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) error {
	blobs := supabase.New(cfg.SupabaseURL, cfg.SupabaseKey)
	if err := app.WarmPluginCache(ctx, postgres.NewPluginRepo(pool), blobs, cfg.PluginCacheDir); err != nil {
		return fmt.Errorf("plugin cache: %w", err)
	}

	var generator domain.Generator
	if cfg.GeneratorURL == "stub" {
		slog.Warn("using stub generator, no GPU backend attached")
		generator = genstub.New()
	} else {
		generator = sdhttp.New(cfg.GeneratorURL)
	}

	consumer := usecase.Consumer{
		Jobs:      postgres.NewJobRepo(pool),
		Images:    postgres.NewImageRepo(pool),
		Teams:     postgres.NewTeamRepo(pool),
		Generator: generator,
		Blobs:     blobs,
		Moderator: openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL),
		NodeID:    cfg.NodeID,
		NodeGPU:   cfg.NodeGPU,
	}

	queue, err := rabbitmq.Dial(cfg.BrokerURL(), cfg.RabbitMQVHost, cfg.RabbitMQQueue)
	if err != nil {
		return fmt.Errorf("broker dial: %w", err)
	}
	return app.ServeBroker(ctx, cfg.ReconnectDelay, func(ctx context.Context) error {
		if queue == nil {
			var derr error
			if queue, derr = redial(cfg); derr != nil {
				return derr
			}
		}
		defer func() { _ = queue.Close(); queue = nil }()
		c := consumer
		c.Queue = queue
		return c.Run(ctx)
	})
}

// redial reopens a broker session after a connection loss. Unlike the
// startup dial, failures here fold into the reconnect loop: a broker that is
// unreachable during a rebuild looks no different from one that restarts a
// moment later.
func redial(cfg config.Config) (*rabbitmq.Queue, error) {
	queue, err := rabbitmq.Dial(cfg.BrokerURL(), cfg.RabbitMQVHost, cfg.RabbitMQQueue)
	if err != nil {
		return nil, fmt.Errorf("broker dial: %v: %w", err, domain.ErrConnectionLost)
	}
	return queue, nil
}
