package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medinet/federation-api/config"
	"github.com/medinet/federation-api/internal/repository/postgres"
	"github.com/medinet/federation-api/pkg/logger"
	redisBroker "github.com/medinet/federation-api/pkg/messaging/redis"
	"github.com/medinet/federation-api/pkg/metrics"
	"github.com/medinet/federation-api/pkg/worker"
)

// workerEnv holds env-only overrides for the retry worker; everything else
// comes from the shared config file.
type workerEnv struct {
	HealthPort      int           `envconfig:"WORKER_HEALTH_PORT" default:"8081"`
	CleanupInterval time.Duration `envconfig:"WORKER_CLEANUP_INTERVAL" default:"1h"`
	OutboxRetention time.Duration `envconfig:"WORKER_OUTBOX_RETENTION" default:"168h"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var env workerEnv
	if err := envconfig.Process("", &env); err != nil {
		log.Fatal().Err(err).Msg("failed to process worker env")
	}

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	lg := &logger.Logger{ZL: log.Logger}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		lg.ZL.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisBroker.NewRedisBroker(cfg.ToBrokerConfig(), &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create redis broker")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewAuditOutboxRepository(baseRepo)
	auditRepo := postgres.NewAuditRepository(baseRepo)

	processor := worker.NewAuditOutboxProcessor(
		outboxRepo,
		auditRepo,
		broker,
		cfg.ToOutboxConfig(),
		lg,
		metrics.NewMetrics("medinet", "audit_worker"),
	)

	setupHealthCheck(lg, env.HealthPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		lg.ZL.Info().Msg("Shutting down...")
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(env.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := processor.Cleanup(ctx, env.OutboxRetention); err != nil {
					lg.Error(err, "Failed to clean up audit outbox")
				} else if n > 0 {
					lg.Info("Cleaned up audit outbox", "deleted", n)
				}
			}
		}
	}()

	processor.Start(ctx)
}

func setupHealthCheck(lg *logger.Logger, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		addr := ":" + strconv.Itoa(port)
		if err := http.ListenAndServe(addr, mux); err != nil {
			lg.ZL.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
}
