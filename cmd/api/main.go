package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medinet/federation-api/config"
	"github.com/medinet/federation-api/internal/email"
	"github.com/medinet/federation-api/internal/handler"
	auditHandler "github.com/medinet/federation-api/internal/handler/audit"
	emergencyHandler "github.com/medinet/federation-api/internal/handler/emergency"
	federationHandler "github.com/medinet/federation-api/internal/handler/federation"
	hospitalHandler "github.com/medinet/federation-api/internal/handler/hospital"
	policyHandler "github.com/medinet/federation-api/internal/handler/policy"
	recordHandler "github.com/medinet/federation-api/internal/handler/record"
	"github.com/medinet/federation-api/internal/hospital"
	"github.com/medinet/federation-api/internal/middleware"
	"github.com/medinet/federation-api/internal/repository/postgres"
	"github.com/medinet/federation-api/internal/router"
	auditService "github.com/medinet/federation-api/internal/service/audit"
	emergencyService "github.com/medinet/federation-api/internal/service/emergency"
	federationService "github.com/medinet/federation-api/internal/service/federation"
	policyService "github.com/medinet/federation-api/internal/service/policy"
	recordService "github.com/medinet/federation-api/internal/service/record"
	"github.com/medinet/federation-api/pkg/auth"
	redisBroker "github.com/medinet/federation-api/pkg/messaging/redis"
	"github.com/medinet/federation-api/pkg/metrics"
	"github.com/medinet/federation-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisBroker.NewRedisBroker(cfg.ToBrokerConfig(), &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis broker")
	}
	defer broker.Close()

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	indexRepo := postgres.NewIndexRepository(baseRepo)
	policyRepo := postgres.NewPolicyRepository(baseRepo)
	auditRepo := postgres.NewAuditRepository(baseRepo)
	outboxRepo := postgres.NewAuditOutboxRepository(baseRepo)
	hospitalRepo := postgres.NewHospitalRepository(baseRepo)

	m := metrics.NewMetrics("medinet", "federation")

	encryptor := security.NewNoopEncryptor()
	if key := cfg.Audit.EncryptionKey; key != "" {
		encryptor, err = security.NewAESEncryptor([]byte(key))
		if err != nil {
			log.Fatal().Err(err).Msg("invalid audit encryption key")
		}
	}

	var notifier email.Notifier
	if cfg.Email.Enabled {
		notifier = email.NewSMTPNotifier(email.Config{
			Host:            cfg.Email.Host,
			Port:            cfg.Email.Port,
			Username:        cfg.Email.Username,
			Password:        cfg.Email.Password,
			From:            cfg.Email.From,
			ComplianceInbox: cfg.Email.ComplianceInbox,
		}, log.Logger)
	} else {
		notifier = email.NewNoopNotifier(log.Logger)
	}

	// Hospital node clients
	registry := hospital.NewRegistry(hospitalRepo, hospital.RegistryConfig{
		DirectoryCacheTTL: cfg.Federation.DirectoryCacheTTL,
		ClientConfig: hospital.HTTPClientConfig{
			Timeout:    cfg.Federation.HospitalTimeout,
			RetryCount: cfg.Federation.RetryCount,
		},
	}, log.Logger)

	// Services
	auditSvc := auditService.NewService(auditRepo, outboxRepo, broker, encryptor, m, log.Logger, auditService.Config{
		Strict: cfg.Audit.Strict,
	})
	policySvc := policyService.NewService(policyRepo, hospitalRepo, auditSvc, cfg.Federation.PolicyCacheTTL)
	federationSvc := federationService.NewService(indexRepo, policySvc, registry, auditSvc, m, log.Logger, federationService.Config{
		HospitalTimeout: cfg.Federation.HospitalTimeout,
	})
	emergencySvc := emergencyService.NewService(indexRepo, registry, auditSvc, notifier, broker, log.Logger, emergencyService.Config{
		HospitalTimeout: cfg.Federation.HospitalTimeout,
	})
	recordSvc := recordService.NewService(indexRepo, registry, auditSvc, log.Logger)

	// Middleware and handlers
	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret))

	r := router.NewRouter(
		authMiddleware,
		federationHandler.NewHandler(federationSvc),
		emergencyHandler.NewHandler(emergencySvc),
		policyHandler.NewHandler(policySvc),
		auditHandler.NewHandler(auditSvc),
		recordHandler.NewHandler(recordSvc),
		hospitalHandler.NewHandler(registry),
		handler.NewHealthHandler(db),
		router.Config{
			RateLimitEnabled:  cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			MetricsPath:       cfg.Monitoring.MetricsPath,
			PrometheusEnabled: cfg.Monitoring.PrometheusEnabled,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting federation API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
