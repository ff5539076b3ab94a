package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sanctum/internal/accesslog"
	accesshandler "sanctum/internal/accesslog/handler"
	accessmetrics "sanctum/internal/accesslog/metrics"
	consenthandler "sanctum/internal/consent/handler"
	consentmetrics "sanctum/internal/consent/metrics"
	consentservice "sanctum/internal/consent/service"
	consentstore "sanctum/internal/consent/store"
	"sanctum/internal/participant"
	"sanctum/internal/platform/config"
	"sanctum/internal/platform/database"
	"sanctum/internal/platform/health"
	"sanctum/internal/platform/kafka/producer"
	"sanctum/internal/platform/logger"
	"sanctum/internal/platform/redis"
	policyhandler "sanctum/internal/policy/handler"
	policyservice "sanctum/internal/policy/service"
	policystore "sanctum/internal/policy/store"
	"sanctum/internal/token"
	httptransport "sanctum/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	log.Info("initializing sanctum",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	healthHandler := health.New(cfg.Environment)

	// Storage. Without a database URL everything runs in memory, which is
	// enough for local development and the contract tests.
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	var (
		consents  consentservice.Store
		policies  policystore.Store
		entries   accesslog.Store
		directory consentservice.Directory
	)
	if pool != nil {
		consents = consentstore.NewPostgres(pool.DB())
		policies = policystore.NewPostgres(pool.DB())
		entries = accesslog.NewPostgres(pool.DB())
		directory = participant.NewPostgres(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
		defer pool.Close() //nolint:errcheck
	} else {
		log.Warn("no database configured, using in-memory stores")
		consents = consentstore.New()
		policies = policystore.New()
		entries = accesslog.NewInMemoryStore()
		directory = participant.NewInMemory()
	}

	// Redis read-through cache for the hot policy lookup.
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		policies = policystore.NewCached(policies, redisClient.Client, log, cfg.PolicyCacheTTL)
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
		defer redisClient.Close() //nolint:errcheck
	}

	// Domain services.
	policySvc := policyservice.NewService(policies, consents, directory, log)
	consentSvc := consentservice.NewService(consents, policySvc, directory, log,
		consentservice.WithMetrics(consentmetrics.New()),
	)

	accessOpts := []accesslog.Option{
		accesslog.WithMetrics(accessmetrics.New()),
	}
	var kafkaProducer *producer.Producer
	if cfg.KafkaBrokers != "" {
		kafkaProducer, err = producer.New(producer.Config{
			Brokers:         cfg.KafkaBrokers,
			Retries:         3,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			log.Error("kafka init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaProducer.Close()
		accessOpts = append(accessOpts, accesslog.WithSink(accesslog.NewKafkaSink(kafkaProducer, cfg.KafkaTopic)))
	}
	accessLogger := accesslog.NewLogger(entries, log, accessOpts...)

	tokens := token.NewService(cfg.JWTSigningKey, "sanctum", time.Hour)

	router := httptransport.NewRouter(httptransport.Deps{
		Consent:   consenthandler.New(consentSvc, log),
		Policy:    policyhandler.New(policySvc, directory, log),
		AccessLog: accesshandler.New(accessLogger, directory, log),
		Health:    healthHandler,
		Auth:      tokens,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if redisClient != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					redisClient.RecordPoolStats()
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
