package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"quiz/internal/audit"
	auditkafka "quiz/internal/audit/publisher/kafka"
	auditpg "quiz/internal/audit/store/postgres"
	"quiz/internal/auth/password"
	authservice "quiz/internal/auth/service"
	"quiz/internal/auth/token"
	"quiz/internal/platform/config"
	"quiz/internal/platform/httpserver"
	"quiz/internal/platform/logger"
	"quiz/internal/platform/metrics"
	"quiz/internal/platform/postgres"
	"quiz/internal/platform/redis"
	"quiz/internal/platform/telemetry"
	rlmetrics "quiz/internal/ratelimit/metrics"
	ratelimitmw "quiz/internal/ratelimit/middleware"
	"quiz/internal/ratelimit/ports"
	"quiz/internal/ratelimit/service/requestlimit"
	"quiz/internal/ratelimit/store/window"
	httptransport "quiz/internal/transport/http"
	"quiz/pkg/platform/dispatch"
	"quiz/pkg/platform/httputil"
	authmw "quiz/pkg/platform/middleware/auth"
)

const serviceName = "quiz"

// main wires the process: config, logging, stores, the limiter sweeper, the
// audit worker and the HTTP server, all stopped together on SIGINT/SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "quiz: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:        logger.ParseLevel(cfg.LogLevel),
		RedactFields: logger.ParseRedactFields(cfg.LogRedactFields),
		Format:       logger.Format(cfg.LogFormat),
	})
	slogger := log.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(serviceName, cfg.TracingEnabled, os.Stderr, slogger)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.WithoutCancel(ctx)) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.New(reg)
	collector := metrics.NewCollector(metrics.WithObserver(httpMetrics))
	limitMetrics := rlmetrics.New(reg)

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}

	redisClient, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	store := buildWindowStore(cfg, db, redisClient, slogger, limitMetrics)
	limiter, err := requestlimit.New(store,
		requestlimit.WithConfig(cfg.RateLimit()),
		requestlimit.WithLogger(slogger),
		requestlimit.WithMetrics(limitMetrics),
	)
	if err != nil {
		return err
	}

	codec, err := buildCodec(cfg, slogger)
	if err != nil {
		return err
	}
	authSvc := authservice.New(codec, password.NewVerifier(cfg.AdminPassword),
		authservice.WithLogger(slogger),
		authservice.WithTTL(cfg.TokenTTL),
	)

	var sinks []audit.Sink
	handlerOpts := []httptransport.HandlerOption{
		httptransport.WithRateLimitConfig(limiter.Config()),
		httptransport.WithSecureCookie(cfg.IsProduction()),
		httptransport.WithHealthChecks(healthChecks(db, redisClient)...),
	}
	if db != nil {
		auditStore := auditpg.New(db)
		sinks = append(sinks, auditStore)
		handlerOpts = append(handlerOpts, httptransport.WithAuditHistory(auditStore))
	}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher, err := auditkafka.New(ctx, brokers, cfg.AuditTopic,
			auditkafka.WithPartitions(int32(cfg.AuditTopicPartitions)),
			auditkafka.WithProduceTimeout(cfg.AuditProduceTimeout),
		)
		if err != nil {
			return err
		}
		defer func() { _ = publisher.Close(context.WithoutCancel(ctx)) }()
		sinks = append(sinks, publisher)
	}
	recorder := audit.NewRecorder(log, audit.WithSinks(sinks...))

	dispatcher := dispatch.New(log, collector,
		httputil.NewErrorWriter(log, !cfg.IsProduction()),
		dispatch.WithIdentifier(authmw.NewAuthenticator(codec, slogger)),
	)
	handler := httptransport.NewHandler(authSvc, collector, recorder, slogger, handlerOpts...)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Dispatcher:    dispatcher,
		Guard:         ratelimitmw.New(limiter, cfg.RateLimitDisabled),
		Handler:       handler,
		AdminVerifier: codec,
		Prometheus:    httpMetrics.Handler(),
		Logger:        slogger,
	})
	srv := httpserver.New(cfg.Addr, router, slogger)

	slogger.Info("starting quiz server",
		"addr", cfg.Addr,
		"env", cfg.Env,
		"rate_limit_store", cfg.RateLimitStore,
		"token_format", cfg.TokenFormat,
		"audit_sinks", len(sinks),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(gctx, srv, cfg.ShutdownTimeout, slogger) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error { return recorder.Run(gctx) })
	return g.Wait()
}

// buildWindowStore picks the counter store. Shared stores sit behind a
// circuit breaker that degrades to process-local counting.
func buildWindowStore(cfg config.Server, db *sql.DB, rc *redis.Client, logger *slog.Logger, m *rlmetrics.Metrics) ports.WindowStore {
	var primary ports.WindowStore
	switch cfg.RateLimitStore {
	case config.StoreRedis:
		primary = window.NewRedisStore(rc.Client)
	case config.StorePostgres:
		primary = window.NewPostgresStore(db)
	default:
		return window.NewMemoryStore()
	}
	return window.NewFallbackStore(cfg.RateLimitStore, primary,
		window.WithFallbackLogger(logger),
		window.WithDegradeHook(m.IncrementStoreFallbacks),
	)
}

func buildCodec(cfg config.Server, logger *slog.Logger) (token.Codec, error) {
	if cfg.TokenFormat == config.TokenJWT {
		return token.NewJWTCodec(cfg.TokenSigningKey, cfg.TokenIssuer, cfg.TokenTTL)
	}
	logger.Warn("using unsigned legacy tokens; set TOKEN_FORMAT=jwt to sign them")
	return token.NewLegacyCodec(cfg.TokenTTL), nil
}

func healthChecks(db *sql.DB, rc *redis.Client) []httptransport.HealthCheck {
	var checks []httptransport.HealthCheck
	if db != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
	}
	if rc != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: rc.Health})
	}
	return checks
}
