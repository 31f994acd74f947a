package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"example.com/travel-insurance/pkg/circuitbreaker"
	"example.com/travel-insurance/pkg/config"
	dbpkg "example.com/travel-insurance/pkg/db"
	"example.com/travel-insurance/pkg/healthcheck"
	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/pkg/metrics"
	"example.com/travel-insurance/pkg/middleware"
	"example.com/travel-insurance/pkg/outbox"
	"example.com/travel-insurance/pkg/tracing"
	"example.com/travel-insurance/services/policy/internal/client"
	"example.com/travel-insurance/services/policy/internal/handler"
	"example.com/travel-insurance/services/policy/internal/repository"
	"example.com/travel-insurance/services/policy/internal/service"
	"example.com/travel-insurance/services/policy/internal/validation"
)

func serveCmd(load configLoader) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запуск HTTP API и outbox воркера",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "создать таблицы при старте")

	return cmd
}

func runServe(parent context.Context, cfg *config.Config, autoMigrate bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.With().Str("service", serviceName).Logger()
	log.Info().
		Str("env", cfg.App.Env).
		Int("port", cfg.HTTP.Port).
		Str("payment_service", cfg.PaymentClient.BaseURL).
		Msg("Запуск Policy Service")

	// Ошибки конфигурации расчёта ловим до подключения к БД
	calculator, err := newCalculator(cfg.Premium.RegionsFile)
	if err != nil {
		return fmt.Errorf("ошибка загрузки таблицы регионов: %w", err)
	}
	tolerance, err := decimal.NewFromString(cfg.Premium.Tolerance)
	if err != nil || tolerance.IsNegative() {
		return fmt.Errorf("некорректный PREMIUM_TOLERANCE %q", cfg.Premium.Tolerance)
	}

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    serviceName,
		Environment:    cfg.App.Env,
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Подключение к зависимостям ===

	db, err := dbpkg.Connect(cfg.DB, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	defer func() {
		if err := dbpkg.Close(db); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия БД")
		}
	}()
	log.Info().Msg("Подключение к БД установлено")

	if autoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return fmt.Errorf("ошибка миграции: %w", err)
		}
	}

	// Redis нужен только rate limiter: без него API работает без ограничения
	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.RateLimit.Enabled {
		rdb, err = dbpkg.ConnectRedisChecked(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis недоступен, rate limiting отключён")
			rdb = nil
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					log.Error().Err(err).Msg("Ошибка закрытия Redis")
				}
			}()
			log.Info().Msg("Подключение к Redis установлено")
		}
	}

	readinessCheck := healthcheck.Composite(healthcheck.DB(db), healthcheck.Redis(rdb))

	// === Инициализация бизнес-логики ===

	breaker := circuitbreaker.New("payment-service", circuitbreaker.Settings{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		RetryTimeout:     cfg.CircuitBreaker.RetryTimeout,
		CallTimeout:      cfg.CircuitBreaker.CallTimeout,
	})

	policyService := service.NewPolicyService(
		repository.NewPolicyRepository(db),
		client.NewPaymentClient(cfg.PaymentClient.BaseURL, cfg.PaymentClient.Timeout),
		breaker,
		calculator,
		validation.New(),
		service.Config{
			Tolerance: tolerance,
			QuoteTTL:  cfg.Premium.QuoteTTL,
			Now:       time.Now,
		},
	)

	var workersWg sync.WaitGroup

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr(), serviceName, metrics.WithReadinessCheck(readinessCheck))
		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// === Фоновые воркеры ===

	closeProducer, err := outbox.StartKafkaWorker(ctx, &workersWg, db, cfg.Kafka, outbox.AggregatePolicy)
	if err != nil {
		stop()
		workersWg.Wait()
		return fmt.Errorf("ошибка запуска Outbox Worker: %w", err)
	}

	// === HTTP API ===

	var limiter *middleware.RateLimiter
	if rdb != nil {
		limiter = middleware.NewRateLimiter(rdb, "policy:ratelimit:", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Service:        policyService,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ReadinessCheck: readinessCheck,
		RetryAfter:     cfg.CircuitBreaker.RetryTimeout,
		Debug:          cfg.IsDevelopment(),
	})

	serveErr := httpx.Serve(ctx, cfg.HTTP, router)
	if serveErr != nil {
		log.Error().Err(serveErr).Msg("Ошибка HTTP сервера")
	}

	log.Info().Msg("Останавливаем фоновые воркеры...")
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
	}

	workersWg.Wait()

	if err := closeProducer(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Policy Service остановлен")
	return serveErr
}
