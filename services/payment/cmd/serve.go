package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"example.com/travel-insurance/pkg/config"
	dbpkg "example.com/travel-insurance/pkg/db"
	"example.com/travel-insurance/pkg/healthcheck"
	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/pkg/metrics"
	"example.com/travel-insurance/pkg/middleware"
	"example.com/travel-insurance/pkg/outbox"
	"example.com/travel-insurance/pkg/tracing"
	"example.com/travel-insurance/services/payment/internal/handler"
	"example.com/travel-insurance/services/payment/internal/idempotency"
	"example.com/travel-insurance/services/payment/internal/processor"
	"example.com/travel-insurance/services/payment/internal/repository"
	"example.com/travel-insurance/services/payment/internal/service"
)

func serveCmd(load configLoader) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запуск HTTP API и фоновых воркеров",
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
		Str("db_driver", cfg.DB.Driver).
		Msg("Запуск Payment Service")

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

	// Redis необязателен: без него работает кэш в памяти, БД остаётся источником истины
	var rdb *redis.Client
	var cache idempotency.Cache = idempotency.NewMemoryCache()
	if cfg.Redis.Enabled {
		rdb, err = dbpkg.ConnectRedisChecked(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis недоступен, используем кэш идемпотентности в памяти")
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					log.Error().Err(err).Msg("Ошибка закрытия Redis")
				}
			}()
			cache = idempotency.NewRedisCache(rdb, cfg.Idempotency.TTL)
			log.Info().Msg("Подключение к Redis установлено")
		}
	}

	readinessCheck := healthcheck.Composite(healthcheck.DB(db), healthcheck.Redis(rdb))

	// === Инициализация бизнес-логики ===

	paymentRepo := repository.NewPaymentRepository(db)
	gateway := processor.NewSimulatedGateway(processor.SimulatedGatewayConfig{
		MinLatency:  cfg.Gateway.MinLatency,
		MaxLatency:  cfg.Gateway.MaxLatency,
		FailureRate: cfg.Gateway.FailureRate,
	})
	paymentService := service.NewPaymentService(
		paymentRepo,
		idempotency.NewTracker(cache, paymentRepo),
		processor.NewDefaultFactory(gateway, cfg.Gateway.PayPalExtraLatency),
		service.Config{
			StuckAfter: cfg.Recovery.StuckAfter,
			BatchSize:  cfg.Recovery.BatchSize,
		},
	)

	// WaitGroup для ожидания завершения фоновых воркеров при shutdown
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

	workersWg.Add(1)
	go func() {
		defer workersWg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Паника в Recovery Worker")
			}
		}()
		service.NewRecoveryWorker(paymentService, cfg.Recovery.Interval).Run(ctx)
	}()

	closeProducer, err := outbox.StartKafkaWorker(ctx, &workersWg, db, cfg.Kafka, outbox.AggregatePayment)
	if err != nil {
		stop()
		workersWg.Wait()
		return fmt.Errorf("ошибка запуска Outbox Worker: %w", err)
	}

	// === HTTP API ===

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled && rdb != nil {
		limiter = middleware.NewRateLimiter(rdb, "payment:ratelimit:", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Service:        paymentService,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ReadinessCheck: readinessCheck,
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

	// Ждём завершения всех фоновых воркеров перед закрытием ресурсов
	workersWg.Wait()

	if err := closeProducer(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Payment Service остановлен")
	return serveErr
}
