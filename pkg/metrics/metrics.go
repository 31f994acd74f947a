// Package metrics — Prometheus метрики обоих сервисов и HTTP server для /metrics.
//
// Counter — сколько всего произошло, Histogram — как быстро, Gauge — что сейчас.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/travel-insurance/pkg/logger"
)

// =============================================================================
// HTTP метрики
// =============================================================================

var (
	// RequestsTotal — rate(requests_total{service="policy-service"}[5m]) даёт RPS.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Общее количество запросов по сервису, маршруту и статусу",
		},
		[]string{"service", "method", "status"},
	)

	// RequestDuration — histogram_quantile(0.95, ...) даёт p95.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Время выполнения запроса в секундах",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method"},
	)
)

// =============================================================================
// Доменные метрики
// =============================================================================

var (
	// PaymentsTotal — платежи по способу оплаты и итоговому статусу.
	// status: completed, failed, replayed.
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Количество обработанных платежей по способу оплаты и результату",
		},
		[]string{"method", "status"},
	)

	// GatewayDuration — время ответа платёжного шлюза.
	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_duration_seconds",
			Help:    "Время ответа платёжного шлюза в секундах",
			Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 2},
		},
		[]string{"method"},
	)

	// PoliciesTotal — результаты оформления полисов.
	// outcome: issued, existing, rejected, unavailable.
	PoliciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policies_total",
			Help: "Результаты оформления полисов",
		},
		[]string{"outcome"},
	)

	// CircuitBreakerState — 0 closed, 1 open, 2 half-open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Состояние Circuit Breaker: 0 closed, 1 open, 2 half-open",
		},
		[]string{"breaker"},
	)

	// OutboxPublished — события outbox, отправленные в Kafka или в DLQ.
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "События outbox по результату отправки",
		},
		[]string{"aggregate", "result"},
	)
)

// RecordRequest записывает метрики запроса.
func RecordRequest(service, method, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(service, method, status).Inc()
	RequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordPayment учитывает платёж с итоговым статусом.
func RecordPayment(method, status string) {
	PaymentsTotal.WithLabelValues(method, status).Inc()
}

// ObserveGateway записывает время вызова шлюза.
func ObserveGateway(method string, d time.Duration) {
	GatewayDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordPolicy учитывает результат оформления полиса.
func RecordPolicy(outcome string) {
	PoliciesTotal.WithLabelValues(outcome).Inc()
}

// SetCircuitBreakerState выставляет текущее состояние breaker.
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordOutbox учитывает результат отправки события outbox.
func RecordOutbox(aggregate, result string) {
	OutboxPublished.WithLabelValues(aggregate, result).Inc()
}

// =============================================================================
// HTTP Server для /metrics endpoint
// =============================================================================

// ReadinessChecker возвращает nil, если сервис готов принимать трафик.
type ReadinessChecker func(ctx context.Context) error

// Server — HTTP сервер для экспорта метрик Prometheus и probes.
type Server struct {
	httpServer     *http.Server
	service        string
	readinessCheck ReadinessChecker
}

// Option — функциональная опция для настройки Server.
type Option func(*Server)

// WithReadinessCheck добавляет проверку готовности для /readyz.
func WithReadinessCheck(checker ReadinessChecker) Option {
	return func(s *Server) {
		s.readinessCheck = checker
	}
}

// NewServer создаёт metrics server на addr (например ":9090").
func NewServer(addr, service string, opts ...Option) *Server {
	s := &Server{service: service}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "alive")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ready(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not_ready")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Ready выполняет проверку готовности с таймаутом 5 секунд.
// Детали ошибки пишутся только в лог.
func (s *Server) Ready(ctx context.Context) error {
	if s.readinessCheck == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.readinessCheck(ctx); err != nil {
		logger.Warn().Err(err).Str("service", s.service).Msg("Readiness check не пройден")
		return err
	}
	return nil
}

// Handler возвращает mux сервера (используется в тестах).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start запускает HTTP сервер. Блокирующий вызов — запускать в горутине.
func (s *Server) Start() error {
	logger.Info().Str("service", s.service).Str("addr", s.httpServer.Addr).Msg("Запуск Metrics Server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}

// =============================================================================
// Gin Middleware для HTTP метрик
// =============================================================================

// GinMetricsMiddleware записывает requests_total и request_duration_seconds.
// Маршрут берётся из шаблона (c.FullPath), чтобы id не раздували кардинальность.
func GinMetricsMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := "success"
		if c.Writer.Status() >= 400 {
			status = "error"
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		RecordRequest(service, c.Request.Method+" "+route, status, time.Since(start))
	}
}
