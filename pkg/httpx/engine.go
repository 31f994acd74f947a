package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/travel-insurance/pkg/metrics"
)

// EngineConfig — параметры базового gin engine сервиса.
type EngineConfig struct {
	Service string
	Debug   bool
	// Middleware выполняются после otelgin и метрик, в порядке перечисления.
	Middleware []gin.HandlerFunc
	// Readiness — проверка зависимостей для /readyz; nil означает «всегда готов».
	Readiness func(ctx context.Context) error
}

// NewEngine создаёт gin engine с трассировкой, метриками и probes.
func NewEngine(cfg EngineConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	// OpenTelemetry spans для Jaeger
	engine.Use(otelgin.Middleware(cfg.Service))
	// requests_total, request_duration_seconds
	engine.Use(metrics.GinMetricsMiddleware(cfg.Service))
	engine.Use(cfg.Middleware...)

	engine.NoRoute(func(c *gin.Context) {
		WriteError(c, http.StatusNotFound, CodeNotFound, "Маршрут не найден")
	})
	engine.NoMethod(func(c *gin.Context) {
		WriteError(c, http.StatusMethodNotAllowed, "method_not_allowed", "Метод не поддерживается")
	})

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.Service})
	})
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	})
	engine.GET("/readyz", func(c *gin.Context) {
		if cfg.Readiness == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := cfg.Readiness(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	return engine
}
