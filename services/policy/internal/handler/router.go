// Package handler содержит HTTP обработчики Policy Service.
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/pkg/middleware"
	"example.com/travel-insurance/services/policy/internal/service"
)

// ServiceName — имя сервиса в метриках, трейсах и логах.
const ServiceName = "policy-service"

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	Service        service.PolicyService
	RateLimiter    *middleware.RateLimiter // nil — без ограничения
	AllowedOrigins []string
	ReadinessCheck func(ctx context.Context) error
	// RetryAfter — значение заголовка Retry-After при недоступном Payment Service.
	// Обычно совпадает с RetryTimeout circuit breaker.
	RetryAfter time.Duration
	Debug      bool
}

// NewRouter создаёт и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *gin.Engine {
	engine := httpx.NewEngine(httpx.EngineConfig{
		Service: ServiceName,
		Debug:   cfg.Debug,
		Middleware: []gin.HandlerFunc{
			middleware.RequestContext(),
			middleware.Recovery(),
			middleware.CORS(cfg.AllowedOrigins),
			middleware.SecurityHeaders(),
		},
		Readiness: cfg.ReadinessCheck,
	})

	v1 := engine.Group("/api/v1")
	if cfg.RateLimiter != nil {
		v1.Use(cfg.RateLimiter.Handle())
	}

	h := NewPolicyHandler(cfg.Service, cfg.RetryAfter)
	policies := v1.Group("/policies")
	{
		policies.POST("", h.CreatePolicy)
		policies.POST("/quote", h.Quote)
		policies.GET("/by-payment/:paymentId", h.GetPolicyByPayment)
		policies.GET("/:id", h.GetPolicy)
		policies.PUT("/:id/status", h.UpdateStatus)
	}

	return engine
}
