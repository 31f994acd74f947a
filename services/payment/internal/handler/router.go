// Package handler содержит HTTP обработчики Payment Service.
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/pkg/middleware"
	"example.com/travel-insurance/services/payment/internal/service"
)

// ServiceName — имя сервиса в метриках, трейсах и логах.
const ServiceName = "payment-service"

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	Service        service.PaymentService
	RateLimiter    *middleware.RateLimiter // nil — без ограничения
	AllowedOrigins []string
	ReadinessCheck func(ctx context.Context) error // опциональная проверка для /readyz
	Debug          bool
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

	h := NewPaymentHandler(cfg.Service)
	payments := v1.Group("/payments")
	{
		payments.POST("", h.ProcessPayment)
		payments.GET("/methods", h.ListMethods)
		payments.GET("/:id", h.GetPayment)
	}

	return engine
}
