package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/services/policy/internal/domain"
)

// Коды ошибок Policy API.
const (
	CodePaymentNotFound     = "payment_not_found"
	CodePaymentNotCompleted = "payment_not_completed"
	CodeInsufficientPayment = "insufficient_payment"
	CodeServiceUnavailable  = "payment_service_unavailable"
	CodeInvalidTransition   = "invalid_transition"
	CodeDuplicatePolicy     = "duplicate_policy"
)

// handleError преобразует доменную ошибку в HTTP ответ.
func (h *PolicyHandler) handleError(c *gin.Context, err error) {
	var vErr *domain.ValidationError

	switch {
	case errors.As(err, &vErr):
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, strings.Join(vErr.Errors, "; "))
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRange):
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, err.Error())
	case errors.Is(err, domain.ErrPolicyNotFound):
		httpx.WriteError(c, http.StatusNotFound, httpx.CodeNotFound, "Полис не найден")
	case errors.Is(err, domain.ErrPaymentNotFound):
		httpx.WriteError(c, http.StatusUnprocessableEntity, CodePaymentNotFound, err.Error())
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		httpx.WriteError(c, http.StatusUnprocessableEntity, CodePaymentNotCompleted, err.Error())
	case errors.Is(err, domain.ErrInsufficientPayment):
		httpx.WriteError(c, http.StatusUnprocessableEntity, CodeInsufficientPayment, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		httpx.WriteError(c, http.StatusConflict, CodeInvalidTransition, err.Error())
	case errors.Is(err, domain.ErrDuplicatePolicy):
		httpx.WriteError(c, http.StatusConflict, CodeDuplicatePolicy, err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable):
		// Причина (breaker, таймаут, сеть) остаётся в логах
		logger.Ctx(c.Request.Context()).Warn().Err(err).Msg("Payment Service недоступен")
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(h.retryAfter.Seconds()))))
		httpx.WriteError(c, http.StatusServiceUnavailable, CodeServiceUnavailable,
			"Платёжный сервис временно недоступен, повторите запрос позже")
	default:
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("Внутренняя ошибка")
		httpx.WriteError(c, http.StatusInternalServerError, httpx.CodeInternal, "Внутренняя ошибка сервера")
	}
}
