package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/services/payment/internal/domain"
)

// Коды ошибок Payment API.
const (
	CodeInvalidMethod     = "invalid_payment_method"
	CodeUnsupportedMethod = "unsupported_payment_method"
	CodeProcessing        = "payment_processing_error"
)

// handleError преобразует доменную ошибку в HTTP ответ.
// Детали внутренних ошибок уходят только в лог.
func handleError(c *gin.Context, err error) {
	var vErr *domain.ValidationError

	switch {
	case errors.As(err, &vErr):
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, vErr.Field+": "+vErr.Message)
	case errors.Is(err, domain.ErrValidation):
		httpx.WriteError(c, http.StatusBadRequest, httpx.CodeValidation, err.Error())
	case errors.Is(err, domain.ErrInvalidMethodName):
		httpx.WriteError(c, http.StatusBadRequest, CodeInvalidMethod, err.Error())
	case errors.Is(err, domain.ErrUnsupportedMethod):
		httpx.WriteError(c, http.StatusBadRequest, CodeUnsupportedMethod, err.Error())
	case errors.Is(err, domain.ErrPaymentNotFound):
		httpx.WriteError(c, http.StatusNotFound, httpx.CodeNotFound, "Платёж не найден")
	case errors.Is(err, domain.ErrProcessing):
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("Ошибка обработки платежа")
		httpx.WriteError(c, http.StatusInternalServerError, CodeProcessing, "Не удалось обработать платёж, повторите запрос позже")
	default:
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("Внутренняя ошибка")
		httpx.WriteError(c, http.StatusInternalServerError, httpx.CodeInternal, "Внутренняя ошибка сервера")
	}
}
