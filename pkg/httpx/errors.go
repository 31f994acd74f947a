// Package httpx — общий каркас HTTP API: формат ошибок, gin engine
// с middleware и probes, запуск сервера с graceful shutdown.
package httpx

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Общие коды ошибок API. Доменные коды объявляют сами сервисы.
const (
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeInternal   = "internal_error"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteError отвечает стандартным телом ошибки.
func WriteError(c *gin.Context, status int, code, message string) {
	c.JSON(status, newErrorResponse(code, message))
}

// AbortWithError прерывает цепочку middleware и отвечает ошибкой.
func AbortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, newErrorResponse(code, message))
}

func newErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
