package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/pkg/logger"
)

// Recovery перехватывает панику в handler, пишет stack trace в лог
// и отвечает стандартным телом ошибки без деталей.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Ctx(c.Request.Context()).Error().
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Str("path", c.Request.URL.Path).
					Msg("Перехвачена паника в HTTP handler")

				httpx.AbortWithError(c, http.StatusInternalServerError, httpx.CodeInternal, "Внутренняя ошибка сервера")
			}
		}()

		c.Next()
	}
}
