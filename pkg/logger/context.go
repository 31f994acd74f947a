package logger

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

const (
	// trace_id — идентификатор запроса, сквозной для обоих сервисов.
	traceIDKey ctxKey = "trace_id"

	// correlation_id — связывает запросы одной бизнес-операции
	// (например, оформление полиса и проверку его платежа).
	correlationIDKey ctxKey = "correlation_id"

	loggerKey ctxKey = "logger"
)

// WithTraceID добавляет trace_id в контекст.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext извлекает trace_id, пустая строка если не задан.
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithCorrelationID добавляет correlation_id в контекст.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext извлекает correlation_id, пустая строка если не задан.
func CorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

// WithLogger кладёт настроенный логгер в контекст.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext возвращает логгер из контекста (или глобальный) с полями
// trace_id, correlation_id и span_id, если они известны.
//
//	func (s *policyService) GetPolicy(ctx context.Context, id string) (*domain.Policy, error) {
//	    log := logger.FromContext(ctx)
//	    log.Debug().Str("policy_id", id).Msg("Запрос полиса")
//	}
func FromContext(ctx context.Context) zerolog.Logger {
	l, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		l = log
	}

	lctx := l.With()
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		lctx = lctx.Str("trace_id", traceID)
	}
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		lctx = lctx.Str("correlation_id", correlationID)
	}
	// span_id связывает запись лога со спаном в Jaeger
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		lctx = lctx.Str("span_id", sc.SpanID().String())
	}

	return lctx.Logger()
}

// Ctx — то же что FromContext, но возвращает указатель (как zerolog.Ctx).
func Ctx(ctx context.Context) *zerolog.Logger {
	l := FromContext(ctx)
	return &l
}

// NewContextWithIDs переносит идентификаторы запроса в новый контекст,
// например в фоновую задачу, которая должна пережить HTTP запрос.
func NewContextWithIDs(ctx context.Context, traceID, correlationID string) context.Context {
	if traceID != "" {
		ctx = WithTraceID(ctx, traceID)
	}
	if correlationID != "" {
		ctx = WithCorrelationID(ctx, correlationID)
	}
	return ctx
}
