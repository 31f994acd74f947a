// Package kafka — обёртки над kafka-go для публикации доменных событий
// платежей и полисов. Сообщения несут trace_id и correlation_id в headers.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/travel-insurance/pkg/logger"
)

// Топики доменных событий.
const (
	// TopicPaymentEvents — payment.completed / payment.failed, ключ — payment id.
	TopicPaymentEvents = "payments.events"

	// TopicPolicyEvents — policy.issued / policy.status_changed, ключ — policy id.
	TopicPolicyEvents = "policies.events"

	// TopicDLQ — события, которые не удалось отправить после всех попыток.
	TopicDLQ = "insurance.dlq"
)

// Типы событий.
const (
	EventPaymentCompleted    = "payment.completed"
	EventPaymentFailed       = "payment.failed"
	EventPolicyIssued        = "policy.issued"
	EventPolicyStatusChanged = "policy.status_changed"
)

// Ключи headers сообщений.
const (
	HeaderTraceID       = "trace_id"
	HeaderCorrelationID = "correlation_id"
	HeaderTimestamp     = "timestamp"
	HeaderEventType     = "event_type"
)

// Config содержит настройки подключения к Kafka.
type Config struct {
	Brokers []string
}

// Message — сообщение Kafka с метаданными.
type Message struct {
	Key     []byte
	Value   []byte
	Topic   string
	Headers map[string]string
	Time    time.Time
}

// toKafkaMessage конвертирует Message в kafka.Message.
func (m *Message) toKafkaMessage() kafka.Message {
	headers := make([]kafka.Header, 0, len(m.Headers))
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Topic:   m.Topic,
		Headers: headers,
		Time:    m.Time,
	}
}

// HeadersFromContext собирает trace_id и correlation_id из контекста.
// Используется при записи события в outbox, пока контекст запроса ещё жив.
func HeadersFromContext(ctx context.Context) map[string]string {
	headers := make(map[string]string, 2)
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		headers[HeaderTraceID] = traceID
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		headers[HeaderCorrelationID] = correlationID
	}
	return headers
}
