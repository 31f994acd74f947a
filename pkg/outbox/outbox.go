// Package outbox реализует Outbox Pattern для событий платежей и полисов.
// Событие пишется в таблицу outbox в той же транзакции, что и изменение
// состояния; Worker читает таблицу и публикует события в Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/travel-insurance/pkg/kafka"
)

// Типы агрегатов.
const (
	AggregatePayment = "payment"
	AggregatePolicy  = "policy"
)

// Record — запись таблицы outbox.
type Record struct {
	ID            string
	AggregateType string // payment / policy
	AggregateID   string
	EventType     string // payment.completed, policy.issued ...
	Topic         string
	MessageKey    string
	Payload       []byte
	Headers       map[string]string
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil — ещё не отправлена
	RetryCount    int
	LastError     *string
}

// NewRecord сериализует payload и переносит trace_id/correlation_id из ctx
// в headers, чтобы событие можно было связать с исходным запросом.
func NewRecord(ctx context.Context, aggregateType, aggregateID, eventType, topic string, payload any) (*Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация события %s: %w", eventType, err)
	}

	headers := kafka.HeadersFromContext(ctx)
	headers[kafka.HeaderEventType] = eventType

	return &Record{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		MessageKey:    aggregateID,
		Payload:       data,
		Headers:       headers,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Message строит сообщение Kafka из записи.
func (r *Record) Message() *kafka.Message {
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	return &kafka.Message{
		Topic:   r.Topic,
		Key:     []byte(r.MessageKey),
		Value:   r.Payload,
		Headers: headers,
	}
}
