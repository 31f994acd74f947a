// Package client содержит HTTP клиент Payment Service.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"example.com/travel-insurance/pkg/logger"
)

// Заголовки, которые несут идентификаторы запроса между сервисами.
const (
	headerTraceID       = "X-Trace-ID"
	headerCorrelationID = "X-Correlation-ID"
)

// maxErrorBody — сколько байт тела ошибки попадает в текст ошибки.
const maxErrorBody = 512

var (
	// ErrUnexpectedStatus — Payment Service ответил не 2xx и не 404.
	ErrUnexpectedStatus = errors.New("неожиданный статус ответа payment-service")

	// ErrInvalidResponse — тело ответа не удалось разобрать.
	ErrInvalidResponse = errors.New("некорректный ответ payment-service")
)

// PaymentStatus — статус платежа с точки зрения Policy Service.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusFailed    PaymentStatus = "Failed"
	PaymentStatusRefunded  PaymentStatus = "Refunded"
)

// ParsePaymentStatus разбирает статус без учёта регистра.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return PaymentStatusPending, nil
	case "completed":
		return PaymentStatusCompleted, nil
	case "failed":
		return PaymentStatusFailed, nil
	case "refunded":
		return PaymentStatusRefunded, nil
	default:
		return "", fmt.Errorf("%w: неизвестный статус платежа %q", ErrInvalidResponse, s)
	}
}

// PaymentInfo — данные платежа, нужные для оформления полиса.
type PaymentInfo struct {
	ID            string
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	TransactionID *string
	FailureReason *string
}

// IsCompleted возвращает true для успешно проведённого платежа.
func (p *PaymentInfo) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}

// paymentResponse — тело GET /api/v1/payments/:id.
type paymentResponse struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	TransactionID *string         `json:"transaction_id"`
	FailureReason *string         `json:"failure_reason"`
}

// PaymentClient — HTTP клиент Payment Service.
type PaymentClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPaymentClient создаёт клиент. Исходящие запросы проходят через otelhttp,
// поэтому traceparent текущего span уходит в Payment Service.
func NewPaymentClient(baseURL string, timeout time.Duration) *PaymentClient {
	return &PaymentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// GetPayment возвращает платёж по ID. Неизвестный платёж — nil, nil.
func (c *PaymentClient) GetPayment(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	endpoint := c.baseURL + "/api/v1/payments/" + url.PathEscape(paymentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set(headerTraceID, traceID)
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set(headerCorrelationID, correlationID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к payment-service: %w", err)
	}
	defer resp.Body.Close()

	logger.Ctx(ctx).Debug().
		Str("payment_id", paymentID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Ответ payment-service")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var body paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	status, err := ParsePaymentStatus(body.Status)
	if err != nil {
		return nil, err
	}

	return &PaymentInfo{
		ID:            body.ID,
		Amount:        body.Amount,
		Currency:      body.Currency,
		Status:        status,
		TransactionID: body.TransactionID,
		FailureReason: body.FailureReason,
	}, nil
}
