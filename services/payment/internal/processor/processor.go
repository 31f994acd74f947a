// Package processor содержит стратегии обработки платежа для каждого способа
// оплаты, фабрику выбора стратегии и симулятор платёжного шлюза.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/pkg/metrics"
	"example.com/travel-insurance/pkg/tracing"
	"example.com/travel-insurance/services/payment/internal/domain"
)

// Request — данные платежа, передаваемые стратегии.
type Request struct {
	PaymentID      string
	Amount         decimal.Decimal
	Currency       string
	Method         domain.PaymentMethod
	CardNumber     string
	CardHolderName string
	PayPalEmail    string
}

// Outcome — результат обработки. Ровно одно из TransactionID / FailureReason заполнено.
type Outcome struct {
	Success       bool
	TransactionID string
	FailureReason string
	Metadata      map[string]string
}

// Processor — стратегия обработки платежа.
//
// Process никогда не возвращает ошибку и не паникует наружу: любой сбой
// шлюза превращается в неуспешный Outcome с причиной.
type Processor interface {
	// Methods возвращает способы оплаты, которые обслуживает стратегия.
	Methods() []domain.PaymentMethod

	// Validate проверяет поля, специфичные для способа оплаты.
	Validate(req Request) error

	Process(ctx context.Context, req Request) Outcome
}

// failed формирует неуспешный Outcome.
func failed(reason string) Outcome {
	return Outcome{Success: false, FailureReason: reason}
}

// charge вызывает шлюз и переводит результат (включая панику) в Outcome.
// errPrefix попадает в причину отказа, например "card processing error".
func charge(ctx context.Context, gw Gateway, req Request, errPrefix string) (out Outcome) {
	log := logger.Ctx(ctx)

	ctx, span := tracing.StartSpan(ctx, "payment-processor", "gateway.charge")
	span.SetAttributes(
		attribute.String("payment.id", req.PaymentID),
		attribute.String("payment.method", string(req.Method)),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("payment_id", req.PaymentID).
				Msg("Паника при вызове платёжного шлюза")
			out = failed(fmt.Sprintf("%s: %v", errPrefix, r))
		}

		metrics.ObserveGateway(string(req.Method), time.Since(start))
		if !out.Success {
			span.SetStatus(codes.Error, out.FailureReason)
		}
		span.End()
	}()

	txID, err := gw.Charge(ctx, Charge{
		Reference: req.PaymentID,
		Method:    req.Method,
		Amount:    req.Amount,
		Currency:  req.Currency,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("payment_id", req.PaymentID).
			Str("method", string(req.Method)).
			Msg("Платёжный шлюз отклонил платёж")
		return failed(fmt.Sprintf("%s: %s", errPrefix, err.Error()))
	}

	return Outcome{Success: true, TransactionID: txID}
}
