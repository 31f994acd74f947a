package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/travel-insurance/services/payment/internal/domain"
)

// PayPalProcessor обрабатывает платежи через PayPal.
// Перед списанием добавляется фиксированная задержка (редирект на сторону PayPal).
type PayPalProcessor struct {
	gateway    Gateway
	extraDelay time.Duration
	now        func() time.Time
}

// NewPayPalProcessor создаёт стратегию PayPal.
func NewPayPalProcessor(gw Gateway, extraDelay time.Duration) *PayPalProcessor {
	return &PayPalProcessor{gateway: gw, extraDelay: extraDelay, now: time.Now}
}

func (p *PayPalProcessor) Methods() []domain.PaymentMethod {
	return []domain.PaymentMethod{domain.MethodPayPal}
}

func (p *PayPalProcessor) Validate(req Request) error {
	email := strings.TrimSpace(req.PayPalEmail)
	if email == "" {
		return domain.NewValidationError("paypal_email", "email PayPal обязателен")
	}
	if !strings.Contains(email, "@") {
		return domain.NewValidationError("paypal_email", "некорректный email PayPal")
	}
	return nil
}

func (p *PayPalProcessor) Process(ctx context.Context, req Request) Outcome {
	if p.extraDelay > 0 {
		time.Sleep(p.extraDelay)
	}

	out := charge(ctx, p.gateway, req, "PayPal processing error")
	if out.Success {
		out.Metadata = map[string]string{
			"paypal_order_id": fmt.Sprintf("PP_%d", p.now().UnixMilli()),
		}
	}
	return out
}
