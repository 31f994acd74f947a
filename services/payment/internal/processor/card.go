package processor

import (
	"context"
	"strings"
	"unicode"

	"example.com/travel-insurance/services/payment/internal/domain"
)

// CardProcessor обрабатывает кредитные и дебетовые карты.
type CardProcessor struct {
	gateway Gateway
}

// NewCardProcessor создаёт стратегию для карточных платежей.
func NewCardProcessor(gw Gateway) *CardProcessor {
	return &CardProcessor{gateway: gw}
}

func (p *CardProcessor) Methods() []domain.PaymentMethod {
	return []domain.PaymentMethod{domain.MethodCreditCard, domain.MethodDebitCard}
}

// Validate: номер карты без пробелов и дефисов — 13..19 цифр, держатель обязателен.
func (p *CardProcessor) Validate(req Request) error {
	number := NormalizeCardNumber(req.CardNumber)
	if number == "" {
		return domain.NewValidationError("card_number", "номер карты обязателен")
	}
	if len(number) < 13 || len(number) > 19 {
		return domain.NewValidationError("card_number", "номер карты должен содержать от 13 до 19 цифр")
	}
	for _, r := range number {
		if !unicode.IsDigit(r) {
			return domain.NewValidationError("card_number", "номер карты может содержать только цифры")
		}
	}
	if strings.TrimSpace(req.CardHolderName) == "" {
		return domain.NewValidationError("card_holder_name", "имя держателя карты обязательно")
	}
	return nil
}

func (p *CardProcessor) Process(ctx context.Context, req Request) Outcome {
	return charge(ctx, p.gateway, req, "card processing error")
}

// NormalizeCardNumber убирает пробелы и дефисы.
func NormalizeCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(number))
}

// MaskCardNumber оставляет последние 4 цифры для логов.
func MaskCardNumber(number string) string {
	n := NormalizeCardNumber(number)
	if len(n) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}
