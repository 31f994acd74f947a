// Package domain содержит бизнес-сущности Payment Service.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus — статус платежа.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// IsTerminal возвращает true для COMPLETED и FAILED: после них платёж не меняется.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// allowedTransitions — допустимые переходы статусов.
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusCompleted, PaymentStatusFailed},
}

// =============================================================================
// Способы оплаты
// =============================================================================

// PaymentMethod — способ оплаты.
type PaymentMethod string

const (
	MethodCreditCard PaymentMethod = "CreditCard"
	MethodDebitCard  PaymentMethod = "DebitCard"
	MethodPayPal     PaymentMethod = "PayPal"
)

// AllMethods — все известные способы оплаты в порядке отображения.
var AllMethods = []PaymentMethod{MethodCreditCard, MethodDebitCard, MethodPayPal}

// IsValid возвращает true для известного способа оплаты.
func (m PaymentMethod) IsValid() bool {
	for _, known := range AllMethods {
		if m == known {
			return true
		}
	}
	return false
}

// IsCard возвращает true для карточных способов оплаты.
func (m PaymentMethod) IsCard() bool {
	return m == MethodCreditCard || m == MethodDebitCard
}

// ParseMethod разбирает имя способа оплаты без учёта регистра.
// Принимаются "CreditCard", "credit_card", "credit-card" и числовые коды 1..3.
func ParseMethod(name string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)

	switch normalized {
	case "creditcard", "1":
		return MethodCreditCard, nil
	case "debitcard", "2":
		return MethodDebitCard, nil
	case "paypal", "3":
		return MethodPayPal, nil
	default:
		return "", ErrInvalidMethodName
	}
}

// =============================================================================
// Валюты и лимиты
// =============================================================================

// SupportedCurrencies — валюты, в которых принимаются платежи.
var SupportedCurrencies = []string{"USD", "EUR", "GEL"}

var (
	// MinAmount и MaxAmount — допустимый диапазон суммы одного платежа.
	MinAmount = decimal.RequireFromString("0.01")
	MaxAmount = decimal.RequireFromString("10000.00")
)

// NormalizeCurrency приводит код к верхнему регистру и проверяет поддержку.
func NormalizeCurrency(code string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(code))
	for _, c := range SupportedCurrencies {
		if upper == c {
			return upper, nil
		}
	}
	return "", NewValidationError("currency", "валюта должна быть одной из USD, EUR, GEL")
}

// ValidateAmount проверяет диапазон и точность суммы.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThan(MinAmount) || amount.GreaterThan(MaxAmount) {
		return NewValidationError("amount", "сумма должна быть от 0.01 до 10000.00")
	}
	if !amount.Equal(amount.Round(2)) {
		return NewValidationError("amount", "сумма не может содержать больше двух знаков после запятой")
	}
	return nil
}

// =============================================================================
// Payment — доменная сущность
// =============================================================================

// Payment — платёж. После перехода в COMPLETED или FAILED не изменяется.
type Payment struct {
	ID             string
	Amount         decimal.Decimal
	Currency       string
	Method         PaymentMethod
	Status         PaymentStatus
	IdempotencyKey *string // nil — запрос без ключа
	TransactionID  *string // только для COMPLETED
	FailureReason  *string // только для FAILED
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ProcessedAt    *time.Time
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (p *Payment) CanTransitionTo(newStatus PaymentStatus) bool {
	for _, status := range allowedTransitions[p.Status] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo выполняет переход в новое состояние.
func (p *Payment) TransitionTo(newStatus PaymentStatus) error {
	if !p.CanTransitionTo(newStatus) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	p.Status = newStatus
	p.UpdatedAt = now
	if newStatus.IsTerminal() {
		p.ProcessedAt = &now
	}
	return nil
}

// Complete завершает платёж с идентификатором транзакции шлюза.
func (p *Payment) Complete(transactionID string) error {
	if err := p.TransitionTo(PaymentStatusCompleted); err != nil {
		return err
	}
	p.TransactionID = &transactionID
	return nil
}

// Fail помечает платёж как неудачный с указанием причины.
func (p *Payment) Fail(reason string) error {
	if err := p.TransitionTo(PaymentStatusFailed); err != nil {
		return err
	}
	p.FailureReason = &reason
	return nil
}

// Key возвращает ключ идемпотентности или пустую строку.
func (p *Payment) Key() string {
	if p.IdempotencyKey == nil {
		return ""
	}
	return *p.IdempotencyKey
}
