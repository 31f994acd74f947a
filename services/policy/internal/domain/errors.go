package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Доменные ошибки Policy Service.
var (
	// ErrValidation — запрос не прошёл проверку. Конкретные причины в ValidationError.
	ErrValidation = errors.New("ошибка валидации")

	// ErrInvalidRange — дата окончания поездки не позже даты начала.
	ErrInvalidRange = errors.New("дата окончания поездки должна быть позже даты начала")

	ErrPolicyNotFound = errors.New("полис не найден")

	// ErrPaymentNotFound — платёжный сервис не знает такого платежа.
	ErrPaymentNotFound = errors.New("платёж не найден")

	// ErrPaymentNotCompleted — платёж существует, но не в статусе Completed.
	ErrPaymentNotCompleted = errors.New("платёж не завершён")

	// ErrInsufficientPayment — оплаченная сумма меньше премии с учётом допуска.
	ErrInsufficientPayment = errors.New("недостаточная сумма платежа")

	// ErrServiceUnavailable — платёжный сервис недоступен или circuit breaker открыт.
	ErrServiceUnavailable = errors.New("платёжный сервис временно недоступен")

	ErrInvalidTransition = errors.New("недопустимый переход статуса полиса")

	// ErrDuplicatePolicy — полис для этого платежа уже существует.
	ErrDuplicatePolicy = errors.New("полис для этого платежа уже существует")
)

// ValidationError собирает все нарушенные правила запроса.
type ValidationError struct {
	Errors []string
}

// NewValidationError создаёт ошибку валидации из списка сообщений.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// Add добавляет сообщение об ошибке.
func (e *ValidationError) Add(message string) {
	e.Errors = append(e.Errors, message)
}

// HasErrors возвращает true, если есть хотя бы одно нарушение.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Errors, "; "))
}

// Unwrap позволяет проверять errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

