package domain

import (
	"errors"
	"fmt"
)

// Доменные ошибки Payment Service.
var (
	// ErrValidation — запрос не прошёл проверку. Конкретная причина в ValidationError.
	ErrValidation = errors.New("ошибка валидации")

	// ErrInvalidMethodName — имя способа оплаты не распознано.
	ErrInvalidMethodName = errors.New("неизвестное имя способа оплаты")

	// ErrUnsupportedMethod — способ оплаты известен, но обработчик не зарегистрирован.
	ErrUnsupportedMethod = errors.New("способ оплаты не поддерживается")

	ErrPaymentNotFound = errors.New("платёж не найден")

	ErrInvalidTransition = errors.New("недопустимый переход состояния платежа")

	// ErrDuplicatePayment — платёж с таким idempotency_key уже существует.
	ErrDuplicatePayment = errors.New("платёж с таким ключом идемпотентности уже существует")

	// ErrAlreadyProcessed — терминальная запись уже сохранена другим процессом.
	ErrAlreadyProcessed = errors.New("платёж уже обработан")

	// ErrProcessing — внутренняя ошибка конвейера; детали только в логах.
	ErrProcessing = errors.New("ошибка обработки платежа")
)

// ValidationError описывает нарушенное правило для конкретного поля.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

// Unwrap позволяет проверять errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
