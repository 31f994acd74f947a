// Package service содержит бизнес-логику Payment Service.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/travel-insurance/pkg/kafka"
	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/pkg/metrics"
	"example.com/travel-insurance/pkg/outbox"
	"example.com/travel-insurance/services/payment/internal/domain"
	"example.com/travel-insurance/services/payment/internal/idempotency"
	"example.com/travel-insurance/services/payment/internal/processor"
	"example.com/travel-insurance/services/payment/internal/repository"
)

// stuckReason — причина отказа для платежей, зависших в PENDING.
const stuckReason = "payment processing timed out"

// =============================================================================
// Интерфейс сервиса
// =============================================================================

// ProcessPaymentRequest — запрос на обработку платежа.
type ProcessPaymentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Method         string // имя способа оплаты, без учёта регистра
	IdempotencyKey string // пусто — запрос без идемпотентности

	CardNumber     string
	CardHolderName string
	PayPalEmail    string
}

// ProcessPaymentResult — результат обработки платежа.
type ProcessPaymentResult struct {
	Payment       *domain.Payment
	AlreadyExists bool // true — возвращён ранее сохранённый платёж
}

// PaymentService — интерфейс бизнес-логики платежей.
type PaymentService interface {
	// ProcessPayment проводит платёж через стратегию способа оплаты.
	// Повтор с тем же ключом возвращает сохранённый платёж без повторного списания.
	ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*ProcessPaymentResult, error)

	// GetPayment возвращает платёж по ID.
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)

	// SupportedMethods возвращает зарегистрированные способы оплаты.
	SupportedMethods() []domain.PaymentMethod

	// RecoverStuckPayments переводит зависшие PENDING платежи в FAILED.
	RecoverStuckPayments(ctx context.Context) (int, error)
}

// Config — параметры восстановления зависших платежей.
type Config struct {
	StuckAfter time.Duration
	BatchSize  int
}

// =============================================================================
// Реализация сервиса
// =============================================================================

// paymentService — реализация PaymentService.
type paymentService struct {
	repo    repository.PaymentRepository
	tracker *idempotency.Tracker
	factory *processor.Factory
	cfg     Config
}

// NewPaymentService создаёт новый сервис платежей.
func NewPaymentService(
	repo repository.PaymentRepository,
	tracker *idempotency.Tracker,
	factory *processor.Factory,
	cfg Config,
) PaymentService {
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &paymentService{
		repo:    repo,
		tracker: tracker,
		factory: factory,
		cfg:     cfg,
	}
}

// ProcessPayment обрабатывает платёж с идемпотентностью.
func (s *paymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*ProcessPaymentResult, error) {
	log := logger.Ctx(ctx)

	// 1. Валидация: до неё ничего не пишется в БД
	proc, procReq, err := s.validate(req)
	if err != nil {
		log.Warn().Err(err).Str("method", req.Method).Msg("Невалидный запрос на платёж")
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)

	// 2. Быстрая проверка ключа
	if key != "" {
		existing, err := s.tracker.Lookup(ctx, key)
		if err != nil {
			// UNIQUE индекс всё равно не даст создать дубликат
			log.Warn().Err(err).Str("idempotency_key", key).Msg("Ошибка проверки идемпотентности")
		}
		if existing != nil {
			log.Info().
				Str("idempotency_key", key).
				Str("payment_id", existing.ID).
				Msg("Платёж уже существует (идемпотентность)")
			metrics.RecordPayment(string(existing.Method), "replayed")
			return &ProcessPaymentResult{Payment: existing, AlreadyExists: true}, nil
		}
	}

	// 3. Создаём платёж в статусе PENDING
	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:        uuid.New().String(),
		Amount:    procReq.Amount,
		Currency:  procReq.Currency,
		Method:    procReq.Method,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if key != "" {
		payment.IdempotencyKey = &key
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrDuplicatePayment) {
			return s.existingByKey(ctx, key)
		}
		log.Error().Err(err).Str("idempotency_key", key).Msg("Ошибка создания платежа")
		return nil, fmt.Errorf("%w: создание платежа: %v", domain.ErrProcessing, err)
	}

	log.Info().
		Str("payment_id", payment.ID).
		Str("method", string(payment.Method)).
		Str("amount", payment.Amount.StringFixed(2)).
		Str("currency", payment.Currency).
		Msg("Платёж создан, обрабатываем")

	// С этого момента деньги могут быть списаны: отключение клиента
	// не должно оставить строку в PENDING до прихода recovery
	ctx = context.WithoutCancel(ctx)

	// 4. Стратегия способа оплаты
	procReq.PaymentID = payment.ID
	outcome := proc.Process(ctx, procReq)

	if outcome.Success {
		err = payment.Complete(outcome.TransactionID)
	} else {
		err = payment.Fail(outcome.FailureReason)
	}
	if err != nil {
		log.Error().Err(err).Str("payment_id", payment.ID).Msg("Ошибка перехода в терминальный статус")
		return nil, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}

	if err := s.saveTerminal(ctx, payment, outcome.Metadata); err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			// Строку уже закрыл другой процесс (например, recovery)
			stored, getErr := s.repo.GetByID(ctx, payment.ID)
			if getErr == nil {
				return &ProcessPaymentResult{Payment: stored, AlreadyExists: true}, nil
			}
			err = getErr
		}
		log.Error().Err(err).Str("payment_id", payment.ID).Msg("Ошибка сохранения результата платежа")
		return nil, fmt.Errorf("%w: сохранение результата: %v", domain.ErrProcessing, err)
	}

	// 5. Ключ помечается только после терминальной записи
	if err := s.tracker.MarkProcessed(ctx, key, payment.ID); err != nil {
		log.Warn().Err(err).Str("idempotency_key", key).Msg("Ошибка обновления ключа идемпотентности")
	}

	metrics.RecordPayment(string(payment.Method), string(payment.Status))

	log.Info().
		Str("payment_id", payment.ID).
		Str("status", string(payment.Status)).
		Bool("success", outcome.Success).
		Msg("Платёж обработан")

	return &ProcessPaymentResult{Payment: payment}, nil
}

// GetPayment возвращает платёж по ID.
func (s *paymentService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.repo.GetByID(ctx, paymentID)
}

func (s *paymentService) SupportedMethods() []domain.PaymentMethod {
	return s.factory.SupportedMethods()
}

// RecoverStuckPayments помечает зависшие PENDING платежи как FAILED.
// Платёж считается зависшим, если он в PENDING дольше cfg.StuckAfter.
func (s *paymentService) RecoverStuckPayments(ctx context.Context) (int, error) {
	log := logger.Ctx(ctx)

	stuckPayments, err := s.repo.GetStuckPending(ctx, s.cfg.StuckAfter, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения зависших платежей: %w", err)
	}

	if len(stuckPayments) == 0 {
		return 0, nil
	}

	recovered := 0
	for _, payment := range stuckPayments {
		if err := payment.Fail(stuckReason); err != nil {
			log.Warn().Err(err).Str("payment_id", payment.ID).Msg("Не удалось пометить платёж как FAILED")
			continue
		}

		if err := s.saveTerminal(ctx, payment, nil); err != nil {
			// ErrAlreadyProcessed — обработка успела завершиться сама
			log.Warn().Err(err).Str("payment_id", payment.ID).Msg("Ошибка обновления зависшего платежа")
			continue
		}

		if err := s.tracker.MarkProcessed(ctx, payment.Key(), payment.ID); err != nil {
			log.Warn().Err(err).Str("payment_id", payment.ID).Msg("Ошибка обновления ключа идемпотентности")
		}

		metrics.RecordPayment(string(payment.Method), string(payment.Status))
		log.Info().
			Str("payment_id", payment.ID).
			Str("idempotency_key", payment.Key()).
			Msg("Зависший платёж помечен как FAILED")
		recovered++
	}

	if recovered > 0 {
		log.Info().Int("count", recovered).Msg("Восстановлено зависших платежей")
	}

	return recovered, nil
}

// =============================================================================
// Вспомогательные методы
// =============================================================================

// validate проверяет сумму, валюту и способ оплаты и выбирает стратегию.
func (s *paymentService) validate(req ProcessPaymentRequest) (processor.Processor, processor.Request, error) {
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return nil, processor.Request{}, err
	}

	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, processor.Request{}, err
	}

	method, err := domain.ParseMethod(req.Method)
	if err != nil {
		return nil, processor.Request{}, fmt.Errorf("%w: %q", err, req.Method)
	}

	proc, err := s.factory.Create(method)
	if err != nil {
		return nil, processor.Request{}, err
	}

	procReq := processor.Request{
		Amount:         req.Amount.Round(2),
		Currency:       currency,
		Method:         method,
		CardNumber:     processor.NormalizeCardNumber(req.CardNumber),
		CardHolderName: strings.TrimSpace(req.CardHolderName),
		PayPalEmail:    strings.TrimSpace(req.PayPalEmail),
	}
	if err := proc.Validate(procReq); err != nil {
		return nil, processor.Request{}, err
	}

	return proc, procReq, nil
}

// existingByKey возвращает платёж, созданный конкурентным запросом с тем же ключом.
func (s *paymentService) existingByKey(ctx context.Context, key string) (*ProcessPaymentResult, error) {
	log := logger.Ctx(ctx)

	existing, err := s.repo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("idempotency_key", key).Msg("Дубликат ключа, но платёж не найден")
		return nil, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}

	log.Info().
		Str("idempotency_key", key).
		Str("payment_id", existing.ID).
		Msg("Платёж уже существует (race condition)")

	return &ProcessPaymentResult{Payment: existing, AlreadyExists: true}, nil
}

// saveTerminal сохраняет терминальный статус вместе с событием outbox.
func (s *paymentService) saveTerminal(ctx context.Context, p *domain.Payment, metadata map[string]string) error {
	eventType := kafka.EventPaymentCompleted
	if p.Status == domain.PaymentStatusFailed {
		eventType = kafka.EventPaymentFailed
	}

	event, err := outbox.NewRecord(ctx, outbox.AggregatePayment, p.ID, eventType, kafka.TopicPaymentEvents,
		newPaymentEvent(p, metadata))
	if err != nil {
		return err
	}

	return s.repo.SaveTerminal(ctx, p, event)
}

// paymentEvent — payload событий payment.completed / payment.failed.
type paymentEvent struct {
	ID            string            `json:"id"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Method        string            `json:"method"`
	Status        string            `json:"status"`
	TransactionID *string           `json:"transaction_id,omitempty"`
	FailureReason *string           `json:"failure_reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

func newPaymentEvent(p *domain.Payment, metadata map[string]string) paymentEvent {
	return paymentEvent{
		ID:            p.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        string(p.Method),
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		FailureReason: p.FailureReason,
		Metadata:      metadata,
		ProcessedAt:   p.ProcessedAt,
	}
}
