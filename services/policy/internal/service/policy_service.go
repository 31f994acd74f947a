// Package service содержит бизнес-логику Policy Service.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/travel-insurance/pkg/circuitbreaker"
	"example.com/travel-insurance/pkg/kafka"
	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/pkg/metrics"
	"example.com/travel-insurance/pkg/outbox"
	"example.com/travel-insurance/pkg/tracing"
	"example.com/travel-insurance/services/policy/internal/client"
	"example.com/travel-insurance/services/policy/internal/domain"
	"example.com/travel-insurance/services/policy/internal/premium"
	"example.com/travel-insurance/services/policy/internal/repository"
	"example.com/travel-insurance/services/policy/internal/validation"
)

// QuoteCurrency — валюта премии.
const QuoteCurrency = "GEL"

// Исходы оформления для метрики policies_total.
const (
	outcomeIssued      = "issued"
	outcomeExisting    = "existing"
	outcomeRejected    = "rejected"
	outcomeUnavailable = "unavailable"
)

// =============================================================================
// Интерфейс сервиса
// =============================================================================

// CreatePolicyRequest — запрос на оформление полиса.
type CreatePolicyRequest struct {
	Customer  domain.Customer
	Trip      domain.Trip
	Coverage  domain.CoverageType
	PaymentID string
}

// QuoteRequest — запрос предварительного расчёта.
type QuoteRequest struct {
	Destination string
	StartDate   time.Time
	EndDate     time.Time
	Coverage    domain.CoverageType
}

// Quote — предварительный расчёт премии.
type Quote struct {
	Premium          decimal.Decimal
	Currency         string
	ValidUntil       time.Time
	Destination      string
	Coverage         domain.CoverageType
	TripDurationDays int // включая оба дня
	Breakdown        premium.Breakdown
}

// PaymentFetcher получает платёж из Payment Service.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*client.PaymentInfo, error)
}

// PolicyService — интерфейс бизнес-логики полисов.
type PolicyService interface {
	// CreatePolicy оформляет полис по завершённому платежу.
	// Повтор с тем же payment_id возвращает существующий полис и created=false.
	CreatePolicy(ctx context.Context, req CreatePolicyRequest) (*domain.Policy, bool, error)

	GetPolicy(ctx context.Context, id string) (*domain.Policy, error)

	GetPolicyByPayment(ctx context.Context, paymentID string) (*domain.Policy, error)

	// UpdateStatus меняет статус полиса по таблице переходов.
	UpdateStatus(ctx context.Context, id string, status domain.PolicyStatus) (*domain.Policy, error)

	// Quote считает премию без сохранения и без обращения к Payment Service.
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// Config — параметры оформления.
type Config struct {
	Tolerance decimal.Decimal // допустимая недоплата, абсолютная
	QuoteTTL  time.Duration
	Now       func() time.Time
}

// DefaultConfig возвращает параметры по умолчанию.
func DefaultConfig() Config {
	return Config{
		Tolerance: decimal.RequireFromString("1.00"),
		QuoteTTL:  24 * time.Hour,
		Now:       time.Now,
	}
}

// =============================================================================
// Реализация сервиса
// =============================================================================

type policyService struct {
	repo       repository.PolicyRepository
	payments   PaymentFetcher
	breaker    *circuitbreaker.Breaker
	calculator *premium.Calculator
	validator  *validation.Validator
	cfg        Config
}

// NewPolicyService создаёт новый сервис полисов.
func NewPolicyService(
	repo repository.PolicyRepository,
	payments PaymentFetcher,
	breaker *circuitbreaker.Breaker,
	calculator *premium.Calculator,
	validator *validation.Validator,
	cfg Config,
) PolicyService {
	def := DefaultConfig()
	if cfg.Tolerance.IsNegative() {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = def.QuoteTTL
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &policyService{
		repo:       repo,
		payments:   payments,
		breaker:    breaker,
		calculator: calculator,
		validator:  validator,
		cfg:        cfg,
	}
}

// CreatePolicy оформляет полис.
func (s *policyService) CreatePolicy(ctx context.Context, req CreatePolicyRequest) (*domain.Policy, bool, error) {
	log := logger.Ctx(ctx).With().
		Str("payment_id", req.PaymentID).
		Str("destination", req.Trip.Destination).
		Logger()

	// 1. Валидация запроса
	if err := s.validator.ValidateCreate(req.Customer, req.Trip, req.Coverage, req.PaymentID); err != nil {
		log.Warn().Err(err).Msg("Невалидный запрос на оформление полиса")
		metrics.RecordPolicy(outcomeRejected)
		return nil, false, err
	}

	// 2. Идемпотентность по payment_id
	existing, err := s.repo.GetByPaymentID(ctx, req.PaymentID)
	switch {
	case err == nil:
		log.Info().Str("policy_id", existing.ID).Msg("Полис для платежа уже существует")
		metrics.RecordPolicy(outcomeExisting)
		return existing, false, nil
	case !errors.Is(err, domain.ErrPolicyNotFound):
		log.Error().Err(err).Msg("Ошибка поиска полиса по платежу")
		return nil, false, fmt.Errorf("поиск полиса по платежу: %w", err)
	}

	// 3. Проверка платежа через circuit breaker
	payment, err := circuitbreaker.Execute(ctx, s.breaker, func(ctx context.Context) (*client.PaymentInfo, error) {
		return s.payments.GetPayment(ctx, req.PaymentID)
	})
	if err != nil {
		log.Warn().Err(err).Str("breaker", s.breaker.State().String()).Msg("Payment Service недоступен")
		metrics.RecordPolicy(outcomeUnavailable)
		return nil, false, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	// 4. Платёж должен существовать и быть завершён
	if payment == nil {
		metrics.RecordPolicy(outcomeRejected)
		return nil, false, fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, req.PaymentID)
	}
	if !payment.IsCompleted() {
		log.Warn().Str("payment_status", string(payment.Status)).Msg("Платёж не завершён")
		metrics.RecordPolicy(outcomeRejected)
		return nil, false, fmt.Errorf("%w: текущий статус %s", domain.ErrPaymentNotCompleted, payment.Status)
	}

	// 5. Сверка суммы с премией
	amount, err := s.calculate(ctx, req.Coverage, req.Trip)
	if err != nil {
		metrics.RecordPolicy(outcomeRejected)
		return nil, false, err
	}

	log.Info().
		Str("expected_premium", amount.StringFixed(2)).
		Str("paid", payment.Amount.StringFixed(2)).
		Msg("Сверка оплаты с премией")

	if payment.Amount.LessThan(amount.Sub(s.cfg.Tolerance)) {
		metrics.RecordPolicy(outcomeRejected)
		return nil, false, fmt.Errorf("%w: требуется %s %s, оплачено %s %s",
			domain.ErrInsufficientPayment,
			amount.StringFixed(2), QuoteCurrency, payment.Amount.StringFixed(2), QuoteCurrency)
	}

	// 6. Полис создаётся в Pending и сразу активируется: платёж уже подтверждён
	now := s.cfg.Now().UTC()
	policy := &domain.Policy{
		ID: uuid.New().String(),
		Customer: domain.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Trip: domain.Trip{
			Destination: req.Trip.Destination,
			StartDate:   domain.Date(req.Trip.StartDate),
			EndDate:     domain.Date(req.Trip.EndDate),
		},
		Coverage:      req.Coverage,
		Status:        domain.PolicyStatusPending,
		PremiumAmount: amount,
		PaymentID:     req.PaymentID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := policy.TransitionTo(domain.PolicyStatusActive); err != nil {
		return nil, false, err
	}

	event, err := outbox.NewRecord(ctx, outbox.AggregatePolicy, policy.ID,
		kafka.EventPolicyIssued, kafka.TopicPolicyEvents, newPolicyEvent(policy, ""))
	if err != nil {
		return nil, false, err
	}

	if err := s.repo.Create(ctx, policy, event); err != nil {
		if errors.Is(err, domain.ErrDuplicatePolicy) {
			// Конкурентный запрос успел оформить полис по этому платежу
			stored, getErr := s.repo.GetByPaymentID(ctx, req.PaymentID)
			if getErr != nil {
				return nil, false, fmt.Errorf("поиск полиса после конфликта: %w", getErr)
			}
			log.Info().Str("policy_id", stored.ID).Msg("Полис уже оформлен (race condition)")
			metrics.RecordPolicy(outcomeExisting)
			return stored, false, nil
		}
		log.Error().Err(err).Msg("Ошибка сохранения полиса")
		return nil, false, fmt.Errorf("сохранение полиса: %w", err)
	}

	metrics.RecordPolicy(outcomeIssued)
	log.Info().
		Str("policy_id", policy.ID).
		Str("premium", policy.PremiumAmount.StringFixed(2)).
		Msg("Полис оформлен")

	return policy, true, nil
}

// GetPolicy возвращает полис по ID.
func (s *policyService) GetPolicy(ctx context.Context, id string) (*domain.Policy, error) {
	return s.repo.GetByID(ctx, id)
}

// GetPolicyByPayment возвращает полис по ID платежа.
func (s *policyService) GetPolicyByPayment(ctx context.Context, paymentID string) (*domain.Policy, error) {
	return s.repo.GetByPaymentID(ctx, paymentID)
}

// UpdateStatus меняет статус полиса.
func (s *policyService) UpdateStatus(ctx context.Context, id string, status domain.PolicyStatus) (*domain.Policy, error) {
	log := logger.Ctx(ctx)

	policy, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := policy.Status
	if err := policy.TransitionTo(status); err != nil {
		log.Warn().
			Str("policy_id", id).
			Str("from", string(from)).
			Str("to", string(status)).
			Msg("Недопустимый переход статуса полиса")
		return nil, fmt.Errorf("%w: %s → %s", err, from, status)
	}

	event, err := outbox.NewRecord(ctx, outbox.AggregatePolicy, policy.ID,
		kafka.EventPolicyStatusChanged, kafka.TopicPolicyEvents, newPolicyEvent(policy, from))
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, policy, from, event); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: статус полиса изменился", err)
		}
		return nil, err
	}

	log.Info().
		Str("policy_id", id).
		Str("from", string(from)).
		Str("to", string(status)).
		Msg("Статус полиса обновлён")

	return policy, nil
}

// Quote считает премию для предварительного показа.
func (s *policyService) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	trip := domain.Trip{
		Destination: req.Destination,
		StartDate:   domain.Date(req.StartDate),
		EndDate:     domain.Date(req.EndDate),
	}

	if err := s.validator.ValidateQuote(trip, req.Coverage); err != nil {
		return nil, err
	}

	b, err := s.breakdown(ctx, req.Coverage, trip)
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Debug().
		Str("coverage", string(req.Coverage)).
		Str("destination", req.Destination).
		Str("premium", b.Amount.StringFixed(2)).
		Msg("Рассчитана котировка")

	return &Quote{
		Premium:          b.Amount,
		Currency:         QuoteCurrency,
		ValidUntil:       s.cfg.Now().UTC().Add(s.cfg.QuoteTTL),
		Destination:      req.Destination,
		Coverage:         req.Coverage,
		TripDurationDays: trip.DurationDays(),
		Breakdown:        b,
	}, nil
}

// =============================================================================
// Вспомогательные методы
// =============================================================================

func (s *policyService) calculate(ctx context.Context, coverage domain.CoverageType, trip domain.Trip) (decimal.Decimal, error) {
	b, err := s.breakdown(ctx, coverage, trip)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Amount, nil
}

func (s *policyService) breakdown(ctx context.Context, coverage domain.CoverageType, trip domain.Trip) (premium.Breakdown, error) {
	_, span := tracing.StartSpan(ctx, "policy-service", "premium.calculate")
	defer span.End()

	return s.calculator.Breakdown(coverage, trip.StartDate, trip.EndDate, trip.Destination)
}

// policyEvent — payload событий policy.issued / policy.status_changed.
type policyEvent struct {
	ID             string          `json:"id"`
	PaymentID      string          `json:"payment_id"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	Premium        decimal.Decimal `json:"premium"`
	Coverage       string          `json:"coverage"`
	Destination    string          `json:"destination"`
}

func newPolicyEvent(p *domain.Policy, previous domain.PolicyStatus) policyEvent {
	return policyEvent{
		ID:             p.ID,
		PaymentID:      p.PaymentID,
		Status:         string(p.Status),
		PreviousStatus: string(previous),
		Premium:        p.PremiumAmount,
		Coverage:       string(p.Coverage),
		Destination:    p.Trip.Destination,
	}
}
