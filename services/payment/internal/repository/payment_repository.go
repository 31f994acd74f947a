// Package repository содержит реализацию доступа к данным для Payment Service.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/travel-insurance/pkg/outbox"
	"example.com/travel-insurance/services/payment/internal/domain"
)

// PaymentRepository определяет интерфейс для работы с платежами в БД.
type PaymentRepository interface {
	// Create создаёт платёж в статусе PENDING.
	// Повтор idempotency_key даёт domain.ErrDuplicatePayment.
	Create(ctx context.Context, payment *domain.Payment) error

	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)

	// SaveTerminal сохраняет переход PENDING → COMPLETED/FAILED и событие outbox
	// одной транзакцией. Если строка уже не PENDING — domain.ErrAlreadyProcessed.
	SaveTerminal(ctx context.Context, payment *domain.Payment, event *outbox.Record) error

	// GetStuckPending возвращает платежи в статусе PENDING старше указанного времени.
	GetStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error)
}

// =============================================================================
// GORM модель
// =============================================================================

// PaymentModel — GORM модель для таблицы payments.
type PaymentModel struct {
	ID     string          `gorm:"column:id;type:varchar(36);primaryKey"`
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null"`
	// NULL допускается многократно, непустой ключ уникален
	IdempotencyKey *string    `gorm:"column:idempotency_key;type:varchar(255);uniqueIndex"`
	Currency       string     `gorm:"column:currency;type:varchar(3);not null"`
	Method         string     `gorm:"column:method;type:varchar(20);not null"`
	Status         string     `gorm:"column:status;type:varchar(20);not null;index:idx_payments_status_created,priority:1"`
	TransactionID  *string    `gorm:"column:transaction_id;type:varchar(64)"`
	FailureReason  *string    `gorm:"column:failure_reason;type:text"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime;index:idx_payments_status_created,priority:2"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	ProcessedAt    *time.Time `gorm:"column:processed_at"`
}

// TableName возвращает имя таблицы в БД.
func (PaymentModel) TableName() string {
	return "payments"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *PaymentModel) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:             m.ID,
		Amount:         m.Amount,
		Currency:       m.Currency,
		Method:         domain.PaymentMethod(m.Method),
		Status:         domain.PaymentStatus(m.Status),
		IdempotencyKey: m.IdempotencyKey,
		TransactionID:  m.TransactionID,
		FailureReason:  m.FailureReason,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		ProcessedAt:    m.ProcessedAt,
	}
}

// paymentModelFromDomain конвертирует доменную сущность в GORM модель.
func paymentModelFromDomain(p *domain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:             p.ID,
		Amount:         p.Amount,
		IdempotencyKey: p.IdempotencyKey,
		Currency:       p.Currency,
		Method:         string(p.Method),
		Status:         string(p.Status),
		TransactionID:  p.TransactionID,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		ProcessedAt:    p.ProcessedAt,
	}
}

// AutoMigrate создаёт таблицы payments и outbox.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&PaymentModel{}); err != nil {
		return err
	}
	return outbox.AutoMigrate(db)
}

// =============================================================================
// Реализация репозитория
// =============================================================================

// paymentRepository — GORM реализация PaymentRepository.
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository создаёт новый репозиторий платежей.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create создаёт новый платёж.
func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	model := paymentModelFromDomain(payment)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrDuplicatePayment
		}
		return err
	}

	// Обновляем timestamps в доменной сущности
	payment.CreatedAt = model.CreatedAt
	payment.UpdatedAt = model.UpdatedAt

	return nil
}

// GetByID возвращает платёж по ID.
func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByIdempotencyKey возвращает платёж по ключу идемпотентности.
func (r *paymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	return r.first(ctx, "idempotency_key = ?", key)
}

func (r *paymentRepository) first(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	var model PaymentModel

	if err := r.db.WithContext(ctx).
		Where(query, arg).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// SaveTerminal сохраняет терминальное состояние платежа вместе с событием.
func (r *paymentRepository) SaveTerminal(ctx context.Context, payment *domain.Payment, event *outbox.Record) error {
	if !payment.Status.IsTerminal() {
		return domain.ErrInvalidTransition
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updatedAt := time.Now().UTC()

		// Условие по статусу: терминальная строка никогда не перезаписывается
		result := tx.Model(&PaymentModel{}).
			Where("id = ? AND status = ?", payment.ID, string(domain.PaymentStatusPending)).
			Updates(map[string]interface{}{
				"status":         string(payment.Status),
				"transaction_id": payment.TransactionID,
				"failure_reason": payment.FailureReason,
				"processed_at":   payment.ProcessedAt,
				"updated_at":     updatedAt,
			})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&PaymentModel{}).Where("id = ?", payment.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrPaymentNotFound
			}
			return domain.ErrAlreadyProcessed
		}

		if event != nil {
			if err := outbox.Insert(tx, event); err != nil {
				return err
			}
		}

		payment.UpdatedAt = updatedAt
		return nil
	})
}

// GetStuckPending возвращает платежи в статусе PENDING старше указанного времени.
func (r *paymentRepository) GetStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error) {
	var models []PaymentModel

	threshold := time.Now().UTC().Add(-olderThan)

	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(domain.PaymentStatusPending), threshold).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	payments := make([]*domain.Payment, 0, len(models))
	for i := range models {
		payments = append(payments, models[i].toDomain())
	}

	return payments, nil
}

// isDuplicateKeyError проверяет, является ли ошибка дубликатом ключа.
// MySQL: 1062 / Duplicate entry, SQLite: UNIQUE constraint failed.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "1062") ||
		strings.Contains(errMsg, "UNIQUE constraint failed")
}
