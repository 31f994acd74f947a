// Package repository содержит реализацию доступа к данным для Policy Service.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/travel-insurance/pkg/outbox"
	"example.com/travel-insurance/services/policy/internal/domain"
)

// PolicyRepository определяет интерфейс для работы с полисами в БД.
type PolicyRepository interface {
	// Create сохраняет полис и событие outbox одной транзакцией.
	// Второй полис на тот же payment_id даёт domain.ErrDuplicatePolicy.
	Create(ctx context.Context, policy *domain.Policy, event *outbox.Record) error

	GetByID(ctx context.Context, id string) (*domain.Policy, error)

	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Policy, error)

	// UpdateStatus сохраняет новый статус, только если в БД всё ещё статус from.
	// Иначе — domain.ErrInvalidTransition, строка не меняется.
	UpdateStatus(ctx context.Context, policy *domain.Policy, from domain.PolicyStatus, event *outbox.Record) error
}

// =============================================================================
// GORM модель
// =============================================================================

// PolicyModel — GORM модель для таблицы policies.
type PolicyModel struct {
	ID            string          `gorm:"column:id;type:varchar(36);primaryKey"`
	CustomerName  string          `gorm:"column:customer_name;type:varchar(100);not null"`
	CustomerEmail string          `gorm:"column:customer_email;type:varchar(255);not null;index"`
	CustomerPhone *string         `gorm:"column:customer_phone;type:varchar(20)"`
	Destination   string          `gorm:"column:destination;type:varchar(100);not null"`
	TripStartDate time.Time       `gorm:"column:trip_start_date;type:date;not null"`
	TripEndDate   time.Time       `gorm:"column:trip_end_date;type:date;not null"`
	CoverageType  string          `gorm:"column:coverage_type;type:varchar(20);not null"`
	Status        string          `gorm:"column:status;type:varchar(20);not null;index"`
	PremiumAmount decimal.Decimal `gorm:"column:premium_amount;type:decimal(10,2);not null"`
	PaymentID     string          `gorm:"column:payment_id;type:varchar(36);not null;uniqueIndex"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName возвращает имя таблицы в БД.
func (PolicyModel) TableName() string {
	return "policies"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *PolicyModel) toDomain() *domain.Policy {
	return &domain.Policy{
		ID: m.ID,
		Customer: domain.Customer{
			Name:  m.CustomerName,
			Email: m.CustomerEmail,
			Phone: m.CustomerPhone,
		},
		Trip: domain.Trip{
			Destination: m.Destination,
			StartDate:   domain.Date(m.TripStartDate),
			EndDate:     domain.Date(m.TripEndDate),
		},
		Coverage:      domain.CoverageType(m.CoverageType),
		Status:        domain.PolicyStatus(m.Status),
		PremiumAmount: m.PremiumAmount,
		PaymentID:     m.PaymentID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// policyModelFromDomain конвертирует доменную сущность в GORM модель.
func policyModelFromDomain(p *domain.Policy) *PolicyModel {
	return &PolicyModel{
		ID:            p.ID,
		CustomerName:  p.Customer.Name,
		CustomerEmail: p.Customer.Email,
		CustomerPhone: p.Customer.Phone,
		Destination:   p.Trip.Destination,
		TripStartDate: domain.Date(p.Trip.StartDate),
		TripEndDate:   domain.Date(p.Trip.EndDate),
		CoverageType:  string(p.Coverage),
		Status:        string(p.Status),
		PremiumAmount: p.PremiumAmount,
		PaymentID:     p.PaymentID,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// AutoMigrate создаёт таблицы policies и outbox.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&PolicyModel{}); err != nil {
		return err
	}
	return outbox.AutoMigrate(db)
}

// =============================================================================
// Реализация репозитория
// =============================================================================

type policyRepository struct {
	db *gorm.DB
}

// NewPolicyRepository создаёт новый репозиторий полисов.
func NewPolicyRepository(db *gorm.DB) PolicyRepository {
	return &policyRepository{db: db}
}

// Create создаёт полис вместе с событием policy.issued.
func (r *policyRepository) Create(ctx context.Context, policy *domain.Policy, event *outbox.Record) error {
	model := policyModelFromDomain(policy)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if event != nil {
			return outbox.Insert(tx, event)
		}
		return nil
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrDuplicatePolicy
		}
		return err
	}

	policy.CreatedAt = model.CreatedAt
	policy.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID возвращает полис по ID.
func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByPaymentID возвращает полис, оформленный по платежу.
func (r *policyRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Policy, error) {
	return r.first(ctx, "payment_id = ?", paymentID)
}

func (r *policyRepository) first(ctx context.Context, query string, arg any) (*domain.Policy, error) {
	var model PolicyModel

	if err := r.db.WithContext(ctx).
		Where(query, arg).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPolicyNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// UpdateStatus сохраняет переход статуса вместе с событием policy.status_changed.
func (r *policyRepository) UpdateStatus(ctx context.Context, policy *domain.Policy, from domain.PolicyStatus, event *outbox.Record) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updatedAt := time.Now().UTC()

		result := tx.Model(&PolicyModel{}).
			Where("id = ? AND status = ?", policy.ID, string(from)).
			Updates(map[string]interface{}{
				"status":     string(policy.Status),
				"updated_at": updatedAt,
			})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&PolicyModel{}).Where("id = ?", policy.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrPolicyNotFound
			}
			// Статус успел измениться конкурентным запросом
			return domain.ErrInvalidTransition
		}

		if event != nil {
			if err := outbox.Insert(tx, event); err != nil {
				return err
			}
		}

		policy.UpdatedAt = updatedAt
		return nil
	})
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
