// Package domain содержит бизнес-сущности Policy Service.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout — формат дат поездки в API и CLI.
const DateLayout = "2006-01-02"

// PolicyStatus — статус полиса.
type PolicyStatus string

const (
	PolicyStatusPending   PolicyStatus = "Pending"
	PolicyStatusActive    PolicyStatus = "Active"
	PolicyStatusCancelled PolicyStatus = "Cancelled"
)

// allowedTransitions — допустимые переходы статусов.
// Cancelled терминален.
var allowedTransitions = map[PolicyStatus][]PolicyStatus{
	PolicyStatusPending: {PolicyStatusActive, PolicyStatusCancelled},
	PolicyStatusActive:  {PolicyStatusCancelled},
}

// ParseStatus разбирает статус без учёта регистра.
func ParseStatus(s string) (PolicyStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return PolicyStatusPending, true
	case "active":
		return PolicyStatusActive, true
	case "cancelled", "canceled":
		return PolicyStatusCancelled, true
	default:
		return "", false
	}
}

// CoverageType — тип покрытия.
type CoverageType string

const (
	CoverageBasic   CoverageType = "Basic"
	CoveragePremium CoverageType = "Premium"
)

// ParseCoverage разбирает тип покрытия без учёта регистра.
// Принимаются также числовые коды 1 и 2.
func ParseCoverage(s string) (CoverageType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic", "1":
		return CoverageBasic, true
	case "premium", "2":
		return CoveragePremium, true
	default:
		return "", false
	}
}

// Customer — страхователь.
type Customer struct {
	Name  string
	Email string
	Phone *string
}

// Trip — параметры поездки. Даты хранятся как полночь UTC.
type Trip struct {
	Destination string
	StartDate   time.Time
	EndDate     time.Time
}

// Days возвращает число оплачиваемых дней: end - start.
func (t Trip) Days() int {
	return DaysBetween(t.StartDate, t.EndDate)
}

// DurationDays возвращает длительность поездки для отображения, включая оба дня.
func (t Trip) DurationDays() int {
	return t.Days() + 1
}

// Policy — страховой полис.
type Policy struct {
	ID            string
	Customer      Customer
	Trip          Trip
	Coverage      CoverageType
	Status        PolicyStatus
	PremiumAmount decimal.Decimal
	PaymentID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanTransitionTo проверяет, допустим ли переход в указанный статус.
func (p *Policy) CanTransitionTo(newStatus PolicyStatus) bool {
	for _, status := range allowedTransitions[p.Status] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo выполняет переход в новый статус.
func (p *Policy) TransitionTo(newStatus PolicyStatus) error {
	if !p.CanTransitionTo(newStatus) {
		return ErrInvalidTransition
	}
	p.Status = newStatus
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IsActive возвращает true для действующего полиса.
func (p *Policy) IsActive() bool {
	return p.Status == PolicyStatusActive
}

// IsCancellable возвращает true, если полис ещё можно отменить.
func (p *Policy) IsCancellable() bool {
	return p.CanTransitionTo(PolicyStatusCancelled)
}

// =============================================================================
// Даты
// =============================================================================

// Date отбрасывает время суток и приводит момент к полуночи UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate принимает "2006-01-02" или RFC3339 и возвращает календарную дату.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return Date(t), nil
}

// DaysBetween возвращает разницу календарных дней end - start.
func DaysBetween(start, end time.Time) int {
	return int(Date(end).Sub(Date(start)).Hours() / 24)
}
