// Package validation проверяет запросы на оформление полиса и котировку.
// Все нарушения собираются в один domain.ValidationError.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"example.com/travel-insurance/services/policy/internal/domain"
)

// MaxTripDays — максимальная длительность поездки.
const MaxTripDays = 365

// DefaultDestinations — поддерживаемые направления.
var DefaultDestinations = []string{
	"Europe", "France", "Germany", "Italy", "Spain", "UK", "Netherlands",
	"North America", "USA", "Canada", "Mexico",
	"Asia", "Japan", "China", "Thailand", "Singapore", "India",
	"Australia", "New Zealand",
	"South America", "Brazil", "Argentina", "Chile",
	"Africa", "South Africa", "Egypt", "Morocco",
	"Middle East", "UAE", "Turkey", "Israel",
}

// customerFields — поля клиента с правилами validator/v10.
type customerFields struct {
	Name  string `validate:"required,min=2,max=100"`
	Email string `validate:"required,email,max=255"`
	Phone string `validate:"omitempty,max=20"`
}

// customerMessages — сообщения для пар поле/правило.
var customerMessages = map[string]string{
	"Name.required":  "имя клиента обязательно",
	"Name.min":       "имя клиента должно содержать не менее 2 символов",
	"Name.max":       "имя клиента не может превышать 100 символов",
	"Email.required": "email клиента обязателен",
	"Email.email":    "некорректный формат email",
	"Email.max":      "email не может превышать 255 символов",
	"Phone.max":      "номер телефона не может превышать 20 символов",
}

// Validator проверяет запросы Policy Service.
type Validator struct {
	validate     *validator.Validate
	destinations map[string]struct{} // в нижнем регистре
	now          func() time.Time
}

// Option — функциональная опция для Validator.
type Option func(*Validator)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithDestinations заменяет список поддерживаемых направлений.
func WithDestinations(destinations []string) Option {
	return func(v *Validator) {
		v.destinations = indexDestinations(destinations)
	}
}

// New создаёт Validator.
func New(opts ...Option) *Validator {
	v := &Validator{
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		destinations: indexDestinations(DefaultDestinations),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func indexDestinations(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, d := range list {
		m[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return m
}

// ValidateCreate проверяет запрос на оформление полиса.
func (v *Validator) ValidateCreate(customer domain.Customer, trip domain.Trip, coverage domain.CoverageType, paymentID string) error {
	vErr := domain.NewValidationError()

	v.checkCustomer(customer, vErr)
	v.checkDestination(trip.Destination, vErr)
	v.checkTrip(trip, true, vErr)
	checkCoverage(coverage, vErr)

	if strings.TrimSpace(paymentID) == "" {
		vErr.Add("идентификатор платежа обязателен")
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// ValidateQuote проверяет запрос котировки: окно поездки, покрытие и направление.
// Ограничение длительности для котировки не применяется.
func (v *Validator) ValidateQuote(trip domain.Trip, coverage domain.CoverageType) error {
	vErr := domain.NewValidationError()

	v.checkDestination(trip.Destination, vErr)
	v.checkTrip(trip, false, vErr)
	checkCoverage(coverage, vErr)

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// IsValidDestination возвращает true при точном совпадении без учёта регистра
// или если направление содержит одно из поддерживаемых названий.
func (v *Validator) IsValidDestination(destination string) bool {
	dest := strings.ToLower(strings.TrimSpace(destination))
	if dest == "" {
		return false
	}
	if _, ok := v.destinations[dest]; ok {
		return true
	}
	for known := range v.destinations {
		if strings.Contains(dest, known) {
			return true
		}
	}
	return false
}

func (v *Validator) checkCustomer(c domain.Customer, vErr *domain.ValidationError) {
	fields := customerFields{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
	}
	if c.Phone != nil {
		fields.Phone = strings.TrimSpace(*c.Phone)
	}

	err := v.validate.Struct(fields)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.Add(err.Error())
		return
	}
	for _, fe := range fieldErrs {
		if msg, ok := customerMessages[fe.Field()+"."+fe.Tag()]; ok {
			vErr.Add(msg)
			continue
		}
		vErr.Add(fmt.Sprintf("некорректное поле %s", strings.ToLower(fe.Field())))
	}
}

func (v *Validator) checkDestination(destination string, vErr *domain.ValidationError) {
	switch {
	case strings.TrimSpace(destination) == "":
		vErr.Add("направление обязательно")
	case !v.IsValidDestination(destination):
		vErr.Add(fmt.Sprintf("направление %q не поддерживается", destination))
	}
}

func (v *Validator) checkTrip(trip domain.Trip, limitDuration bool, vErr *domain.ValidationError) {
	start := domain.Date(trip.StartDate)
	end := domain.Date(trip.EndDate)
	today := domain.Date(v.now().UTC())

	switch {
	case !start.Before(end):
		vErr.Add("дата окончания поездки должна быть позже даты начала")
	case start.Before(today):
		vErr.Add("дата начала поездки не может быть в прошлом")
	case limitDuration && domain.DaysBetween(start, end) > MaxTripDays:
		vErr.Add(fmt.Sprintf("длительность поездки не может превышать %d дней", MaxTripDays))
	}
}

func checkCoverage(coverage domain.CoverageType, vErr *domain.ValidationError) {
	if coverage != domain.CoverageBasic && coverage != domain.CoveragePremium {
		vErr.Add("неизвестный тип покрытия")
	}
}
