package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/travel-insurance/services/policy/internal/domain"
)

// Фиксированное "сегодня" для всех тестов
var today = time.Date(2030, 5, 10, 15, 30, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return New(WithClock(func() time.Time { return today }))
}

func date(offset int) time.Time {
	return domain.Date(today).AddDate(0, 0, offset)
}

func validCustomer() domain.Customer {
	phone := "+995555123456"
	return domain.Customer{Name: "Nino Beridze", Email: "nino@example.com", Phone: &phone}
}

func validTrip() domain.Trip {
	return domain.Trip{Destination: "Europe", StartDate: date(1), EndDate: date(8)}
}

func messages(t *testing.T, err error) []string {
	t.Helper()
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr), "ожидается ValidationError, получено %v", err)
	return vErr.Errors
}

// =============================================================================
// ValidateCreate
// =============================================================================

func TestValidateCreate_Valid(t *testing.T) {
	v := newTestValidator()

	err := v.ValidateCreate(validCustomer(), validTrip(), domain.CoverageBasic, "pay-1")
	assert.NoError(t, err)
}

func TestValidateCreate_StartToday(t *testing.T) {
	v := newTestValidator()
	trip := domain.Trip{Destination: "Japan", StartDate: date(0), EndDate: date(1)}

	assert.NoError(t, v.ValidateCreate(validCustomer(), trip, domain.CoveragePremium, "pay-1"))
}

func TestValidateCreate_Customer(t *testing.T) {
	v := newTestValidator()
	longPhone := strings.Repeat("1", 21)

	tests := []struct {
		name     string
		customer domain.Customer
		want     string
	}{
		{"пустое имя", domain.Customer{Name: " ", Email: "a@b.co"}, "имя клиента обязательно"},
		{"короткое имя", domain.Customer{Name: "A", Email: "a@b.co"}, "не менее 2 символов"},
		{"длинное имя", domain.Customer{Name: strings.Repeat("я", 101), Email: "a@b.co"}, "100 символов"},
		{"пустой email", domain.Customer{Name: "Anna"}, "email клиента обязателен"},
		{"невалидный email", domain.Customer{Name: "Anna", Email: "not-an-email"}, "некорректный формат email"},
		{"длинный телефон", domain.Customer{Name: "Anna", Email: "a@b.co", Phone: &longPhone}, "20 символов"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCreate(tt.customer, validTrip(), domain.CoverageBasic, "pay-1")
			msgs := messages(t, err)
			require.Len(t, msgs, 1)
			assert.Contains(t, msgs[0], tt.want)
		})
	}
}

func TestValidateCreate_NameLengthCountsRunes(t *testing.T) {
	v := newTestValidator()
	customer := domain.Customer{Name: strings.Repeat("ж", 100), Email: "a@b.co"}

	assert.NoError(t, v.ValidateCreate(customer, validTrip(), domain.CoverageBasic, "pay-1"))
}

func TestValidateCreate_Trip(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name string
		trip domain.Trip
		want string
	}{
		{"конец раньше начала", domain.Trip{Destination: "Europe", StartDate: date(5), EndDate: date(2)}, "позже даты начала"},
		{"однодневное окно", domain.Trip{Destination: "Europe", StartDate: date(3), EndDate: date(3)}, "позже даты начала"},
		{"начало в прошлом", domain.Trip{Destination: "Europe", StartDate: date(-1), EndDate: date(5)}, "в прошлом"},
		{"больше 365 дней", domain.Trip{Destination: "Europe", StartDate: date(1), EndDate: date(367)}, "365"},
		{"пустое направление", domain.Trip{StartDate: date(1), EndDate: date(3)}, "направление обязательно"},
		{"неизвестное направление", domain.Trip{Destination: "Atlantis", StartDate: date(1), EndDate: date(3)}, "Atlantis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCreate(validCustomer(), tt.trip, domain.CoverageBasic, "pay-1")
			msgs := messages(t, err)
			require.Len(t, msgs, 1)
			assert.Contains(t, msgs[0], tt.want)
		})
	}
}

func TestValidateCreate_ExactlyMaxDuration(t *testing.T) {
	v := newTestValidator()
	trip := domain.Trip{Destination: "Europe", StartDate: date(1), EndDate: date(366)}

	assert.NoError(t, v.ValidateCreate(validCustomer(), trip, domain.CoverageBasic, "pay-1"))
}

func TestValidateCreate_CollectsAllErrors(t *testing.T) {
	v := newTestValidator()

	err := v.ValidateCreate(
		domain.Customer{},
		domain.Trip{Destination: "Atlantis", StartDate: date(2), EndDate: date(1)},
		domain.CoverageType("Gold"),
		"",
	)

	assert.ErrorIs(t, err, domain.ErrValidation)
	msgs := messages(t, err)
	assert.Len(t, msgs, 6)
}

// =============================================================================
// ValidateQuote
// =============================================================================

func TestValidateQuote(t *testing.T) {
	v := newTestValidator()

	assert.NoError(t, v.ValidateQuote(validTrip(), domain.CoveragePremium))

	// Для котировки длительность не ограничивается
	long := domain.Trip{Destination: "Asia", StartDate: date(1), EndDate: date(400)}
	assert.NoError(t, v.ValidateQuote(long, domain.CoverageBasic))

	err := v.ValidateQuote(domain.Trip{Destination: "Asia", StartDate: date(-3), EndDate: date(2)}, domain.CoverageBasic)
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = v.ValidateQuote(validTrip(), domain.CoverageType(""))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// =============================================================================
// Направления
// =============================================================================

func TestIsValidDestination(t *testing.T) {
	v := newTestValidator()

	valid := []string{"Europe", "europe", "USA", "New Zealand", "Southern France", "Tokyo, Japan"}
	for _, d := range valid {
		assert.True(t, v.IsValidDestination(d), d)
	}

	invalid := []string{"", "Atlantis", "Mars"}
	for _, d := range invalid {
		assert.False(t, v.IsValidDestination(d), d)
	}
}

func TestWithDestinations(t *testing.T) {
	v := New(WithDestinations([]string{"Georgia"}))

	assert.True(t, v.IsValidDestination("georgia"))
	assert.False(t, v.IsValidDestination("Europe"))
}
