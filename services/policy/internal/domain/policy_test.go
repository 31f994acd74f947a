package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Переходы статусов
// =============================================================================

func TestPolicy_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    PolicyStatus
		to      PolicyStatus
		allowed bool
	}{
		{"Pending → Active", PolicyStatusPending, PolicyStatusActive, true},
		{"Pending → Cancelled", PolicyStatusPending, PolicyStatusCancelled, true},
		{"Active → Cancelled", PolicyStatusActive, PolicyStatusCancelled, true},
		{"Active → Pending запрещён", PolicyStatusActive, PolicyStatusPending, false},
		{"Cancelled терминален", PolicyStatusCancelled, PolicyStatusActive, false},
		{"Cancelled → Cancelled запрещён", PolicyStatusCancelled, PolicyStatusCancelled, false},
		{"Active → Active запрещён", PolicyStatusActive, PolicyStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Policy{Status: tt.from}
			err := p.TransitionTo(tt.to)

			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, p.Status)
				assert.False(t, p.UpdatedAt.IsZero())
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, p.Status, "статус не должен меняться")
			}
		})
	}
}

func TestPolicy_IsCancellable(t *testing.T) {
	assert.True(t, (&Policy{Status: PolicyStatusPending}).IsCancellable())
	assert.True(t, (&Policy{Status: PolicyStatusActive}).IsCancellable())
	assert.False(t, (&Policy{Status: PolicyStatusCancelled}).IsCancellable())
	assert.True(t, (&Policy{Status: PolicyStatusActive}).IsActive())
}

// =============================================================================
// Разбор значений
// =============================================================================

func TestParseStatus(t *testing.T) {
	for _, in := range []string{"Cancelled", "cancelled", "CANCELLED", " canceled "} {
		s, ok := ParseStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, PolicyStatusCancelled, s)
	}

	_, ok := ParseStatus("Expired")
	assert.False(t, ok)
}

func TestParseCoverage(t *testing.T) {
	c, ok := ParseCoverage("BASIC")
	assert.True(t, ok)
	assert.Equal(t, CoverageBasic, c)

	c, ok = ParseCoverage("2")
	assert.True(t, ok)
	assert.Equal(t, CoveragePremium, c)

	_, ok = ParseCoverage("gold")
	assert.False(t, ok)
}

// =============================================================================
// Даты
// =============================================================================

func TestTrip_Days(t *testing.T) {
	trip := Trip{
		StartDate: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2030, 1, 8, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, 7, trip.Days())
	assert.Equal(t, 8, trip.DurationDays(), "для отображения оба дня включаются")
}

func TestDaysBetween_IgnoresTimeOfDay(t *testing.T) {
	start := time.Date(2030, 3, 1, 23, 59, 0, 0, time.UTC)
	end := time.Date(2030, 3, 2, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, 1, DaysBetween(start, end))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2030-06-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2030-06-15T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("15.06.2030")
	assert.Error(t, err)
}

func TestValidationError(t *testing.T) {
	vErr := NewValidationError("a", "b")
	vErr.Add("c")

	assert.True(t, vErr.HasErrors())
	assert.True(t, errors.Is(vErr, ErrValidation))
	assert.Contains(t, vErr.Error(), "a; b; c")
}
