package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/travel-insurance/pkg/logger"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *PaymentClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPaymentClient(srv.URL+"/", time.Second)
}

// =============================================================================
// GetPayment
// =============================================================================

func TestGetPayment_Completed(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/payments/pay-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "pay-1",
			"amount": "52.50",
			"currency": "GEL",
			"payment_method": "CreditCard",
			"status": "COMPLETED",
			"transaction_id": "TXN_CREDITCARD_20300101000000_1234"
		}`))
	})

	info, err := c.GetPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "pay-1", info.ID)
	assert.Equal(t, "52.50", info.Amount.StringFixed(2))
	assert.Equal(t, "GEL", info.Currency)
	assert.Equal(t, PaymentStatusCompleted, info.Status)
	assert.True(t, info.IsCompleted())
	require.NotNil(t, info.TransactionID)
	assert.Nil(t, info.FailureReason)
}

func TestGetPayment_NumericAmount(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pay-2","amount":35,"currency":"USD","status":"failed","failure_reason":"declined"}`))
	})

	info, err := c.GetPayment(context.Background(), "pay-2")
	require.NoError(t, err)

	assert.Equal(t, "35.00", info.Amount.StringFixed(2))
	assert.Equal(t, PaymentStatusFailed, info.Status)
	assert.False(t, info.IsCompleted())
	require.NotNil(t, info.FailureReason)
	assert.Equal(t, "declined", *info.FailureReason)
}

func TestGetPayment_NotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found"}`))
	})

	info, err := c.GetPayment(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, info)
}

func TestGetPayment_ServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal_error"}`))
	})

	info, err := c.GetPayment(context.Background(), "pay-1")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "500")
	assert.Nil(t, info)
}

func TestGetPayment_InvalidBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := c.GetPayment(context.Background(), "pay-1")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGetPayment_UnknownStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pay-1","amount":"10.00","status":"CHARGEBACK"}`))
	})

	_, err := c.GetPayment(context.Background(), "pay-1")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGetPayment_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewPaymentClient(srv.URL, 20*time.Millisecond)

	_, err := c.GetPayment(context.Background(), "pay-1")
	assert.Error(t, err)
}

func TestGetPayment_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewPaymentClient(url, time.Second)

	_, err := c.GetPayment(context.Background(), "pay-1")
	assert.Error(t, err)
}

func TestGetPayment_ForwardsRequestIDs(t *testing.T) {
	var gotTrace, gotCorrelation string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotTrace = r.Header.Get("X-Trace-ID")
		gotCorrelation = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(`{"id":"pay-1","amount":"1.00","status":"Pending"}`))
	})

	ctx := logger.NewContextWithIDs(context.Background(), "trace-123", "corr-456")

	info, err := c.GetPayment(ctx, "pay-1")
	require.NoError(t, err)

	assert.Equal(t, PaymentStatusPending, info.Status)
	assert.Equal(t, "trace-123", gotTrace)
	assert.Equal(t, "corr-456", gotCorrelation)
}

func TestGetPayment_EscapesID(t *testing.T) {
	var gotPath string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetPayment(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/payments/a%2Fb", gotPath)
}

// =============================================================================
// ParsePaymentStatus
// =============================================================================

func TestParsePaymentStatus(t *testing.T) {
	for in, want := range map[string]PaymentStatus{
		"Completed": PaymentStatusCompleted,
		"COMPLETED": PaymentStatusCompleted,
		"pending":   PaymentStatusPending,
		" Failed ":  PaymentStatusFailed,
		"REFUNDED":  PaymentStatusRefunded,
	} {
		got, err := ParsePaymentStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParsePaymentStatus("")
	assert.Error(t, err)
}
