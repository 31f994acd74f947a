package processor

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/travel-insurance/services/payment/internal/domain"
)

// =============================================================================
// Заглушки шлюза
// =============================================================================

type stubGateway struct {
	txID  string
	err   error
	panic any
	calls int
	mu    sync.Mutex
}

func (g *stubGateway) Charge(_ context.Context, _ Charge) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.panic != nil {
		panic(g.panic)
	}
	return g.txID, g.err
}

func cardRequest() Request {
	return Request{
		PaymentID:      "pay-1",
		Amount:         decimal.RequireFromString("120.50"),
		Currency:       "USD",
		Method:         domain.MethodCreditCard,
		CardNumber:     "4111 1111 1111 1111",
		CardHolderName: "Nino Beridze",
	}
}

// =============================================================================
// SimulatedGateway
// =============================================================================

func TestSimulatedGateway_TransactionIDFormat(t *testing.T) {
	gw := NewSimulatedGateway(SimulatedGatewayConfig{FailureRate: 0, Seed: 42})

	txID, err := gw.Charge(context.Background(), Charge{Method: domain.MethodDebitCard})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^TXN_DEBITCARD_\d{14}_\d{4}$`), txID)
}

func TestSimulatedGateway_AlwaysFails(t *testing.T) {
	gw := NewSimulatedGateway(SimulatedGatewayConfig{FailureRate: 1, Seed: 7})

	_, err := gw.Charge(context.Background(), Charge{Method: domain.MethodCreditCard})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestSimulatedGateway_Latency(t *testing.T) {
	gw := NewSimulatedGateway(SimulatedGatewayConfig{
		MinLatency: 20 * time.Millisecond,
		MaxLatency: 30 * time.Millisecond,
		Seed:       1,
	})

	start := time.Now()
	_, err := gw.Charge(context.Background(), Charge{Method: domain.MethodPayPal})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSimulatedGateway_ConcurrentUse(t *testing.T) {
	gw := NewSimulatedGateway(SimulatedGatewayConfig{FailureRate: 0.5})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gw.Charge(context.Background(), Charge{Method: domain.MethodCreditCard})
		}()
	}
	wg.Wait()
}

// =============================================================================
// CardProcessor
// =============================================================================

func TestCardProcessor_Validate(t *testing.T) {
	p := NewCardProcessor(&stubGateway{})

	t.Run("валидная карта", func(t *testing.T) {
		assert.NoError(t, p.Validate(cardRequest()))
	})

	t.Run("номер с дефисами", func(t *testing.T) {
		req := cardRequest()
		req.CardNumber = "4111-1111-1111-1111"
		assert.NoError(t, p.Validate(req))
	})

	cases := map[string]func(r *Request){
		"пустой номер":          func(r *Request) { r.CardNumber = "" },
		"слишком короткий":      func(r *Request) { r.CardNumber = "411111111111" },
		"слишком длинный":       func(r *Request) { r.CardNumber = "41111111111111111111" },
		"буквы в номере":        func(r *Request) { r.CardNumber = "4111abcd11111111" },
		"нет держателя":         func(r *Request) { r.CardHolderName = "" },
		"держатель из пробелов": func(r *Request) { r.CardHolderName = "   " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := cardRequest()
			mutate(&req)
			err := p.Validate(req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCardProcessor_Process(t *testing.T) {
	t.Run("успешное списание", func(t *testing.T) {
		gw := &stubGateway{txID: "TXN_CREDITCARD_20260101120000_1234"}
		out := NewCardProcessor(gw).Process(context.Background(), cardRequest())

		assert.True(t, out.Success)
		assert.Equal(t, "TXN_CREDITCARD_20260101120000_1234", out.TransactionID)
		assert.Empty(t, out.FailureReason)
	})

	t.Run("отказ шлюза", func(t *testing.T) {
		gw := &stubGateway{err: ErrGatewayUnavailable}
		out := NewCardProcessor(gw).Process(context.Background(), cardRequest())

		assert.False(t, out.Success)
		assert.Empty(t, out.TransactionID)
		assert.Contains(t, out.FailureReason, "card processing error")
		assert.Contains(t, out.FailureReason, ErrGatewayUnavailable.Error())
	})

	t.Run("паника шлюза не выходит наружу", func(t *testing.T) {
		gw := &stubGateway{panic: "boom"}
		var out Outcome
		assert.NotPanics(t, func() {
			out = NewCardProcessor(gw).Process(context.Background(), cardRequest())
		})
		assert.False(t, out.Success)
		assert.Contains(t, out.FailureReason, "boom")
	})
}

func TestMaskCardNumber(t *testing.T) {
	assert.Equal(t, "************1111", MaskCardNumber("4111 1111 1111 1111"))
	assert.Equal(t, "****", MaskCardNumber("12"))
}

// =============================================================================
// PayPalProcessor
// =============================================================================

func TestPayPalProcessor_Validate(t *testing.T) {
	p := NewPayPalProcessor(&stubGateway{}, 0)

	assert.NoError(t, p.Validate(Request{PayPalEmail: "traveler@example.com"}))
	assert.ErrorIs(t, p.Validate(Request{}), domain.ErrValidation)
	assert.ErrorIs(t, p.Validate(Request{PayPalEmail: "no-at-sign"}), domain.ErrValidation)
}

func TestPayPalProcessor_Process(t *testing.T) {
	t.Run("успех добавляет paypal_order_id", func(t *testing.T) {
		gw := &stubGateway{txID: "TXN_PAYPAL_20260101120000_5555"}
		p := NewPayPalProcessor(gw, 0)
		p.now = func() time.Time { return time.UnixMilli(1700000000123) }

		out := p.Process(context.Background(), Request{PaymentID: "pay-2", Method: domain.MethodPayPal})

		assert.True(t, out.Success)
		assert.Equal(t, "PP_1700000000123", out.Metadata["paypal_order_id"])
	})

	t.Run("отказ", func(t *testing.T) {
		gw := &stubGateway{err: errors.New("declined")}
		out := NewPayPalProcessor(gw, 0).Process(context.Background(), Request{Method: domain.MethodPayPal})

		assert.False(t, out.Success)
		assert.Equal(t, "PayPal processing error: declined", out.FailureReason)
		assert.Nil(t, out.Metadata)
	})

	t.Run("дополнительная задержка", func(t *testing.T) {
		gw := &stubGateway{txID: "tx"}
		start := time.Now()
		NewPayPalProcessor(gw, 15*time.Millisecond).Process(context.Background(), Request{Method: domain.MethodPayPal})
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	})
}

// =============================================================================
// Factory
// =============================================================================

func TestFactory(t *testing.T) {
	f := NewDefaultFactory(&stubGateway{}, 0)

	t.Run("карты обслуживает одна стратегия", func(t *testing.T) {
		credit, err := f.Create(domain.MethodCreditCard)
		require.NoError(t, err)
		debit, err := f.Create(domain.MethodDebitCard)
		require.NoError(t, err)

		assert.IsType(t, &CardProcessor{}, credit)
		assert.Same(t, credit, debit)
	})

	t.Run("PayPal", func(t *testing.T) {
		p, err := f.Create(domain.MethodPayPal)
		require.NoError(t, err)
		assert.IsType(t, &PayPalProcessor{}, p)
	})

	t.Run("по имени без учёта регистра", func(t *testing.T) {
		for _, name := range []string{"paypal", "PAYPAL", "PayPal", "3"} {
			p, err := f.CreateByName(name)
			require.NoError(t, err, name)
			assert.IsType(t, &PayPalProcessor{}, p)
		}
	})

	t.Run("неизвестное имя", func(t *testing.T) {
		_, err := f.CreateByName("bitcoin")
		assert.ErrorIs(t, err, domain.ErrInvalidMethodName)
	})

	t.Run("способ без стратегии", func(t *testing.T) {
		cardsOnly := NewFactory(NewCardProcessor(&stubGateway{}))
		_, err := cardsOnly.Create(domain.MethodPayPal)
		assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)

		_, err = cardsOnly.CreateByName("paypal")
		assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)
	})

	t.Run("список способов", func(t *testing.T) {
		assert.Equal(t, domain.AllMethods, f.SupportedMethods())

		cardsOnly := NewFactory(NewCardProcessor(&stubGateway{}))
		assert.Equal(t,
			[]domain.PaymentMethod{domain.MethodCreditCard, domain.MethodDebitCard},
			cardsOnly.SupportedMethods())
	})
}
