package processor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"example.com/travel-insurance/services/payment/internal/domain"
)

// ErrGatewayUnavailable — временный отказ шлюза.
var ErrGatewayUnavailable = errors.New("payment gateway temporarily unavailable")

// Charge — запрос на списание к шлюзу.
type Charge struct {
	Reference string // id платежа в нашей системе
	Method    domain.PaymentMethod
	Amount    decimal.Decimal
	Currency  string
}

// Gateway — внешний платёжный шлюз. Возвращает id транзакции.
type Gateway interface {
	Charge(ctx context.Context, c Charge) (string, error)
}

// SimulatedGatewayConfig — параметры симулятора.
type SimulatedGatewayConfig struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64 // вероятность временного отказа, [0, 1]
	// Seed фиксирует последовательность случайных чисел; 0 — случайный seed.
	Seed uint64
}

// SimulatedGateway имитирует шлюз: случайная задержка и доля отказов.
// Задержка не прерывается отменой контекста, как у реального сетевого вызова
// без поддержки отмены.
type SimulatedGateway struct {
	cfg SimulatedGatewayConfig
	now func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulatedGateway создаёт симулятор шлюза.
func NewSimulatedGateway(cfg SimulatedGatewayConfig) *SimulatedGateway {
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &SimulatedGateway{
		cfg: cfg,
		now: time.Now,
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Charge выполняет симулированное списание.
func (g *SimulatedGateway) Charge(_ context.Context, c Charge) (string, error) {
	latency, fail, suffix := g.draw()

	if latency > 0 {
		time.Sleep(latency)
	}

	if fail {
		return "", ErrGatewayUnavailable
	}

	// TXN_<METHOD>_<yyyyMMddHHmmss>_<1000-9999>
	return fmt.Sprintf("TXN_%s_%s_%d",
		strings.ToUpper(string(c.Method)),
		g.now().UTC().Format("20060102150405"),
		suffix,
	), nil
}

// draw получает все случайные значения за одну блокировку.
func (g *SimulatedGateway) draw() (time.Duration, bool, int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	latency := g.cfg.MinLatency
	if spread := g.cfg.MaxLatency - g.cfg.MinLatency; spread > 0 {
		latency += time.Duration(g.rnd.Int64N(int64(spread) + 1))
	}

	fail := g.cfg.FailureRate > 0 && g.rnd.Float64() < g.cfg.FailureRate
	suffix := 1000 + g.rnd.IntN(9000)

	return latency, fail, suffix
}
