package processor

import (
	"fmt"
	"time"

	"example.com/travel-insurance/services/payment/internal/domain"
)

// Factory выбирает стратегию по способу оплаты.
// Набор стратегий фиксируется при создании; после этого Factory только читается.
type Factory struct {
	processors map[domain.PaymentMethod]Processor
}

// NewFactory регистрирует стратегии по их Methods().
// Для способа, заявленного несколькими стратегиями, побеждает последняя.
func NewFactory(processors ...Processor) *Factory {
	f := &Factory{processors: make(map[domain.PaymentMethod]Processor)}
	for _, p := range processors {
		for _, m := range p.Methods() {
			f.processors[m] = p
		}
	}
	return f
}

// NewDefaultFactory собирает стандартный набор: карты и PayPal поверх одного шлюза.
func NewDefaultFactory(gw Gateway, paypalDelay time.Duration) *Factory {
	return NewFactory(
		NewCardProcessor(gw),
		NewPayPalProcessor(gw, paypalDelay),
	)
}

// Create возвращает стратегию для способа оплаты.
func (f *Factory) Create(method domain.PaymentMethod) (Processor, error) {
	p, ok := f.processors[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMethod, method)
	}
	return p, nil
}

// CreateByName разбирает имя без учёта регистра и возвращает стратегию.
// Нераспознанное имя даёт ErrInvalidMethodName, а не ErrUnsupportedMethod.
func (f *Factory) CreateByName(name string) (Processor, error) {
	method, err := domain.ParseMethod(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, name)
	}
	return f.Create(method)
}

// SupportedMethods возвращает зарегистрированные способы в порядке domain.AllMethods.
func (f *Factory) SupportedMethods() []domain.PaymentMethod {
	methods := make([]domain.PaymentMethod, 0, len(f.processors))
	for _, m := range domain.AllMethods {
		if _, ok := f.processors[m]; ok {
			methods = append(methods, m)
		}
	}
	return methods
}
