// Package circuitbreaker защищает вызовы удалённых зависимостей от каскадных сбоев.
//
// Состояния:
//   - Closed: вызовы проходят, считаются подряд идущие ошибки
//   - Open: вызовы отклоняются сразу, без обращения к зависимости
//   - HalfOpen: после RetryTimeout пропускается один пробный вызов
//
// Использование:
//
//	cb := circuitbreaker.New("payment-service", circuitbreaker.DefaultSettings())
//	info, err := circuitbreaker.Execute(ctx, cb, func(ctx context.Context) (*PaymentInfo, error) {
//	    return client.GetPayment(ctx, id)
//	})
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/pkg/metrics"
)

var (
	// ErrOpen — вызов отклонён без обращения к зависимости.
	ErrOpen = errors.New("circuit breaker открыт: сервис временно недоступен")

	// ErrTimeout — вызов не уложился в CallTimeout.
	ErrTimeout = errors.New("превышено время ожидания вызова")

	// errCallerCanceled — контекст отменил сам вызывающий, а не таймаут breaker.
	// Такие вызовы не считаются ни ошибкой, ни успехом зависимости.
	errCallerCanceled = errors.New("вызов отменён вызывающей стороной")
)

// State — состояние breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Settings — настройки Circuit Breaker.
type Settings struct {
	FailureThreshold uint32        // ошибок подряд до перехода в Open
	RetryTimeout     time.Duration // время в Open до пробного вызова
	CallTimeout      time.Duration // ограничение на один вызов; 0 — без ограничения
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		RetryTimeout:     60 * time.Second,
		CallTimeout:      60 * time.Second,
	}
}

// Breaker — обёртка над gobreaker с логированием и метрикой состояния.
type Breaker struct {
	cb          *gobreaker.CircuitBreaker[any]
	name        string
	callTimeout time.Duration
}

// New создаёт Circuit Breaker.
func New(name string, s Settings) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultSettings().FailureThreshold
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: name,
		// В HalfOpen пропускаем ровно один пробный вызов
		MaxRequests: 1,
		// Interval=0: счётчик в Closed сбрасывается только успехом
		Interval: 0,
		Timeout:  s.RetryTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},

		IsExcluded: func(err error) bool {
			return errors.Is(err, errCallerCanceled)
		},

		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, int(fromGobreaker(to)))

			log := logger.With().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Logger()

			switch to {
			case gobreaker.StateOpen:
				log.Warn().Msg("Circuit Breaker ОТКРЫТ — сервис недоступен")
			case gobreaker.StateHalfOpen:
				log.Info().Msg("Circuit Breaker ПОЛУОТКРЫТ — пробуем восстановить")
			case gobreaker.StateClosed:
				log.Info().Msg("Circuit Breaker ЗАКРЫТ — сервис восстановлен")
			}
		},
	})

	metrics.SetCircuitBreakerState(name, int(StateClosed))

	return &Breaker{cb: cb, name: name, callTimeout: s.CallTimeout}
}

// State возвращает текущее состояние. Переход Open → HalfOpen
// по истечении RetryTimeout отражается уже здесь.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// ConsecutiveFailures возвращает число ошибок подряд в текущем поколении.
func (b *Breaker) ConsecutiveFailures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

// Name возвращает имя breaker.
func (b *Breaker) Name() string {
	return b.name
}

// Execute выполняет fn через breaker.
// Открытый breaker возвращает ErrOpen без вызова fn. Вызов, не уложившийся
// в CallTimeout, возвращает ErrTimeout и засчитывается как ошибка.
// Отмена ctx вызывающим возвращает ошибку контекста и счётчики не меняет.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	res, err := b.cb.Execute(func() (any, error) {
		return b.call(ctx, func(ctx context.Context) (any, error) {
			return fn(ctx)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, ErrOpen
		}
		return zero, err
	}

	v, _ := res.(T)
	return v, nil
}

type result struct {
	v   any
	err error
}

// call ограничивает вызов по времени. Горутина с fn завершится сама,
// когда fn увидит отменённый контекст; буфер канала не даёт ей зависнуть.
func (b *Breaker) call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if b.callTimeout <= 0 {
		v, err := fn(ctx)
		return v, callerCanceled(ctx, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{v: v, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-callCtx.Done():
		r = result{err: callCtx.Err()}
	}

	if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w (%s)", ErrTimeout, b.callTimeout)
	}
	return r.v, callerCanceled(ctx, r.err)
}

// callerCanceled помечает ошибку, если к её моменту контекст вызывающего уже отменён.
func callerCanceled(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	return fmt.Errorf("%w: %w", errCallerCanceled, ctx.Err())
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
