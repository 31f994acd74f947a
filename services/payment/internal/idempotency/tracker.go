// Package idempotency отслеживает обработанные ключи идемпотентности.
//
// Источник истины — таблица payments (уникальный индекс idempotency_key).
// Кэш только ускоряет повторные запросы: его ошибки логируются и не
// влияют на результат.
package idempotency

import (
	"context"
	"errors"

	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/services/payment/internal/domain"
)

// Store — авторитетное хранилище платежей.
type Store interface {
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)
}

// Tracker объединяет кэш и хранилище.
type Tracker struct {
	cache Cache
	store Store
}

// NewTracker создаёт трекер идемпотентности.
func NewTracker(cache Cache, store Store) *Tracker {
	return &Tracker{cache: cache, store: store}
}

// IsProcessed сообщает, есть ли платёж для ключа.
// Оркестратору нужна сама строка, поэтому он вызывает Lookup; IsProcessed
// отвечает только да/нет и не читает строку из БД при попадании в кэш.
func (t *Tracker) IsProcessed(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	if _, found := t.cached(ctx, key); found {
		return true, nil
	}

	p, err := t.fromStore(ctx, key)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// Lookup возвращает платёж для ключа или nil, nil. Точка входа
// ProcessPayment: повтор получает сохранённую проекцию платежа.
// Попадание в кэш всё равно читает строку из БД: статус мог измениться.
func (t *Tracker) Lookup(ctx context.Context, key string) (*domain.Payment, error) {
	if key == "" {
		return nil, nil
	}

	if id, found := t.cached(ctx, key); found {
		p, err := t.store.GetByID(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, err
		}
		// Кэш указывает на несуществующую строку — идём по ключу
		logger.Ctx(ctx).Warn().
			Str("idempotency_key", key).
			Str("payment_id", id).
			Msg("Кэш идемпотентности ссылается на отсутствующий платёж")
	}

	p, err := t.fromStore(ctx, key)
	if err != nil || p == nil {
		return nil, err
	}

	// Прогреваем кэш для следующих повторов
	t.warm(ctx, key, p.ID)
	return p, nil
}

// MarkProcessed записывает соответствие ключа платежу в кэш.
func (t *Tracker) MarkProcessed(ctx context.Context, key, paymentID string) error {
	if key == "" {
		return nil
	}
	return t.cache.Set(ctx, key, paymentID)
}

func (t *Tracker) cached(ctx context.Context, key string) (string, bool) {
	id, found, err := t.cache.Get(ctx, key)
	if err != nil {
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("idempotency_key", key).
			Msg("Ошибка кэша идемпотентности, проверяем БД")
		return "", false
	}
	return id, found
}

func (t *Tracker) fromStore(ctx context.Context, key string) (*domain.Payment, error) {
	p, err := t.store.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (t *Tracker) warm(ctx context.Context, key, paymentID string) {
	if err := t.cache.Set(ctx, key, paymentID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("idempotency_key", key).Msg("Не удалось записать ключ в кэш")
	}
}
