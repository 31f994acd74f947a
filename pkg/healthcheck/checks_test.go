package healthcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestComposite(t *testing.T) {
	t.Run("все проверки пройдены", func(t *testing.T) {
		check := Composite(
			func(context.Context) error { return nil },
			func(context.Context) error { return nil },
		)
		assert.NoError(t, check(context.Background()))
	})

	t.Run("возвращается первая ошибка", func(t *testing.T) {
		first := errors.New("first")
		calls := 0
		check := Composite(
			func(context.Context) error { calls++; return first },
			func(context.Context) error { calls++; return errors.New("second") },
		)
		assert.ErrorIs(t, check(context.Background()), first)
		assert.Equal(t, 1, calls)
	})
}

func TestRedisCheck(t *testing.T) {
	t.Run("Redis доступен", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		assert.NoError(t, Redis(rdb)(context.Background()))
	})

	t.Run("Redis остановлен", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()
		mr.Close()

		assert.Error(t, Redis(rdb)(context.Background()))
	})

	t.Run("nil клиент считается здоровым", func(t *testing.T) {
		assert.NoError(t, Redis(nil)(context.Background()))
	})
}
