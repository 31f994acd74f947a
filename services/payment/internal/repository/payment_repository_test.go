package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	dbpkg "example.com/travel-insurance/pkg/db"
	"example.com/travel-insurance/pkg/kafka"
	"example.com/travel-insurance/pkg/outbox"
	"example.com/travel-insurance/services/payment/internal/domain"
)

// =============================================================================
// Вспомогательные функции
// =============================================================================

// setupMockDB создаёт мок MySQL с GORM.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Ошибка создания sqlmock")
	t.Cleanup(func() { _ = db.Close() })

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Ошибка инициализации GORM")

	return gormDB, mock
}

// setupSQLite создаёт изолированную БД в памяти со схемой.
func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := dbpkg.ConnectSQLite(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbpkg.Close(db) })

	require.NoError(t, AutoMigrate(db))
	return db
}

func newPending(key string) *domain.Payment {
	p := &domain.Payment{
		ID:       uuid.New().String(),
		Amount:   decimal.RequireFromString("150.00"),
		Currency: "USD",
		Method:   domain.MethodCreditCard,
		Status:   domain.PaymentStatusPending,
	}
	if key != "" {
		p.IdempotencyKey = &key
	}
	return p
}

func completedEvent(t *testing.T, p *domain.Payment) *outbox.Record {
	t.Helper()
	rec, err := outbox.NewRecord(context.Background(), outbox.AggregatePayment, p.ID,
		kafka.EventPaymentCompleted, kafka.TopicPaymentEvents, map[string]string{"payment_id": p.ID})
	require.NoError(t, err)
	return rec
}

// =============================================================================
// sqlmock: маппинг ошибок драйвера MySQL
// =============================================================================

func TestCreate_MySQLErrors(t *testing.T) {
	tests := []struct {
		name        string
		dbErr       error
		expectedErr error
	}{
		{name: "дубликат ключа идемпотентности", dbErr: errors.New("Error 1062: Duplicate entry 'k-1' for key 'idempotency_key'"), expectedErr: domain.ErrDuplicatePayment},
		{name: "ошибка соединения", dbErr: sql.ErrConnDone, expectedErr: sql.ErrConnDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock := setupMockDB(t)
			repo := NewPaymentRepository(gormDB)

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO `payments`").WillReturnError(tt.dbErr)
			mock.ExpectRollback()

			err := repo.Create(context.Background(), newPending("k-1"))
			assert.ErrorIs(t, err, tt.expectedErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetByID_MySQLNotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewPaymentRepository(gormDB)

	mock.ExpectQuery("SELECT \\* FROM `payments` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTerminal_MySQLRollbackOnOutboxError(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewPaymentRepository(gormDB)

	p := newPending("")
	require.NoError(t, p.Complete("TXN_1"))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `payments` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `outbox`").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.SaveTerminal(context.Background(), p, completedEvent(t, p))
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// SQLite: поведение на реальной схеме
// =============================================================================

func TestPaymentRepository_CreateAndGet(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	p := newPending("k-create")
	require.NoError(t, repo.Create(ctx, p))
	assert.False(t, p.CreatedAt.IsZero())

	byID, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, byID.Amount.Equal(decimal.RequireFromString("150")))
	assert.Equal(t, domain.MethodCreditCard, byID.Method)
	assert.Equal(t, domain.PaymentStatusPending, byID.Status)

	byKey, err := repo.GetByIdempotencyKey(ctx, "k-create")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byKey.ID)

	_, err = repo.GetByIdempotencyKey(ctx, "k-other")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestPaymentRepository_UniqueIdempotencyKey(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPending("k-dup")))
	assert.ErrorIs(t, repo.Create(ctx, newPending("k-dup")), domain.ErrDuplicatePayment)

	t.Run("платежи без ключа не конфликтуют", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newPending("")))
		require.NoError(t, repo.Create(ctx, newPending("")))
	})
}

func TestPaymentRepository_ConcurrentCreateSameKey(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dups    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newPending("k-race"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrDuplicatePayment):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, dups)
}

func TestPaymentRepository_SaveTerminal(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	p := newPending("k-term")
	require.NoError(t, repo.Create(ctx, p))
	require.NoError(t, p.Complete("TXN_CREDITCARD_20260101000000_1234"))

	require.NoError(t, repo.SaveTerminal(ctx, p, completedEvent(t, p)))

	saved, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, saved.Status)
	require.NotNil(t, saved.TransactionID)
	assert.Equal(t, "TXN_CREDITCARD_20260101000000_1234", *saved.TransactionID)
	assert.NotNil(t, saved.ProcessedAt)

	events, err := outbox.NewRepository(db, outbox.AggregatePayment).GetUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, p.ID, events[0].AggregateID)
	assert.Equal(t, kafka.EventPaymentCompleted, events[0].EventType)

	t.Run("терминальная строка не перезаписывается", func(t *testing.T) {
		again := *saved
		again.Status = domain.PaymentStatusFailed
		reason := "late failure"
		again.FailureReason = &reason

		err := repo.SaveTerminal(ctx, &again, nil)
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

		current, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCompleted, current.Status)

		events, err := outbox.NewRepository(db, outbox.AggregatePayment).GetUnprocessed(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, events, 1, "отклонённая запись не добавляет событие")
	})

	t.Run("неизвестный платёж", func(t *testing.T) {
		ghost := newPending("")
		require.NoError(t, ghost.Fail("x"))
		assert.ErrorIs(t, repo.SaveTerminal(ctx, ghost, nil), domain.ErrPaymentNotFound)
	})

	t.Run("нетерминальный статус", func(t *testing.T) {
		assert.ErrorIs(t, repo.SaveTerminal(ctx, newPending(""), nil), domain.ErrInvalidTransition)
	})
}

func TestPaymentRepository_GetStuckPending(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	old := newPending("")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, old))

	fresh := newPending("")
	require.NoError(t, repo.Create(ctx, fresh))

	oldDone := newPending("")
	oldDone.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, oldDone))
	require.NoError(t, oldDone.Fail("declined"))
	require.NoError(t, repo.SaveTerminal(ctx, oldDone, nil))

	stuck, err := repo.GetStuckPending(ctx, 5*time.Minute, 100)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, old.ID, stuck[0].ID)
}
