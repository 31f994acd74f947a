package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound — запись outbox не найдена.
var ErrNotFound = errors.New("запись outbox не найдена")

// Repository — доступ к таблице outbox для Worker.
type Repository interface {
	// GetUnprocessed возвращает неотправленные записи своего агрегата.
	GetUnprocessed(ctx context.Context, limit int) ([]*Record, error)

	MarkProcessed(ctx context.Context, id string) error

	// MarkFailed увеличивает retry_count и сохраняет текст ошибки.
	MarkFailed(ctx context.Context, id string, err error) error

	// DeleteProcessedBefore удаляет отправленные записи старше before.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Insert пишет запись в рамках транзакции вызывающего репозитория.
//
//	db.Transaction(func(tx *gorm.DB) error {
//	    ... изменение платежа ...
//	    return outbox.Insert(tx, record)
//	})
func Insert(tx *gorm.DB, record *Record) error {
	return tx.Create(modelFromRecord(record)).Error
}

// AutoMigrate создаёт таблицу outbox.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Model{})
}

// gormRepository — GORM реализация Repository.
// aggregateType разделяет записи сервисов при общей БД.
type gormRepository struct {
	db            *gorm.DB
	aggregateType string
}

// NewRepository создаёт репозиторий outbox для типа агрегата.
func NewRepository(db *gorm.DB, aggregateType string) Repository {
	return &gormRepository{db: db, aggregateType: aggregateType}
}

// GetUnprocessed возвращает записи по времени создания.
// Записи с большим retry_count уходят в конец (простой backoff).
func (r *gormRepository) GetUnprocessed(ctx context.Context, limit int) ([]*Record, error) {
	var models []Model

	if err := r.db.WithContext(ctx).
		Where("processed_at IS NULL AND aggregate_type = ?", r.aggregateType).
		Order("retry_count ASC, created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*Record, len(models))
	for i := range models {
		result[i] = models[i].toRecord()
	}
	return result, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&Model{}).
		Where("id = ?", id).
		Update("processed_at", time.Now().UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) MarkFailed(ctx context.Context, id string, err error) error {
	result := r.db.WithContext(ctx).Model(&Model{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  err.Error(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProcessedBefore удаляет пачками по 1000, чтобы не держать долгие блокировки.
// Сначала выбираются id: DELETE ... LIMIT не поддерживается SQLite.
func (r *gormRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&Model{}).
		Where("processed_at IS NOT NULL AND processed_at < ? AND aggregate_type = ?", before, r.aggregateType).
		Limit(1000).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Model{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
