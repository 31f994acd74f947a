package outbox

import (
	"context"
	"time"

	"example.com/travel-insurance/pkg/kafka"
	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/pkg/metrics"
)

// Publisher — отправка сообщений; реализуется kafka.Producer.
type Publisher interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
	SendToDLQ(ctx context.Context, original *kafka.Message, reason string) error
}

// WorkerConfig — настройки Worker.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxRetries — после стольких неудачных отправок запись уходит в DLQ.
	MaxRetries       int
	CleanupInterval  time.Duration
	CleanupRetention time.Duration
}

// DefaultWorkerConfig возвращает конфигурацию по умолчанию.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:     1 * time.Second,
		BatchSize:        100,
		MaxRetries:       5,
		CleanupInterval:  1 * time.Hour,
		CleanupRetention: 7 * 24 * time.Hour,
	}
}

// Worker читает outbox и публикует события (at-least-once).
type Worker struct {
	repo      Repository
	publisher Publisher
	cfg       WorkerConfig
	aggregate string
}

// NewWorker создаёт Worker для записей одного типа агрегата.
func NewWorker(repo Repository, publisher Publisher, cfg WorkerConfig, aggregate string) *Worker {
	return &Worker{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		aggregate: aggregate,
	}
}

// Run блокирует выполнение до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With().Str("aggregate", w.aggregate).Logger()
	log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Outbox Worker")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Outbox Worker")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

// ProcessBatch отправляет одну пачку записей и возвращает число отправленных.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	log := logger.FromContext(ctx)

	records, err := w.repo.GetUnprocessed(ctx, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Str("aggregate", w.aggregate).Msg("Ошибка чтения outbox")
		return 0
	}

	sent := 0
	for _, record := range records {
		if ctx.Err() != nil {
			return sent
		}

		if record.RetryCount >= w.cfg.MaxRetries {
			w.deadLetter(ctx, record)
			continue
		}

		if w.publish(ctx, record) {
			sent++
		}
	}
	return sent
}

func (w *Worker) publish(ctx context.Context, record *Record) bool {
	log := logger.FromContext(ctx)

	if err := w.publisher.SendMessage(ctx, record.Message()); err != nil {
		log.Error().
			Err(err).
			Str("outbox_id", record.ID).
			Str("topic", record.Topic).
			Msg("Ошибка отправки события в Kafka")
		metrics.RecordOutbox(w.aggregate, "error")

		if markErr := w.repo.MarkFailed(ctx, record.ID, err); markErr != nil {
			log.Error().Err(markErr).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как failed")
		}
		return false
	}

	if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
		// Событие уйдёт повторно на следующем тике: потребители идемпотентны по ключу
		log.Error().Err(err).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как обработанной")
		return false
	}

	metrics.RecordOutbox(w.aggregate, "sent")
	log.Debug().
		Str("outbox_id", record.ID).
		Str("event_type", record.EventType).
		Str("aggregate_id", record.AggregateID).
		Msg("Событие отправлено в Kafka")
	return true
}

// deadLetter переносит запись в DLQ и выводит её из очереди.
// Если DLQ тоже недоступна, запись остаётся и будет повторена.
func (w *Worker) deadLetter(ctx context.Context, record *Record) {
	log := logger.FromContext(ctx).With().
		Str("outbox_id", record.ID).
		Str("event_type", record.EventType).
		Str("aggregate_id", record.AggregateID).
		Int("retry_count", record.RetryCount).
		Logger()

	reason := "превышен лимит попыток отправки"
	if record.LastError != nil {
		reason = *record.LastError
	}

	if err := w.publisher.SendToDLQ(ctx, record.Message(), reason); err != nil {
		log.Error().Err(err).Msg("Ошибка отправки в DLQ")
		return
	}

	log.Warn().Msg("Dead letter: событие перенесено в DLQ")
	metrics.RecordOutbox(w.aggregate, "dead_letter")

	if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
		log.Error().Err(err).Msg("Ошибка пометки dead letter")
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	log := logger.FromContext(ctx)

	deleted, err := w.repo.DeleteProcessedBefore(ctx, time.Now().UTC().Add(-w.cfg.CleanupRetention))
	if err != nil {
		log.Error().Err(err).Str("aggregate", w.aggregate).Msg("Ошибка очистки outbox")
		return
	}

	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Str("aggregate", w.aggregate).Msg("Очистка отправленных записей outbox")
	}
}
