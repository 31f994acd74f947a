package service

import (
	"context"
	"time"

	"example.com/travel-insurance/pkg/logger"
)

// Recoverer — операция одного прохода восстановления.
type Recoverer interface {
	RecoverStuckPayments(ctx context.Context) (int, error)
}

// RecoveryWorker периодически закрывает платежи, зависшие в PENDING
// (например, после падения процесса между созданием и записью результата).
type RecoveryWorker struct {
	recoverer Recoverer
	interval  time.Duration
}

// NewRecoveryWorker создаёт воркер восстановления.
func NewRecoveryWorker(r Recoverer, interval time.Duration) *RecoveryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RecoveryWorker{recoverer: r, interval: interval}
}

// Run блокирует выполнение до отмены контекста.
func (w *RecoveryWorker) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().Dur("interval", w.interval).Msg("Запуск Recovery Worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Recovery Worker")
			return
		case <-ticker.C:
			if _, err := w.recoverer.RecoverStuckPayments(ctx); err != nil {
				log.Error().Err(err).Msg("Ошибка восстановления зависших платежей")
			}
		}
	}
}
