package outbox

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"example.com/travel-insurance/pkg/config"
	"example.com/travel-insurance/pkg/kafka"
	"example.com/travel-insurance/pkg/logger"
)

// StartKafkaWorker запускает Worker агрегата в отдельной горутине.
// При выключенной Kafka ничего не запускает: события копятся в таблице outbox
// и уйдут после включения. Возвращаемая функция закрывает Producer; вызывать
// её после wg.Wait().
func StartKafkaWorker(ctx context.Context, wg *sync.WaitGroup, db *gorm.DB, cfg config.KafkaConfig, aggregate string) (func() error, error) {
	log := logger.With().Str("aggregate", aggregate).Logger()

	if !cfg.Enabled {
		log.Warn().Msg("Kafka отключена — события остаются в outbox")
		return func() error { return nil }, nil
	}

	if err := kafka.EnsureTopics(cfg.Brokers, kafka.DefaultTopics()); err != nil {
		log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
	}

	producer, err := kafka.NewProducer(kafka.Config{Brokers: cfg.Brokers})
	if err != nil {
		return nil, err
	}

	worker := NewWorker(NewRepository(db, aggregate), producer, DefaultWorkerConfig(), aggregate)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Паника в Outbox Worker")
			}
		}()
		worker.Run(ctx)
	}()

	return producer.Close, nil
}
