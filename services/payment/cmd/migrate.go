package main

import (
	"fmt"

	"github.com/spf13/cobra"

	dbpkg "example.com/travel-insurance/pkg/db"
	"example.com/travel-insurance/pkg/logger"
	"example.com/travel-insurance/services/payment/internal/repository"
)

func migrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Создать или обновить таблицы payments и outbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			db, err := dbpkg.Connect(cfg.DB, cfg.IsDevelopment())
			if err != nil {
				return err
			}
			defer func() { _ = dbpkg.Close(db) }()

			if err := repository.AutoMigrate(db); err != nil {
				return fmt.Errorf("ошибка миграции: %w", err)
			}

			logger.Info().Str("driver", cfg.DB.Driver).Msg("Миграция Payment Service выполнена")
			return nil
		},
	}
}
