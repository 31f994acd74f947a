package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	dbpkg "example.com/travel-insurance/pkg/db"
	"example.com/travel-insurance/services/payment/internal/idempotency"
	"example.com/travel-insurance/services/payment/internal/processor"
	"example.com/travel-insurance/services/payment/internal/repository"
	"example.com/travel-insurance/services/payment/internal/service"
)

// recoverCmd выполняет один проход восстановления без запуска API.
// Кэш идемпотентности здесь не нужен: ключи восстановленных платежей
// находятся по БД.
func recoverCmd(load configLoader) *cobra.Command {
	var stuckAfter string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Перевести зависшие PENDING платежи в FAILED",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			svcCfg := service.Config{StuckAfter: cfg.Recovery.StuckAfter, BatchSize: cfg.Recovery.BatchSize}
			if cmd.Flags().Changed("stuck-after") {
				if svcCfg.StuckAfter, err = parseDuration(stuckAfter); err != nil {
					return err
				}
			}

			db, err := dbpkg.Connect(cfg.DB, cfg.IsDevelopment())
			if err != nil {
				return err
			}
			defer func() { _ = dbpkg.Close(db) }()

			repo := repository.NewPaymentRepository(db)
			svc := service.NewPaymentService(
				repo,
				idempotency.NewTracker(idempotency.NewMemoryCache(), repo),
				processor.NewFactory(),
				svcCfg,
			)

			n, err := svc.RecoverStuckPayments(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Восстановлено платежей: %d\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&stuckAfter, "stuck-after", "", "возраст PENDING платежа, после которого он считается зависшим (например 5m)")

	return cmd
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность %q: %w", s, err)
	}
	return d, nil
}
