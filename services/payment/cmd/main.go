// Payment Service — приём и проведение платежей с идемпотентностью по ключу.
//
//	payment-service serve     HTTP API + recovery worker + outbox worker
//	payment-service migrate   создание таблиц payments и outbox
//	payment-service recover   один проход восстановления зависших платежей
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/travel-insurance/pkg/config"
	"example.com/travel-insurance/pkg/logger"
)

const (
	serviceName        = "payment-service"
	defaultHTTPPort    = 8081
	defaultMetricsPort = 9091
)

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "payment-service",
		Short:         "Payment Service — проведение платежей",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "путь к .env файлу (по умолчанию ./.env, если есть)")

	load := func() (*config.Config, error) {
		var (
			cfg *config.Config
			err error
		)
		if envFile != "" {
			cfg, err = config.LoadFromFile(envFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return nil, err
		}

		logger.Init(logger.Config{
			Level:   cfg.App.LogLevel,
			Pretty:  cfg.App.LogPretty,
			Service: serviceName,
		})
		return cfg.WithServicePorts(defaultHTTPPort, defaultMetricsPort), nil
	}

	rootCmd.AddCommand(serveCmd(load))
	rootCmd.AddCommand(migrateCmd(load))
	rootCmd.AddCommand(recoverCmd(load))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

// configLoader загружает конфигурацию и инициализирует логгер.
type configLoader func() (*config.Config, error)
