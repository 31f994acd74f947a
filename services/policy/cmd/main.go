// Policy Service — оформление туристических страховых полисов по оплаченным платежам.
//
//	policy-service serve     HTTP API + outbox worker
//	policy-service migrate   создание таблиц policies и outbox
//	policy-service quote     расчёт премии без запуска сервиса
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/travel-insurance/pkg/config"
	"example.com/travel-insurance/pkg/logger"
)

const (
	serviceName        = "policy-service"
	defaultHTTPPort    = 8082
	defaultMetricsPort = 9092
)

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "policy-service",
		Short:         "Policy Service — оформление страховых полисов",
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
	rootCmd.AddCommand(quoteCmd(load))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

// configLoader загружает конфигурацию и инициализирует логгер.
type configLoader func() (*config.Config, error)
