package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/travel-insurance/services/policy/internal/domain"
	"example.com/travel-insurance/services/policy/internal/premium"
)

// quoteCmd считает премию локально: без БД и без Payment Service.
// Удобно для проверки файла регионов перед выкладкой.
func quoteCmd(load configLoader) *cobra.Command {
	var (
		coverage    string
		destination string
		start       string
		end         string
		regionsFile string
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Рассчитать премию для поездки",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("regions") {
				regionsFile = cfg.Premium.RegionsFile
			}

			calculator, err := newCalculator(regionsFile)
			if err != nil {
				return err
			}

			cov, ok := domain.ParseCoverage(coverage)
			if !ok {
				return fmt.Errorf("неизвестный тип покрытия %q", coverage)
			}
			startDate, err := domain.ParseDate(start)
			if err != nil {
				return fmt.Errorf("некорректная дата начала %q: %w", start, err)
			}
			endDate, err := domain.ParseDate(end)
			if err != nil {
				return fmt.Errorf("некорректная дата окончания %q: %w", end, err)
			}

			b, err := calculator.Breakdown(cov, startDate, endDate, destination)
			if err != nil {
				return err
			}

			region := b.Region
			if region == "" {
				region = "-"
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Покрытие\t%s\n", cov)
			fmt.Fprintf(w, "Направление\t%s\n", destination)
			fmt.Fprintf(w, "Регион\t%s\n", region)
			fmt.Fprintf(w, "Ставка в день\t%s\n", b.DailyRate.StringFixed(2))
			fmt.Fprintf(w, "Дней\t%d\n", b.Days)
			fmt.Fprintf(w, "Множитель\t%s\n", b.Multiplier.String())
			fmt.Fprintf(w, "Премия\t%s GEL\n", b.Amount.StringFixed(2))
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&coverage, "coverage", "basic", "тип покрытия: basic или premium")
	cmd.Flags().StringVar(&destination, "destination", "", "направление поездки")
	cmd.Flags().StringVar(&start, "start", "", "дата начала, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "дата окончания, YYYY-MM-DD")
	cmd.Flags().StringVar(&regionsFile, "regions", "", "YAML с таблицей регионов (по умолчанию PREMIUM_REGIONS_FILE)")
	_ = cmd.MarkFlagRequired("destination")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

// newCalculator создаёт калькулятор со встроенной таблицей регионов
// или с таблицей из файла.
func newCalculator(regionsFile string) (*premium.Calculator, error) {
	if regionsFile == "" {
		return premium.NewCalculator(nil), nil
	}
	regions, err := premium.LoadRegions(regionsFile)
	if err != nil {
		return nil, err
	}
	return premium.NewCalculator(regions), nil
}
