// Package premium рассчитывает страховую премию по типу покрытия,
// длительности поездки и региону назначения.
package premium

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"example.com/travel-insurance/services/policy/internal/domain"
)

var (
	// MinAmount и MaxAmount — границы премии до округления.
	MinAmount = decimal.RequireFromString("25.00")
	MaxAmount = decimal.RequireFromString("2000.00")

	// DefaultMultiplier применяется, если регион не найден.
	DefaultMultiplier = decimal.NewFromInt(1)

	dailyRates = map[domain.CoverageType]decimal.Decimal{
		domain.CoverageBasic:   decimal.RequireFromString("5.00"),
		domain.CoveragePremium: decimal.RequireFromString("10.00"),
	}
)

// Region — строка таблицы регионов.
type Region struct {
	Name       string
	Multiplier decimal.Decimal
}

// DefaultRegions возвращает таблицу регионов по умолчанию.
// Порядок важен: частичное совпадение берёт первую подходящую строку,
// поэтому составные названия идут раньше коротких.
func DefaultRegions() []Region {
	return []Region{
		{Name: "Middle East", Multiplier: decimal.RequireFromString("2.2")},
		{Name: "South America", Multiplier: decimal.RequireFromString("1.8")},
		{Name: "North America", Multiplier: decimal.RequireFromString("1.2")},
		{Name: "Australia", Multiplier: decimal.RequireFromString("1.4")},
		{Name: "Africa", Multiplier: decimal.RequireFromString("2.0")},
		{Name: "Europe", Multiplier: decimal.RequireFromString("1.0")},
		{Name: "Asia", Multiplier: decimal.RequireFromString("1.5")},
	}
}

// Breakdown — составляющие расчёта для ответа на запрос котировки.
type Breakdown struct {
	DailyRate  decimal.Decimal
	Days       int
	Region     string // пусто — регион не найден, применён множитель по умолчанию
	Multiplier decimal.Decimal
	Amount     decimal.Decimal
}

// Calculator рассчитывает премию. Безопасен для конкурентного использования:
// таблица регионов не меняется после создания.
type Calculator struct {
	regions []Region
}

// NewCalculator создаёт калькулятор с указанной таблицей регионов.
// Пустая таблица заменяется таблицей по умолчанию.
func NewCalculator(regions []Region) *Calculator {
	if len(regions) == 0 {
		regions = DefaultRegions()
	}
	cp := make([]Region, len(regions))
	copy(cp, regions)
	return &Calculator{regions: cp}
}

// Regions возвращает копию таблицы регионов.
func (c *Calculator) Regions() []Region {
	cp := make([]Region, len(c.regions))
	copy(cp, c.regions)
	return cp
}

// Calculate возвращает премию, округлённую до двух знаков.
func (c *Calculator) Calculate(coverage domain.CoverageType, start, end time.Time, destination string) (decimal.Decimal, error) {
	b, err := c.Breakdown(coverage, start, end, destination)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Amount, nil
}

// Breakdown рассчитывает премию и возвращает все составляющие.
func (c *Calculator) Breakdown(coverage domain.CoverageType, start, end time.Time, destination string) (Breakdown, error) {
	days := domain.DaysBetween(start, end)
	if days <= 0 {
		return Breakdown{}, domain.ErrInvalidRange
	}

	rate := DailyRate(coverage)
	region, multiplier := c.Multiplier(destination)

	amount := rate.Mul(decimal.NewFromInt(int64(days))).Mul(multiplier)
	if amount.LessThan(MinAmount) {
		amount = MinAmount
	}
	if amount.GreaterThan(MaxAmount) {
		amount = MaxAmount
	}

	return Breakdown{
		DailyRate:  rate,
		Days:       days,
		Region:     region,
		Multiplier: multiplier,
		// Round в decimal округляет половину от нуля
		Amount: amount.Round(2),
	}, nil
}

// DailyRate возвращает дневную ставку покрытия. Неизвестный тип считается Basic.
func DailyRate(coverage domain.CoverageType) decimal.Decimal {
	if rate, ok := dailyRates[coverage]; ok {
		return rate
	}
	return dailyRates[domain.CoverageBasic]
}

// Multiplier находит регион для направления.
// Сначала точное совпадение без учёта регистра, затем первая строка таблицы,
// название которой содержит направление или содержится в нём.
func (c *Calculator) Multiplier(destination string) (string, decimal.Decimal) {
	dest := strings.ToLower(strings.TrimSpace(destination))
	if dest == "" {
		return "", DefaultMultiplier
	}

	for _, r := range c.regions {
		if strings.ToLower(r.Name) == dest {
			return r.Name, r.Multiplier
		}
	}

	for _, r := range c.regions {
		name := strings.ToLower(r.Name)
		if strings.Contains(dest, name) || strings.Contains(name, dest) {
			return r.Name, r.Multiplier
		}
	}

	return "", DefaultMultiplier
}
