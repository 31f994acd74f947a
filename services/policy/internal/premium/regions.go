package premium

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// regionsFile — формат YAML файла с таблицей регионов:
//
//	regions:
//	  - name: Middle East
//	    multiplier: "2.2"
//	  - name: Europe
//	    multiplier: "1.0"
type regionsFile struct {
	Regions []struct {
		Name       string `yaml:"name"`
		Multiplier string `yaml:"multiplier"`
	} `yaml:"regions"`
}

// LoadRegions читает таблицу регионов из YAML файла с сохранением порядка строк.
func LoadRegions(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение таблицы регионов %s: %w", path, err)
	}
	return ParseRegions(data)
}

// ParseRegions разбирает YAML таблицу регионов.
func ParseRegions(data []byte) ([]Region, error) {
	var f regionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("разбор таблицы регионов: %w", err)
	}
	if len(f.Regions) == 0 {
		return nil, fmt.Errorf("таблица регионов пуста")
	}

	regions := make([]Region, 0, len(f.Regions))
	seen := make(map[string]struct{}, len(f.Regions))
	for i, r := range f.Regions {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("регион #%d: пустое название", i+1)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("регион %q указан дважды", name)
		}
		seen[key] = struct{}{}

		m, err := parseMultiplier(r.Multiplier)
		if err != nil {
			return nil, fmt.Errorf("регион %q: %w", name, err)
		}
		regions = append(regions, Region{Name: name, Multiplier: m})
	}

	return regions, nil
}

func parseMultiplier(s string) (decimal.Decimal, error) {
	m, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("некорректный множитель %q: %w", s, err)
	}
	if !m.IsPositive() {
		return decimal.Zero, fmt.Errorf("множитель должен быть больше 0, получено %s", m)
	}
	return m, nil
}
