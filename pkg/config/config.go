// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию приложения.
// Оба сервиса читают одну структуру, каждый использует свои секции.
type Config struct {
	App            AppConfig
	HTTP           HTTPConfig
	DB             DBConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	Jaeger         JaegerConfig
	Metrics        MetricsConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Gateway        GatewayConfig
	Idempotency    IdempotencyConfig
	Recovery       RecoveryConfig
	PaymentClient  PaymentClientConfig
	CircuitBreaker CircuitBreakerConfig
	Premium        PremiumConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"travel-insurance"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// HTTPConfig содержит настройки HTTP сервера.
type HTTPConfig struct {
	Host         string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"70s"` // больше таймаута вызова платёжного сервиса
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Addr возвращает адрес для HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Поддерживаемые драйверы БД.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DBConfig содержит настройки хранилища.
// SQLite используется для локальной разработки, MySQL — в окружениях.
type DBConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"mysql"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"travel_insurance.db"`
	MySQL      MySQLConfig
}

// MySQLConfig содержит настройки подключения к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"travel_insurance"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN возвращает строку подключения к MySQL.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"true"`
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки подключения к Kafka.
type KafkaConfig struct {
	Enabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

// JaegerConfig содержит настройки трассировки Jaeger.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"false"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"` // OTLP gRPC порт
}

// OTLPEndpoint возвращает OTLP gRPC endpoint для Jaeger.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig содержит настройки Prometheus метрик.
// Локально каждый сервис переопределяет METRICS_PORT.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RateLimitConfig содержит настройки ограничения запросов.
type RateLimitConfig struct {
	Enabled  bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// CORSConfig содержит разрешённые источники для браузерных клиентов.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
}

// GatewayConfig описывает поведение симулятора платёжного шлюза.
type GatewayConfig struct {
	MinLatency         time.Duration `env:"GATEWAY_MIN_LATENCY" envDefault:"100ms"`
	MaxLatency         time.Duration `env:"GATEWAY_MAX_LATENCY" envDefault:"500ms"`
	FailureRate        float64       `env:"GATEWAY_FAILURE_RATE" envDefault:"0.1"`
	PayPalExtraLatency time.Duration `env:"GATEWAY_PAYPAL_EXTRA_LATENCY" envDefault:"200ms"`
}

// IdempotencyConfig содержит настройки кэша идемпотентности.
type IdempotencyConfig struct {
	TTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// RecoveryConfig содержит настройки восстановления зависших платежей.
type RecoveryConfig struct {
	Interval   time.Duration `env:"RECOVERY_INTERVAL" envDefault:"1m"`
	StuckAfter time.Duration `env:"RECOVERY_STUCK_AFTER" envDefault:"5m"`
	BatchSize  int           `env:"RECOVERY_BATCH_SIZE" envDefault:"100"`
}

// PaymentClientConfig содержит настройки клиента платёжного сервиса.
type PaymentClientConfig struct {
	BaseURL string        `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:8081"`
	Timeout time.Duration `env:"PAYMENT_SERVICE_TIMEOUT" envDefault:"30s"`
}

// CircuitBreakerConfig содержит настройки Circuit Breaker для платёжного сервиса.
type CircuitBreakerConfig struct {
	FailureThreshold uint32        `env:"CB_FAILURE_THRESHOLD" envDefault:"5"`
	RetryTimeout     time.Duration `env:"CB_RETRY_TIMEOUT" envDefault:"60s"`
	CallTimeout      time.Duration `env:"CB_CALL_TIMEOUT" envDefault:"60s"`
}

// PremiumConfig содержит настройки расчёта премии.
type PremiumConfig struct {
	RegionsFile string        `env:"PREMIUM_REGIONS_FILE" envDefault:""` // YAML с таблицей регионов
	Tolerance   string        `env:"PREMIUM_TOLERANCE" envDefault:"1.00"`
	QuoteTTL    time.Duration `env:"QUOTE_TTL" envDefault:"24h"`
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файл не найден)
	_ = godotenv.Load()

	return parse()
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}

	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет значения, которые env не может проверить сам.
func (c *Config) validate() error {
	switch c.DB.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("неизвестный DB_DRIVER %q (ожидается mysql или sqlite)", c.DB.Driver)
	}
	if c.Gateway.MinLatency > c.Gateway.MaxLatency {
		return fmt.Errorf("GATEWAY_MIN_LATENCY (%s) больше GATEWAY_MAX_LATENCY (%s)",
			c.Gateway.MinLatency, c.Gateway.MaxLatency)
	}
	if c.Gateway.FailureRate < 0 || c.Gateway.FailureRate > 1 {
		return fmt.Errorf("GATEWAY_FAILURE_RATE должен быть в диапазоне [0, 1], получено %v", c.Gateway.FailureRate)
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("CB_FAILURE_THRESHOLD должен быть больше 0")
	}
	return nil
}

// WithServicePorts подставляет порты сервиса, если HTTP_PORT и METRICS_PORT
// не заданы явно. Так оба сервиса запускаются локально без конфликта портов.
func (c *Config) WithServicePorts(httpPort, metricsPort int) *Config {
	if _, ok := os.LookupEnv("HTTP_PORT"); !ok {
		c.HTTP.Port = httpPort
	}
	if _, ok := os.LookupEnv("METRICS_PORT"); !ok {
		c.Metrics.Port = metricsPort
	}
	return c
}

// IsDevelopment возвращает true, если приложение запущено в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true, если приложение запущено в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
