package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config содержит все настройки сервиса
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		BodyLimit       int // максимальный размер загрузки в МБ
	}

	Postgres struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		Timeout  time.Duration
		PoolSize int // размер пула соединений
	}

	Redis struct {
		Host     string
		Port     int
		Password string
		DB       int
	}

	Kafka struct {
		Brokers     []string `mapstructure:"brokers"`
		GroupID     string   `mapstructure:"group_id"`
		EventsTopic string   `mapstructure:"events_topic"` // топик событий продуктов
	}

	Import struct {
		BatchSize     int           // размер пачки upsert
		MaxRows       int           // потолок строк в одном файле
		SkipThreshold float64       // доля пропущенных строк, после которой задание падает
		JobRetention  time.Duration // срок хранения задания после конечного статуса
		KeepAlive     time.Duration // интервал keep-alive сигналов в потоке прогресса
	}

	Webhooks struct {
		Workers      int           // размер пула доставки
		QueueSize    int           // глубина очереди доставки
		MaxAttempts  int           // потолок попыток на одну доставку
		RetryBackoff time.Duration // базовая задержка экспоненциального повтора
		Timeout      time.Duration // таймаут одного запроса доставки
		TestTimeout  time.Duration // таймаут тестовой доставки
	}

	Metrics struct {
		Enabled bool
		Port    int `mapstructure:"port"`
	}

	Security struct {
		CORSAllowOrigins []string
	}
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	viper.SetConfigName(configFile)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("../config")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Продолжаем, если файл не найден, будем использовать только переменные окружения
	}

	setDefaults()
	bindEnvVariables()

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	cfg.ENV = viper.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	return &cfg, nil
}

// setDefaults устанавливает значения по умолчанию
func setDefaults() {
	// Основные настройки
	viper.SetDefault("appName", "import-service")
	viper.SetDefault("version", "1.0.0")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("env", "development")

	// Настройки сервера
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", "60s")
	viper.SetDefault("server.writeTimeout", "0s") // SSE-поток живет дольше любого фиксированного таймаута
	viper.SetDefault("server.shutdownTimeout", "5s")
	viper.SetDefault("server.bodyLimit", 256) // 256 МБ, с запасом на 500 тыс. строк

	// Настройки Postgres
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "postgres")
	viper.SetDefault("postgres.dbname", "postgres")
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("postgres.timeout", "5s")
	viper.SetDefault("postgres.poolSize", 10)

	// Настройки Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Настройки Kafka
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.groupID", "import-service")
	viper.SetDefault("kafka.eventsTopic", "product-events")

	// Настройки импорта
	viper.SetDefault("import.batchSize", 500)
	viper.SetDefault("import.maxRows", 500000)
	viper.SetDefault("import.skipThreshold", 0.5)
	viper.SetDefault("import.jobRetention", "1h")
	viper.SetDefault("import.keepAlive", "15s")

	// Настройки доставки вебхуков
	viper.SetDefault("webhooks.workers", 8)
	viper.SetDefault("webhooks.queueSize", 256)
	viper.SetDefault("webhooks.maxAttempts", 3)
	viper.SetDefault("webhooks.retryBackoff", "1s")
	viper.SetDefault("webhooks.timeout", "5s")
	viper.SetDefault("webhooks.testTimeout", "10s")

	// Настройки метрик
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	// Настройки безопасности
	viper.SetDefault("security.corsAllowOrigins", []string{"*"})
}

// bindEnvVariables привязывает переменные окружения к конфигурации
func bindEnvVariables() {
	// Основные настройки
	viper.BindEnv("appName", "APP_NAME")
	viper.BindEnv("version", "APP_VERSION")
	viper.BindEnv("logLevel", "LOG_LEVEL")
	viper.BindEnv("env", "APP_ENV")

	// Настройки сервера
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.readTimeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.writeTimeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.shutdownTimeout", "SERVER_SHUTDOWN_TIMEOUT")
	viper.BindEnv("server.bodyLimit", "SERVER_BODY_LIMIT")

	// Настройки Postgres
	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.dbname", "POSTGRES_DBNAME")
	viper.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	viper.BindEnv("postgres.timeout", "POSTGRES_TIMEOUT")
	viper.BindEnv("postgres.poolSize", "POSTGRES_POOL_SIZE")

	// Настройки Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	// Настройки Kafka
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("kafka.groupID", "KAFKA_GROUP_ID")
	viper.BindEnv("kafka.eventsTopic", "KAFKA_EVENTS_TOPIC")

	// Настройки импорта
	viper.BindEnv("import.batchSize", "IMPORT_BATCH_SIZE")
	viper.BindEnv("import.maxRows", "IMPORT_MAX_ROWS")
	viper.BindEnv("import.skipThreshold", "IMPORT_SKIP_THRESHOLD")
	viper.BindEnv("import.jobRetention", "IMPORT_JOB_RETENTION")
	viper.BindEnv("import.keepAlive", "IMPORT_KEEP_ALIVE")

	// Настройки доставки вебхуков
	viper.BindEnv("webhooks.workers", "WEBHOOKS_WORKERS")
	viper.BindEnv("webhooks.queueSize", "WEBHOOKS_QUEUE_SIZE")
	viper.BindEnv("webhooks.maxAttempts", "WEBHOOKS_MAX_ATTEMPTS")
	viper.BindEnv("webhooks.retryBackoff", "WEBHOOKS_RETRY_BACKOFF")
	viper.BindEnv("webhooks.timeout", "WEBHOOKS_TIMEOUT")
	viper.BindEnv("webhooks.testTimeout", "WEBHOOKS_TEST_TIMEOUT")

	// Настройки метрик
	viper.BindEnv("metrics.enabled", "METRICS_ENABLED")
	viper.BindEnv("metrics.port", "METRICS_PORT")

	// Настройки безопасности
	viper.BindEnv("security.corsAllowOrigins", "CORS_ALLOW_ORIGINS")
}
