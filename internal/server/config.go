package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config — конфигурация сервера, заполняется из переменных окружения
type Config struct {
	// ListenAddr адрес HTTP listener'а
	ListenAddr string `env:"TURNKEEPER_LISTEN_ADDR" envDefault:":8080"`
	// DatabasePath путь к файлу sqlite (":memory:" для тестов)
	DatabasePath string `env:"TURNKEEPER_DB_PATH" envDefault:"turnkeeper.db"`
	// LogLevel уровень логирования: debug, info, warn, error
	LogLevel string `env:"TURNKEEPER_LOG_LEVEL" envDefault:"info"`

	// AuthSecret секрет подписи connection-токенов.
	// Пустой секрет отключает проверку токенов
	AuthSecret string `env:"TURNKEEPER_AUTH_SECRET"`
	// TokenTTL срок жизни connection-токена
	TokenTTL time.Duration `env:"TURNKEEPER_TOKEN_TTL" envDefault:"24h"`

	// MaxLogRequest верхняя граница n в request-log
	MaxLogRequest int `env:"TURNKEEPER_MAX_LOG_REQUEST" envDefault:"1024"`
	// QueueSize емкость исходящей очереди соединения
	QueueSize int `env:"TURNKEEPER_QUEUE_SIZE" envDefault:"64"`

	// RateLimit запросов на IP за RateWindow (HTTP-эндпоинты)
	RateLimit  int           `env:"TURNKEEPER_RATE_LIMIT" envDefault:"60"`
	RateWindow time.Duration `env:"TURNKEEPER_RATE_WINDOW" envDefault:"1m"`

	// ShutdownTimeout срок ожидания graceful shutdown
	ShutdownTimeout time.Duration `env:"TURNKEEPER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadConfig parses the server configuration from the environment
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Level converts the configured log level name to a slog.Level,
// defaulting to info for unknown names
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
