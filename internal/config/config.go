package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// Empty DSN runs on in-memory stores.
	DatabaseDSN string `env:"DB_DSN"`

	// Empty address dispatches locally without cross-instance relay.
	RedisAddr    string `env:"REDIS_ADDR"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"chat-deliveries"`
	RelayWorkers int    `env:"RELAY_WORKERS" envDefault:"8"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"chat.message.created"`

	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	ResolverTimeout time.Duration `env:"RESOLVER_TIMEOUT" envDefault:"3s"`
	NotifyTimeout   time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	SendBufferSize int   `env:"SEND_BUFFER_SIZE" envDefault:"256"`
	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE" envDefault:"16384"`
	MaxTextLength  int   `env:"MAX_TEXT_LENGTH" envDefault:"4000"`
	HistoryLimit   int   `env:"HISTORY_LIMIT" envDefault:"200"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Dev      bool   `env:"DEV"`
}

// Load reads a .env file when one exists, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.ResolverTimeout <= 0 {
		errs = append(errs, errors.New("RESOLVER_TIMEOUT must be positive"))
	}
	if c.NotifyTimeout <= 0 {
		errs = append(errs, errors.New("NOTIFY_TIMEOUT must be positive"))
	}
	if c.RelayWorkers <= 0 {
		errs = append(errs, errors.New("RELAY_WORKERS must be positive"))
	}
	if c.SendBufferSize <= 0 {
		errs = append(errs, errors.New("SEND_BUFFER_SIZE must be positive"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_SIZE must be positive"))
	}
	if c.MaxTextLength <= 0 {
		errs = append(errs, errors.New("MAX_TEXT_LENGTH must be positive"))
	}
	return errors.Join(errs...)
}
