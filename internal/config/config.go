package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"

	"github.com/loopmarket/push-relay/internal/domain"
)

type Config struct {
	DatabaseDSN             string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL             string `env:"RABBITMQ_URL,required=true"`
	RedisURL                string `env:"REDIS_URL,required=true"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	PushWebhookURL          string `env:"PUSH_WEBHOOK_URL"`
	APIPort                 int    `env:"API_PORT,default=8085"`
	LogLevel                string `env:"LOG_LEVEL,default=info"`

	DedupeTTLSeconds   int `env:"DEDUPE_TTL_SECONDS,default=30"`
	BatchWindowSeconds int `env:"BATCH_WINDOW_SECONDS,default=5"`
	BatchMaxSize       int `env:"BATCH_MAX_SIZE,default=10"`
	// Semicolon-separated because commas delimit go-env tag options.
	BatchableTypes      string `env:"BATCHABLE_TYPES,default=CHAT_MESSAGE;APPLICATION_CREATED"`
	RetryInitialSeconds int    `env:"RETRY_INITIAL_SECONDS,default=2"`
	RetryMaxSeconds     int    `env:"RETRY_MAX_SECONDS,default=30"`
	RetryCeiling        int    `env:"RETRY_CEILING,default=5"`
	RetryTickMillis     int    `env:"RETRY_TICK_MILLIS,default=1000"`
	SendRatePerSec      int    `env:"SEND_RATE_PER_SEC,default=100"`
	ConsumerConcurrency int    `env:"CONSUMER_CONCURRENCY,default=4"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// BatchableTypeSet parses BatchableTypes into the set of notification types
// the batching aggregator accepts. Unknown names are rejected.
func (c *Config) BatchableTypeSet() (map[domain.NotificationType]bool, error) {
	set := make(map[domain.NotificationType]bool)
	for _, raw := range strings.FieldsFunc(c.BatchableTypes, func(r rune) bool {
		return r == ';' || r == ','
	}) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		t, err := domain.ParseTypeFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid batchable type %q: %w", raw, err)
		}
		set[t] = true
	}
	return set, nil
}
