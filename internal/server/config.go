package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	defaultPort             = ":8080"
	defaultMaxMessageSize   = 8192
	defaultRateLimitBurst   = 5
	defaultRefillInterval   = time.Second
	defaultSendBufferSize   = 256
	defaultHistoryPageLimit = 50
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Port                    string        `env:"SERVER_PORT,default=:8080" validate:"required"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize          int64         `env:"MAX_MESSAGE_SIZE,default=8192" validate:"gt=0"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5" validate:"gt=0"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`
	SendBufferSize          int           `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`
	DeliveryTimeout         time.Duration `env:"DELIVERY_TIMEOUT,default=5s" validate:"gt=0"`
	FanoutConcurrency       int           `env:"FANOUT_CONCURRENCY,default=64" validate:"gt=0"`
	EvictionQueueSize       int           `env:"EVICTION_QUEUE_SIZE,default=1024" validate:"gt=0"`
	HandshakeTimeout        time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s" validate:"gt=0"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s" validate:"gt=0"`
	StatsInterval           time.Duration `env:"STATS_INTERVAL,default=30s" validate:"gt=0"`
	JWTSecret               string        `env:"JWT_SECRET,required=true" validate:"required,min=16"`
	JWTIssuer               string        `env:"JWT_ISSUER,default=chatwave" validate:"required"`
	AccessTokenTTL          time.Duration `env:"ACCESS_TOKEN_TTL,default=30m" validate:"gt=0"`
	RefreshTokenTTL         time.Duration `env:"REFRESH_TOKEN_TTL,default=168h" validate:"gtfield=AccessTokenTTL"`
	BadgerPath              string        `env:"BADGER_PATH,default=data/badger"`
	HistoryPageLimit        int           `env:"HISTORY_PAGE_LIMIT,default=50" validate:"gt=0,lte=500"`
	LogLevel                string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	StrictInvariants        bool          `env:"STRICT_INVARIANTS,default=false"`
}

// DefaultConfig returns a configuration usable in tests and local runs.
func DefaultConfig(secret string) Config {
	return Config{
		Port:                    defaultPort,
		AllowedOrigins:          "http://localhost:8080",
		MaxMessageSize:          defaultMaxMessageSize,
		RateLimitBurst:          defaultRateLimitBurst,
		RateLimitRefillInterval: defaultRefillInterval,
		SendBufferSize:          defaultSendBufferSize,
		DeliveryTimeout:         5 * time.Second,
		FanoutConcurrency:       64,
		EvictionQueueSize:       1024,
		HandshakeTimeout:        10 * time.Second,
		ShutdownTimeout:         15 * time.Second,
		StatsInterval:           30 * time.Second,
		JWTSecret:               secret,
		JWTIssuer:               "chatwave",
		AccessTokenTTL:          30 * time.Minute,
		RefreshTokenTTL:         7 * 24 * time.Hour,
		HistoryPageLimit:        defaultHistoryPageLimit,
		LogLevel:                "INFO",
	}
}

// LoadConfig reads the environment, after loading the optional dotenv files.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags of c.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Origins returns the configured origin allowlist.
func (c Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.RateLimitRefillInterval <= 0 {
		cfg.RateLimitRefillInterval = defaultRefillInterval
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.HistoryPageLimit <= 0 {
		cfg.HistoryPageLimit = defaultHistoryPageLimit
	}
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	return cfg
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
