package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration, parsed from AUTHCHAIN_* variables.
type Config struct {
	Server   Server         `envPrefix:"SERVER_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Token    TokenConfig    `envPrefix:"TOKEN_"`
	Chain    ChainConfig    `envPrefix:"CHAIN_"`
	OTP      OTPConfig      `envPrefix:"OTP_"`
	Tracing  TracingConfig  `envPrefix:"OTEL_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	// StateStore selects the chain state backend: memory, redis or postgres.
	StateStore string `env:"STATE_STORE" envDefault:"memory"`
}

// RedisConfig configures the shared go-redis client.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// PostgresConfig configures the database/sql pool backed by pgx.
type PostgresConfig struct {
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// KafkaConfig configures the mail queue producer. Empty Brokers keeps mail
// delivery in-process (logged only).
type KafkaConfig struct {
	Brokers           []string `env:"BROKERS" envSeparator:","`
	MailTopic         string   `env:"MAIL_TOPIC" envDefault:"authchain.mail"`
	Partitions        int32    `env:"PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"REPLICATION_FACTOR" envDefault:"1"`
}

// TokenConfig configures continuation token signing.
type TokenConfig struct {
	Issuer         string        `env:"ISSUER" envDefault:"authchain"`
	Audience       string        `env:"AUDIENCE" envDefault:"authchain-callback"`
	TTL            time.Duration `env:"TTL" envDefault:"300s"`
	KeyID          string        `env:"KEY_ID" envDefault:"default"`
	PrivateKeyFile string        `env:"PRIVATE_KEY_FILE"`
	// CallbackURL is the public URL of GET /authchain/callback.
	CallbackURL string `env:"CALLBACK_URL" envDefault:"http://localhost:8080/authchain/callback"`
}

// ChainConfig locates the chain definition and the defaults applied to new states.
type ChainConfig struct {
	File             string        `env:"FILE" envDefault:"config/chain.yaml"`
	StateTTL         time.Duration `env:"STATE_TTL" envDefault:"30m"`
	DefaultCancelURL string        `env:"DEFAULT_CANCEL_URL" envDefault:"/"`
	LoginURL         string        `env:"LOGIN_URL" envDefault:"http://localhost:3000/login"`
	SAMLContinueURL  string        `env:"SAML_CONTINUE_URL" envDefault:"http://localhost:8080/saml/continue"`
	SAMLHandoffTTL   time.Duration `env:"SAML_HANDOFF_TTL" envDefault:"1m"`
	AuthCodeTTL      time.Duration `env:"AUTH_CODE_TTL" envDefault:"10m"`
	// AllowedOrigins restricts which login UI origins may submit steps.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	// RedirectURIs are the OAuth redirect_uri and SAML assertion consumer
	// URLs that may receive a completed chain.
	RedirectURIs []string `env:"REDIRECT_URIS" envSeparator:"," envDefault:"http://localhost:3000/callback"`
	// PurgeInterval is how often expired states are dropped from stores
	// without native expiry.
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" envDefault:"1m"`
}

// OTPConfig configures one-time password generation and attempt limiting.
type OTPConfig struct {
	Length      int           `env:"LENGTH" envDefault:"7"`
	TTL         time.Duration `env:"TTL" envDefault:"10m"`
	Secret      string        `env:"SECRET" envDefault:"dev-otp-secret-change-in-production"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	Window      time.Duration `env:"WINDOW" envDefault:"15m"`
}

// TracingConfig enables the OTLP exporter when Endpoint is set.
type TracingConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"true"`
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"authchain"`
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "AUTHCHAIN_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.OTP.Length < 4 {
		return nil, fmt.Errorf("otp length must be at least 4, got %d", cfg.OTP.Length)
	}
	if cfg.Token.TTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	if len(cfg.Chain.RedirectURIs) == 0 {
		return nil, fmt.Errorf("at least one chain redirect uri is required")
	}
	return &cfg, nil
}
