package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"webdir/pkg/platform/strings"
)

// Config is the process configuration, read from WEBDIR_* environment variables.
type Config struct {
	Server   Server
	Database DatabaseConfig `envPrefix:"WEBDIR_DATABASE_"`
	Redis    RedisConfig    `envPrefix:"WEBDIR_REDIS_"`
	Kafka    KafkaConfig    `envPrefix:"WEBDIR_KAFKA_"`
	Ranking  RankingConfig  `envPrefix:"WEBDIR_RANK_"`
	Bubbling BubblingConfig `envPrefix:"WEBDIR_BUBBLE_"`
	Votes    VoteConfig     `envPrefix:"WEBDIR_VOTE_"`
	Health   HealthConfig   `envPrefix:"WEBDIR_HEALTH_"`
	Trust    TrustConfig    `envPrefix:"WEBDIR_TRUST_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string `env:"WEBDIR_ADDR" envDefault:":8080"`
	LogLevel      string `env:"WEBDIR_LOG_LEVEL" envDefault:"info"`
	JWTSigningKey string `env:"WEBDIR_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"WEBDIR_JWT_ISSUER"`
	AdminToken    string `env:"WEBDIR_ADMIN_TOKEN"`
	PageSize      int    `env:"WEBDIR_PAGE_SIZE" envDefault:"20"`
}

// DatabaseConfig selects Postgres; an empty URL keeps every store in memory.
type DatabaseConfig struct {
	URL          string        `env:"URL"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	TxTimeout    time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
	AutoMigrate  bool          `env:"AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig selects Redis for the bubbling cache and vote limiter.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig selects the Kafka audit sink; no brokers keeps audit events in memory.
type KafkaConfig struct {
	Brokers    []string `env:"BROKERS" envSeparator:","`
	Topic      string   `env:"TOPIC" envDefault:"webdir.audit"`
	Partitions int32    `env:"PARTITIONS" envDefault:"3"`
	ClientID   string   `env:"CLIENT_ID" envDefault:"webdir"`
}

type RankingConfig struct {
	Interval   time.Duration `env:"INTERVAL" envDefault:"1h"`
	PoolSize   int           `env:"POOL_SIZE" envDefault:"4"`
	RunTimeout time.Duration `env:"RUN_TIMEOUT" envDefault:"2m"`
}

type BubblingConfig struct {
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	MinScore float64       `env:"MIN_SCORE" envDefault:"10"`
	MaxRank  int           `env:"MAX_RANK" envDefault:"3"`
}

type VoteConfig struct {
	RateLimit  int           `env:"RATE_LIMIT" envDefault:"30"`
	RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
}

type HealthConfig struct {
	DeadThreshold int `env:"DEAD_THRESHOLD" envDefault:"3"`
}

type TrustConfig struct {
	TrustedKarma int `env:"TRUSTED_KARMA" envDefault:"100"`
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = strings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the services cannot run with.
func (c Config) Validate() error {
	if c.Ranking.PoolSize < 1 {
		return fmt.Errorf("WEBDIR_RANK_POOL_SIZE must be at least 1")
	}
	if c.Ranking.Interval <= 0 {
		return fmt.Errorf("WEBDIR_RANK_INTERVAL must be positive")
	}
	if c.Votes.RateLimit < 1 || c.Votes.RateWindow <= 0 {
		return fmt.Errorf("WEBDIR_VOTE_RATE_LIMIT and WEBDIR_VOTE_RATE_WINDOW must be positive")
	}
	if c.Health.DeadThreshold < 1 {
		return fmt.Errorf("WEBDIR_HEALTH_DEAD_THRESHOLD must be at least 1")
	}
	if c.Bubbling.MaxRank < 1 {
		return fmt.Errorf("WEBDIR_BUBBLE_MAX_RANK must be at least 1")
	}
	if c.Server.PageSize < 1 {
		return fmt.Errorf("WEBDIR_PAGE_SIZE must be at least 1")
	}
	return nil
}
