package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort               = "9999"
	defaultLogLevel           = "info"
	defaultGatewayTimeout     = 30 * time.Second
	defaultCacheRetention     = time.Hour
	defaultCacheSweepInterval = 30 * time.Minute
	defaultRedisPoolSize      = 100
	defaultNatsMaxAckPending  = 40
	defaultNatsMaxDeliver     = 5
)

type Config struct {
	ServerPort string
	LogLevel   string

	Gateway  Gateway
	Database Database
	Cache    Cache
	Redis    Redis
	Nats     Nats
}

type Gateway struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	BasicToken  string
	ChannelID   string
	CallbackURL string
	Timeout     time.Duration
}

type Database struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     string
	Migrate  bool
}

type Cache struct {
	Retention     time.Duration
	SweepInterval time.Duration
}

// Redis and Nats are optional; an empty address disables the component.
type Redis struct {
	Addr     string
	PoolSize int
}

type Nats struct {
	URL           string
	MaxAckPending int
	MaxDeliver    int
}

// Load reads the process environment once. Every missing required
// variable is reported in a single error.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		ServerPort: valueOrDefault(getenv, "SERVER_PORT", defaultPort),
		LogLevel:   valueOrDefault(getenv, "LOG_LEVEL", defaultLogLevel),
		Gateway: Gateway{
			BaseURL:     strings.TrimRight(required("GATEWAY_BASE_URL"), "/"),
			ChannelID:   required("GATEWAY_CHANNEL_ID"),
			CallbackURL: required("GATEWAY_CALLBACK_URL"),
			BasicToken:  strings.TrimSpace(getenv("GATEWAY_BASIC_TOKEN")),
			APIKey:      strings.TrimSpace(getenv("GATEWAY_API_KEY")),
			APISecret:   strings.TrimSpace(getenv("GATEWAY_API_SECRET")),
		},
		Database: Database{
			User:     required("DATABASE_USER"),
			Password: required("DATABASE_PASSWORD"),
			Name:     required("DATABASE_NAME"),
			Host:     required("DATABASE_HOSTNAME"),
			Port:     required("DATABASE_PORT"),
		},
		Redis: Redis{
			Addr: strings.TrimSpace(getenv("REDIS_HOST")),
		},
		Nats: Nats{
			URL: strings.TrimSpace(getenv("NATS_URL")),
		},
	}

	if cfg.Gateway.BasicToken == "" && (cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "") {
		missing = append(missing, "GATEWAY_BASIC_TOKEN or GATEWAY_API_KEY+GATEWAY_API_SECRET")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.Gateway.Timeout, err = parseDuration(getenv, "GATEWAY_TIMEOUT", defaultGatewayTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Cache.Retention, err = parseDuration(getenv, "CACHE_RETENTION", defaultCacheRetention); err != nil {
		return Config{}, err
	}
	if cfg.Cache.SweepInterval, err = parseDuration(getenv, "CACHE_SWEEP_INTERVAL", defaultCacheSweepInterval); err != nil {
		return Config{}, err
	}

	cfg.Database.Migrate = parseBool(getenv, "DATABASE_MIGRATE", false)
	cfg.Redis.PoolSize = parsePositiveInt(getenv, "REDIS_POOL_SIZE", defaultRedisPoolSize)
	cfg.Nats.MaxAckPending = parsePositiveInt(getenv, "NATS_MAX_ACK_PENDING", defaultNatsMaxAckPending)
	cfg.Nats.MaxDeliver = parsePositiveInt(getenv, "NATS_MAX_DELIVER", defaultNatsMaxDeliver)

	return cfg, nil
}

func valueOrDefault(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDuration(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func parsePositiveInt(getenv func(string) string, key string, fallback int) int {
	if v := getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			return val
		}
	}
	return fallback
}

func parseBool(getenv func(string) string, key string, fallback bool) bool {
	if v := getenv(key); v != "" {
		if val, err := strconv.ParseBool(v); err == nil {
			return val
		}
	}
	return fallback
}
