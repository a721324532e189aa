// Package config loads server settings from defaults, an optional YAML file
// named by QUIZ_CONFIG_FILE, and the environment, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"quiz/internal/ratelimit/models"
	pstrings "quiz/pkg/platform/strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	TokenLegacy = "legacy"
	TokenJWT    = "jwt"

	// ConfigFileEnv names the optional YAML file.
	ConfigFileEnv = "QUIZ_CONFIG_FILE"

	minSigningKeyLen = 32
)

// Server captures process configuration. Keys match the environment
// variable names, lowercased, so a YAML file uses e.g. rate_limit_max.
type Server struct {
	Env             string        `koanf:"app_env"`
	Addr            string        `koanf:"quiz_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
	LogRedactFields string `koanf:"log_redact_fields"`
	TracingEnabled  bool   `koanf:"tracing_enabled"`

	RateLimitWindowMS int    `koanf:"rate_limit_window_ms"`
	RateLimitMax      int    `koanf:"rate_limit_max"`
	RateLimitStore    string `koanf:"rate_limit_store"`
	RateLimitDisabled bool   `koanf:"disable_rate_limiting"`

	RedisURL     string `koanf:"redis_url"`
	DatabaseURL  string `koanf:"database_url"`
	KafkaBrokers string `koanf:"kafka_brokers"`
	AuditTopic   string `koanf:"audit_topic"`

	AuditTopicPartitions int           `koanf:"audit_topic_partitions"`
	AuditProduceTimeout  time.Duration `koanf:"audit_produce_timeout"`

	AdminPassword   string        `koanf:"admin_password"`
	TokenFormat     string        `koanf:"token_format"`
	TokenSigningKey string        `koanf:"token_signing_key"`
	TokenIssuer     string        `koanf:"token_issuer"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
}

var defaults = map[string]any{
	"app_env":                EnvDevelopment,
	"quiz_addr":              ":8080",
	"shutdown_timeout":       "10s",
	"log_level":              "info",
	"log_format":             "json",
	"rate_limit_window_ms":   int(models.DefaultWindow / time.Millisecond),
	"rate_limit_max":         models.DefaultMaxRequests,
	"rate_limit_store":       StoreMemory,
	"audit_topic":            "quiz.admin.audit",
	"audit_topic_partitions": 1,
	"audit_produce_timeout":  "10s",
	"admin_password":         "admin123",
	"token_format":           TokenLegacy,
	"token_issuer":           "quiz",
	"token_ttl":              "24h",
}

// Load reads and validates the configuration.
func Load() (Server, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return Server{}, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Server{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, known := knownKeys[key]; !known {
			return ""
		}
		return key
	}), nil); err != nil {
		return Server{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Server
	if err := k.Unmarshal("", &cfg); err != nil {
		return Server{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

var knownKeys = func() map[string]struct{} {
	keys := map[string]struct{}{}
	for _, k := range []string{
		"app_env", "quiz_addr", "shutdown_timeout",
		"log_level", "log_format", "log_redact_fields", "tracing_enabled",
		"rate_limit_window_ms", "rate_limit_max", "rate_limit_store", "disable_rate_limiting",
		"redis_url", "database_url", "kafka_brokers", "audit_topic",
		"audit_topic_partitions", "audit_produce_timeout",
		"admin_password", "token_format", "token_signing_key", "token_issuer", "token_ttl",
	} {
		keys[k] = struct{}{}
	}
	return keys
}()

// Validate rejects combinations the server cannot start with.
func (c Server) Validate() error {
	if !slices.Contains([]string{EnvDevelopment, EnvProduction, EnvTest}, c.Env) {
		return fmt.Errorf("APP_ENV must be one of development, production, test; got %q", c.Env)
	}
	if c.RateLimitWindowMS <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be positive; got %d", c.RateLimitWindowMS)
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive; got %d", c.RateLimitMax)
	}
	switch c.RateLimitStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("RATE_LIMIT_STORE=redis requires REDIS_URL")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("RATE_LIMIT_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be memory, redis or postgres; got %q", c.RateLimitStore)
	}
	switch c.TokenFormat {
	case TokenLegacy:
	case TokenJWT:
		if len(c.TokenSigningKey) < minSigningKeyLen {
			return fmt.Errorf("TOKEN_FORMAT=jwt requires TOKEN_SIGNING_KEY of at least %d bytes", minSigningKeyLen)
		}
	default:
		return fmt.Errorf("TOKEN_FORMAT must be legacy or jwt; got %q", c.TokenFormat)
	}
	if c.AuditTopicPartitions <= 0 {
		return fmt.Errorf("AUDIT_TOPIC_PARTITIONS must be positive; got %d", c.AuditTopicPartitions)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive; got %s", c.TokenTTL)
	}
	if c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD must not be empty")
	}
	return nil
}

func (c Server) IsProduction() bool {
	return c.Env == EnvProduction
}

// RateLimit returns the limiter policy.
func (c Server) RateLimit() models.Config {
	return models.Config{
		Window:      time.Duration(c.RateLimitWindowMS) * time.Millisecond,
		MaxRequests: c.RateLimitMax,
	}
}

// Brokers splits KAFKA_BROKERS on commas, dropping blanks and duplicates.
func (c Server) Brokers() []string {
	return pstrings.SplitList(c.KafkaBrokers, ",")
}
