package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PublicHostname string // Optional: public hostname for issuer/endpoint URLs (default: localhost with port)
	Port           int    // HTTP server port (default: 8080)

	DisableDPoP bool // Optional: turn off key-binding entirely (default: false)

	Audience string // Optional: audience attached to logins (default: public hostname)

	AccessTTL  time.Duration // Access token lifetime (default: 1h)
	RefreshTTL time.Duration // Refresh token lifetime (default: 720h)
	SessionTTL time.Duration // Session token lifetime (default: 1h)
	StateTTL   time.Duration // Authorization state lifetime (default: 1h)
	DPoPMaxAge time.Duration // Proof freshness window (default: 1m)

	StateDriver string // State store driver: memory, redis, sqlite (default: memory)

	RedisAddr     string // Redis address for the redis driver (default: localhost:6379)
	RedisPassword string // Optional: redis auth
	RedisDB       int    // Redis database number (default: 0)

	DatabaseFile string // SQLite file for the sqlite driver (default: keygate.db)

	KeyFile string // Optional: PEM RSA private key; ephemeral key generated when unset

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	// Local development convenience; missing .env files are fine
	_ = godotenv.Load()

	return Config{
		PublicHostname: os.Getenv("KEYGATE_PUBLIC_HOSTNAME"),
		Port:           getEnvIntOrDefault("PORT", 8080),

		DisableDPoP: getEnvBoolOrDefault("KEYGATE_DISABLE_DPOP", false),

		Audience: os.Getenv("KEYGATE_AUDIENCE"),

		AccessTTL:  getEnvDurationOrDefault("KEYGATE_ACCESS_TTL", time.Hour),
		RefreshTTL: getEnvDurationOrDefault("KEYGATE_REFRESH_TTL", 30*24*time.Hour),
		SessionTTL: getEnvDurationOrDefault("KEYGATE_SESSION_TTL", time.Hour),
		StateTTL:   getEnvDurationOrDefault("KEYGATE_STATE_TTL", time.Hour),
		DPoPMaxAge: getEnvDurationOrDefault("KEYGATE_DPOP_MAX_AGE", time.Minute),

		StateDriver: getEnvOrDefault("KEYGATE_STATE_DRIVER", "memory"),

		RedisAddr:     getEnvOrDefault("KEYGATE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("KEYGATE_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("KEYGATE_REDIS_DB", 0),

		DatabaseFile: getEnvOrDefault("KEYGATE_DATABASE_FILE", "keygate.db"),

		KeyFile: os.Getenv("KEYGATE_KEY_FILE"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// BaseURL is the canonical absolute URL of the service: https on the
// public hostname, plain http on the local fallback.
func (c Config) BaseURL() string {
	if c.PublicHostname != "" {
		return "https://" + c.PublicHostname
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// Issuer is the iss claim on every minted token.
func (c Config) Issuer() string { return c.BaseURL() }

// TokenEndpoint is the canonical token endpoint URL that DPoP proofs
// must name in their htu claim.
func (c Config) TokenEndpoint() string { return c.BaseURL() + "/v1/oauth2/token" }

func (c Config) JWKSEndpoint() string { return c.BaseURL() + "/.well-known/jwks.json" }

func (c Config) RevocationEndpoint() string { return c.BaseURL() + "/v1/oauth2/revoke" }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer seconds, for deployment configs that use raw numbers
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
