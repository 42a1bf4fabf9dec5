// Package config loads server configuration from the environment.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable the server reads at startup. Values come from
// the environment; a .env file is honored in development.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	MongoURI string `envconfig:"MONGODB_URI" required:"true"`
	Database string `envconfig:"MONGODB_DATABASE" default:"propchat"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// RateLimitRPM bounds register/login attempts per key per minute.
	RateLimitRPM int `envconfig:"RATE_LIMIT_RPM" default:"10"`

	// RedisAddr enables the cross-instance frame relay when set.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// FCMServerKey enables push notifications when set. FCMEndpoint is
	// overridable for tests.
	FCMServerKey string `envconfig:"FCM_SERVER_KEY"`
	FCMEndpoint  string `envconfig:"FCM_ENDPOINT" default:"https://fcm.googleapis.com/fcm/send"`

	// PageSize is the message-history page length.
	PageSize int64 `envconfig:"PAGE_SIZE" default:"20"`

	// MessageTTL, when non-zero, expires undelivered (still SENT) messages
	// older than the duration.
	MessageTTL time.Duration `envconfig:"MESSAGE_TTL"`
}

// Load reads a .env file if present and then processes the environment.
func Load() (Config, error) {
	// Missing .env is fine outside development.
	_ = godotenv.Load()

	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
