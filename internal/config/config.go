package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`

	// Primary places provider. The provider is disabled when the key is
	// empty; the resolver then runs on the backend fallback alone.
	GeocoderAPIKey   string        `env:"GEOCODER_API_KEY"`
	GeocoderBaseURL  string        `env:"GEOCODER_BASE_URL" envDefault:"https://maps.googleapis.com/maps/api"`
	GeocoderTimeout  time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"10s"`
	GeocodeCacheTTL  time.Duration `env:"GEOCODE_CACHE_TTL" envDefault:"30m"`
	GeocodeCacheSize int           `env:"GEOCODE_CACHE_SIZE" envDefault:"1000"`

	// Storefront backend: geocode fallback and delivery-zone lookups.
	BackendBaseURL string        `env:"BACKEND_BASE_URL" envDefault:"http://localhost:5000"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`

	// Position provider. An empty base URL disables position acquisition;
	// detect-current then reports the platform as unsupported.
	PositionBaseURL      string        `env:"POSITION_BASE_URL"`
	PositionTimeout      time.Duration `env:"POSITION_TIMEOUT" envDefault:"15s"`
	PositionMaxAge       time.Duration `env:"POSITION_MAX_AGE" envDefault:"1m"`
	PositionHighAccuracy bool          `env:"POSITION_HIGH_ACCURACY" envDefault:"false"`

	StorePath         string        `env:"STORE_PATH" envDefault:"locations.db"`
	LocationRetention time.Duration `env:"LOCATION_RETENTION" envDefault:"168h"`

	// Analytics events. Publishing is enabled only when brokers are set.
	KafkaBrokers     []string `env:"KAFKA_BROKERS"`
	KafkaEventsTopic string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"location-events"`
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	if cfg.GeocodeCacheTTL <= 0 {
		return nil, errors.New("GEOCODE_CACHE_TTL must be positive")
	}
	if cfg.GeocoderTimeout <= 0 || cfg.BackendTimeout <= 0 || cfg.PositionTimeout <= 0 {
		return nil, errors.New("provider timeouts must be positive")
	}
	if cfg.LocationRetention <= 0 {
		return nil, errors.New("LOCATION_RETENTION must be positive")
	}
	if cfg.BackendBaseURL == "" {
		return nil, errors.New("BACKEND_BASE_URL is required")
	}
	if cfg.StorePath == "" {
		return nil, errors.New("STORE_PATH is required")
	}
	if cfg.KafkaEnabled() && cfg.KafkaEventsTopic == "" {
		return nil, errors.New("KAFKA_EVENTS_TOPIC is required when brokers are set")
	}

	return &cfg, nil
}

// GeocoderEnabled reports whether the primary places provider is configured.
func (c *Config) GeocoderEnabled() bool {
	return c.GeocoderAPIKey != ""
}

// KafkaEnabled reports whether analytics event publishing is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
