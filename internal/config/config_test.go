package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)

	assert.Empty(t, cfg.GeocoderAPIKey)
	assert.False(t, cfg.GeocoderEnabled())
	assert.Equal(t, "https://maps.googleapis.com/maps/api", cfg.GeocoderBaseURL)
	assert.Equal(t, 30*time.Minute, cfg.GeocodeCacheTTL)
	assert.Equal(t, 1000, cfg.GeocodeCacheSize)

	assert.Equal(t, "http://localhost:5000", cfg.BackendBaseURL)
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout)

	assert.Empty(t, cfg.PositionBaseURL)
	assert.Equal(t, 15*time.Second, cfg.PositionTimeout)
	assert.Equal(t, time.Minute, cfg.PositionMaxAge)
	assert.False(t, cfg.PositionHighAccuracy)

	assert.Equal(t, "locations.db", cfg.StorePath)
	assert.Equal(t, 168*time.Hour, cfg.LocationRetention)

	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "location-events", cfg.KafkaEventsTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("CORS_ORIGINS", "https://petalpost.example,https://staging.petalpost.example")
	t.Setenv("GEOCODER_API_KEY", "test-key")
	t.Setenv("GEOCODE_CACHE_TTL", "15m")
	t.Setenv("GEOCODE_CACHE_SIZE", "250")
	t.Setenv("BACKEND_BASE_URL", "http://backend:5000")
	t.Setenv("POSITION_BASE_URL", "http://ip-api.internal")
	t.Setenv("POSITION_HIGH_ACCURACY", "true")
	t.Setenv("STORE_PATH", "/var/lib/locationd/locations.db")
	t.Setenv("LOCATION_RETENTION", "72h")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, []string{"https://petalpost.example", "https://staging.petalpost.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.GeocoderEnabled())
	assert.Equal(t, 15*time.Minute, cfg.GeocodeCacheTTL)
	assert.Equal(t, 250, cfg.GeocodeCacheSize)
	assert.Equal(t, "http://backend:5000", cfg.BackendBaseURL)
	assert.Equal(t, "http://ip-api.internal", cfg.PositionBaseURL)
	assert.True(t, cfg.PositionHighAccuracy)
	assert.Equal(t, "/var/lib/locationd/locations.db", cfg.StorePath)
	assert.Equal(t, 72*time.Hour, cfg.LocationRetention)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoad_InvalidCacheTTL(t *testing.T) {
	t.Setenv("GEOCODE_CACHE_TTL", "-5m")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEOCODE_CACHE_TTL")
}

func TestLoad_InvalidTimeout(t *testing.T) {
	t.Setenv("BACKEND_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeouts")
}

func TestLoad_MalformedDuration(t *testing.T) {
	t.Setenv("POSITION_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_MissingBackendURL(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_BASE_URL")
}

func TestLoad_InvalidRetention(t *testing.T) {
	t.Setenv("LOCATION_RETENTION", "0s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCATION_RETENTION")
}

func TestLoad_KafkaTopicRequiredWithBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092")
	t.Setenv("KAFKA_EVENTS_TOPIC", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_EVENTS_TOPIC")
}
