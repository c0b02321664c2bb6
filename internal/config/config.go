package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"drainwatch/internal/report"

	"github.com/joho/godotenv"
)

// mappingEnvPrefix is the prefix for destination mapping variables. Each
// variable holds one "drain-token|environment|dsn" triple, e.g.
//
//	DRAIN_MAPPING_MYAPP=d.1234-5678|production|https://key@sentry.example/1
const mappingEnvPrefix = "DRAIN_MAPPING_"

// Config holds all application configuration
type Config struct {
	// Destinations maps drain tokens to reporting destinations
	Destinations []report.Destination

	// GeoIP Configuration
	GeoIP GeoIPConfig

	// Log configuration
	LogLevel string

	// Server Configuration
	Server ServerConfig

	// Dispatch Configuration
	Dispatch DispatchConfig

	// Pipeline Configuration
	Pipeline PipelineConfig

	// Metrics Configuration
	Metrics MetricsConfig
}

// GeoIPConfig contains GeoIP database settings
type GeoIPConfig struct {
	CityDBPath string
	Enabled    bool
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Host       string
	Port       int
	Production bool
}

// DispatchConfig contains outbound reporting settings
type DispatchConfig struct {
	SendTimeout time.Duration
	RateEvery   time.Duration
	RateBurst   int
	Debug       bool
}

// PipelineConfig contains processing settings
type PipelineConfig struct {
	WorkerPoolSize int
	// PatternsFile optionally extends path normalization with extra
	// identifier patterns; empty disables the file and its watcher.
	PatternsFile string
	// ShutdownGrace bounds how long shutdown waits for in-flight batches.
	ShutdownGrace time.Duration
}

// MetricsConfig contains the Graphite forwarding settings
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
	APIKey   string
}

// Load reads configuration from .env file and environment variables
func Load(envFile string) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	destinations, err := loadDestinations()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Destinations: destinations,
		GeoIP: GeoIPConfig{
			CityDBPath: getEnv("GEOIP_CITY_DB", "geoip/GeoLite2-City.mmdb"),
			Enabled:    getEnvAsBool("GEOIP_ENABLED", false),
		},
		Server: ServerConfig{
			Host:       getEnv("SERVER_HOST", "0.0.0.0"),
			Port:       getEnvAsInt("SERVER_PORT", 8080),
			Production: getEnvAsBool("SERVER_PRODUCTION", false),
		},
		Dispatch: DispatchConfig{
			SendTimeout: getEnvAsDuration("DISPATCH_SEND_TIMEOUT", 5*time.Second),
			RateEvery:   getEnvAsDuration("DISPATCH_RATE_EVERY", 10*time.Millisecond),
			RateBurst:   getEnvAsInt("DISPATCH_RATE_BURST", 50),
			Debug:       getEnvAsBool("DISPATCH_DEBUG", false),
		},
		Pipeline: PipelineConfig{
			WorkerPoolSize: getEnvAsInt("WORKER_POOL_SIZE", 4),
			PatternsFile:   getEnv("NORMALIZE_PATTERNS_FILE", ""),
			ShutdownGrace:  getEnvAsDuration("SHUTDOWN_GRACE", 10*time.Second),
		},
		Metrics: MetricsConfig{
			Enabled:  getEnvAsBool("GRAPHITE_ENABLED", false),
			Endpoint: getEnv("GRAPHITE_ENDPOINT", ""),
			APIKey:   getEnv("GRAPHITE_API_KEY", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks the loaded configuration without starting anything.
// Used by the --check flag.
func (c *Config) Validate() error {
	if len(c.Destinations) == 0 {
		return fmt.Errorf("no destinations configured: set at least one %s* variable", mappingEnvPrefix)
	}
	if _, err := report.NewMapping(c.Destinations); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Metrics.Enabled && c.Metrics.APIKey == "" {
		return fmt.Errorf("GRAPHITE_ENABLED is set but GRAPHITE_API_KEY is empty")
	}
	if c.GeoIP.Enabled {
		if _, err := os.Stat(c.GeoIP.CityDBPath); err != nil {
			return fmt.Errorf("GEOIP_ENABLED is set but %s is not readable: %w", c.GeoIP.CityDBPath, err)
		}
	}
	return nil
}

// loadDestinations collects every DRAIN_MAPPING_* variable. The variable
// name after the prefix is only a label; the drain token inside the value
// is what identifies the source.
func loadDestinations() ([]report.Destination, error) {
	var names []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(name, mappingEnvPrefix) {
			names = append(names, name)
		}
	}
	// Deterministic order keeps duplicate-token errors stable.
	sort.Strings(names)

	destinations := make([]report.Destination, 0, len(names))
	for _, name := range names {
		dest, err := parseDestination(os.Getenv(name))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		destinations = append(destinations, dest)
	}
	return destinations, nil
}

// parseDestination splits a "token|environment|dsn" triple.
func parseDestination(value string) (report.Destination, error) {
	parts := strings.Split(value, "|")
	if len(parts) != 3 {
		return report.Destination{}, fmt.Errorf("expected token|environment|dsn, got %d fields", len(parts))
	}
	dest := report.Destination{
		Token:       strings.TrimSpace(parts[0]),
		Environment: strings.TrimSpace(parts[1]),
		DSN:         strings.TrimSpace(parts[2]),
	}
	if dest.Token == "" || dest.Environment == "" || dest.DSN == "" {
		return report.Destination{}, fmt.Errorf("token, environment and dsn must all be non-empty")
	}
	return dest, nil
}

// Helper functions to read environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
