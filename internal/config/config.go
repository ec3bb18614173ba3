// Package config provides configuration loading and validation for the pinmap API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/onnwee/pinmap/internal/db"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database; empty selects in-memory repositories (non-production only)
	DatabaseURL string `koanf:"database_url"`

	// JWT Authentication. The previous secret is accepted during rotation.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_secret_previous"`

	// Redis backs the rate limiter and the geocode cache when set
	RedisURL string `koanf:"redis_url"`

	// Mapbox geocoding
	MapboxToken    string        `koanf:"mapbox_token"`
	GeocodeTimeout time.Duration `koanf:"geocode_timeout"`

	// HTTP surface
	CORSOrigins  []string `koanf:"cors_origins"`
	RateLimitRPM int      `koanf:"rate_limit_rpm"` // 0 disables rate limiting

	// Tracing (OpenTelemetry)
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	TracingEndpoint   string  `koanf:"tracing_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL    = errors.New("DATABASE_URL is required in production")
	ErrInvalidDatabaseURL    = errors.New("DATABASE_URL must be a postgres:// or sqlite:// url")
	ErrMissingJWTSecret      = errors.New("JWT_SECRET is required")
	ErrInvalidPort           = errors.New("PORT must be a valid integer between 1 and 65535")
	ErrInvalidInteger        = errors.New("value must be a valid integer")
	ErrInvalidDuration       = errors.New("value must be a valid duration")
	ErrInvalidFloat          = errors.New("value must be a valid number")
	ErrInvalidRateLimit      = errors.New("RATE_LIMIT_RPM must not be negative")
	ErrInvalidGeocodeTimeout = errors.New("GEOCODE_TIMEOUT must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort              = 8080
	DefaultEnv               = "development"
	DefaultGeocodeTimeout    = 5 * time.Second
	DefaultRateLimitRPM      = 120
	DefaultTracingSampleRate = 0.1
)

// DefaultCORSOrigins allows the local web client during development.
var DefaultCORSOrigins = []string{"http://localhost:3000"}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	// PINMAP_PORT first, then PORT as set by most PaaS runtimes
	port, err := getEnvIntOrDefaultMulti([]string{"PINMAP_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		// Report once here rather than again from Validate.
		collect(fmt.Errorf("%w: %v", ErrInvalidPort, err))
		port = DefaultPort
	}

	rateLimit, err := getEnvIntOrDefault("RATE_LIMIT_RPM", k, "rate_limit_rpm", DefaultRateLimitRPM)
	collect(err)

	geocodeTimeout, err := getEnvDurationOrDefault("GEOCODE_TIMEOUT", k, "geocode_timeout", DefaultGeocodeTimeout)
	collect(err)

	sampleRate, err := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	collect(err)

	cfg := &Config{
		Port:              port,
		Env:               getEnvOrDefaultMulti([]string{"PINMAP_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:       getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:         getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret: getEnvOrKoanf("JWT_SECRET_PREVIOUS", k, "jwt_secret_previous"),
		RedisURL:          getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		MapboxToken:       getEnvOrKoanf("MAPBOX_TOKEN", k, "mapbox_token"),
		GeocodeTimeout:    geocodeTimeout,
		CORSOrigins:       getEnvListOrKoanf("CORS_ORIGINS", k, "cors_origins", DefaultCORSOrigins),
		RateLimitRPM:      rateLimit,
		TracingEnabled:    getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		TracingExporter:   getEnvOrKoanf("TRACING_EXPORTER", k, "tracing_exporter"),
		TracingEndpoint:   getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingSampleRate: sampleRate,
		TracingInsecure:   getEnvBoolOrKoanf("TRACING_INSECURE", k, "tracing_insecure"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// A koanf value of 0 falls back to the default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefault reads an int from env, then the file, then the default.
// Unlike the port, an explicit 0 in the file is honored.
func getEnvIntOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal, fmt.Errorf("%s: %w", envKey, ErrInvalidInteger)
		}
		return i, nil
	}
	if k.Exists(koanfKey) {
		return k.Int(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault reads a Go duration string ("5s", "1500ms").
func getEnvDurationOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return defaultVal, fmt.Errorf("%s: %w", envKey, ErrInvalidDuration)
		}
		return d, nil
	}
	if k.Exists(koanfKey) {
		return k.Duration(koanfKey), nil
	}
	return defaultVal, nil
}

func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return defaultVal, fmt.Errorf("%s: %w", envKey, ErrInvalidFloat)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvBoolOrKoanf accepts true/1/yes/on and false/0/no/off; anything else
// in the environment is ignored in favor of the file value.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	switch strings.ToLower(os.Getenv(envKey)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return k.Bool(koanfKey)
}

// getEnvListOrKoanf reads a comma-separated env var, then a YAML list, then the default.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string, defaultVal []string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	if k.Exists(koanfKey) {
		return k.Strings(koanfKey)
	}
	return append([]string(nil), defaultVal...)
}

// Validate checks that all required configuration values are present and sane.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.DatabaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	} else if _, _, err := db.ParseURL(c.DatabaseURL); err != nil {
		errs = append(errs, ErrInvalidDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.RateLimitRPM < 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.GeocodeTimeout <= 0 {
		errs = append(errs, ErrInvalidGeocodeTimeout)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                fmt.Sprintf("%d", c.Port),
		"env":                 c.Env,
		"database_url":        maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":          maskSecret(c.JWTSecret),
		"jwt_secret_previous": maskSecret(c.JWTPreviousSecret),
		"redis_url":           maskDatabaseURL(c.RedisURL),
		"mapbox_token":        maskMapboxToken(c.MapboxToken),
		"geocode_timeout":     c.GeocodeTimeout.String(),
		"cors_origins":        strings.Join(c.CORSOrigins, ","),
		"rate_limit_rpm":      fmt.Sprintf("%d", c.RateLimitRPM),
		"tracing_enabled":     fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_exporter":    c.TracingExporter,
		"tracing_endpoint":    c.TracingEndpoint,
		"tracing_sample_rate": strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskMapboxToken keeps the token kind prefix (pk., sk.) and hides the rest.
func maskMapboxToken(s string) string {
	if s == "" {
		return "<not set>"
	}
	if i := strings.Index(s, "."); i > 0 && i <= 3 {
		return s[:i+1] + "****"
	}
	return maskSecret(s)
}

// maskDatabaseURL masks the password in a connection URL (postgres://, redis://).
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return s
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
