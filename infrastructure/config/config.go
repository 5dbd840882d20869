package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Variants the client can be built for
const (
	VariantDevelopment = "development"
	VariantStaging     = "staging"
	VariantProduction  = "production"
)

// Metrics backends
const (
	MetricsPrometheus = "prometheus"
	MetricsCloudWatch = "cloudwatch"
)

// ID strategies
const (
	IDStrategyUUID7     = "uuid7"
	IDStrategyTimestamp = "timestamp"
)

type variantDefaults struct {
	baseURL string
	appName string
}

var variants = map[string]variantDefaults{
	VariantDevelopment: {baseURL: "http://localhost:3001", appName: "Grocery App (Dev)"},
	VariantStaging:     {baseURL: "https://staging-api.grocery-app.com", appName: "Grocery App (Staging)"},
	VariantProduction:  {baseURL: "https://api.grocery-app.com", appName: "Grocery App"},
}

// Config holds all application configuration
type Config struct {
	// Variant and remote store
	Variant    string `yaml:"variant"`
	AppName    string `yaml:"app_name"`
	APIBaseURL string `yaml:"api_base_url"`

	// Server configuration
	ServerAddress string `yaml:"server_address"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Remote client and cache
	RemoteTimeout   time.Duration `yaml:"remote_timeout"`
	ReadRetryDelay  time.Duration `yaml:"read_retry_delay"`
	CacheStaleAfter time.Duration `yaml:"cache_stale_after"`
	CacheGCAfter    time.Duration `yaml:"cache_gc_after"`
	IDStrategy      string        `yaml:"id_strategy"`

	// Feature flags
	EnableCircuitBreaker bool   `yaml:"enable_circuit_breaker"`
	EnableMetrics        bool   `yaml:"enable_metrics"`
	MetricsBackend       string `yaml:"metrics_backend"`
	EnableTracing        bool   `yaml:"enable_tracing"`
	OTLPEndpoint         string `yaml:"otlp_endpoint"`
	EnableCORS           bool   `yaml:"enable_cors"`

	// AWS configuration
	AWSRegion string `yaml:"aws_region"`

	// ConfigFile is the YAML overlay this config was read from, if any
	ConfigFile string `yaml:"-"`
}

// Default returns the development configuration
func Default() *Config {
	return &Config{
		Variant:        VariantDevelopment,
		ServerAddress:  ":8080",
		LogLevel:       "info",
		RemoteTimeout:  10 * time.Second,
		ReadRetryDelay: time.Second,
		CacheGCAfter:   5 * time.Minute,
		IDStrategy:     IDStrategyUUID7,
		EnableMetrics:  true,
		MetricsBackend: MetricsPrometheus,
		OTLPEndpoint:   "localhost:4317",
		EnableCORS:     true,
		AWSRegion:      "us-west-2",
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE, and environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.resolveVariant()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

func (c *Config) applyEnv() {
	// The Expo build variable is honoured so existing deployments keep working
	c.Variant = getEnv("APP_VARIANT", getEnv("EXPO_PUBLIC_VARIANT", c.Variant))
	c.APIBaseURL = getEnv("API_BASE_URL", c.APIBaseURL)
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.RemoteTimeout = getEnvDuration("REMOTE_TIMEOUT", c.RemoteTimeout)
	c.ReadRetryDelay = getEnvDuration("READ_RETRY_DELAY", c.ReadRetryDelay)
	c.CacheStaleAfter = getEnvDuration("CACHE_STALE_AFTER", c.CacheStaleAfter)
	c.CacheGCAfter = getEnvDuration("CACHE_GC_AFTER", c.CacheGCAfter)
	c.IDStrategy = getEnv("ID_STRATEGY", c.IDStrategy)

	c.EnableCircuitBreaker = getEnvBool("ENABLE_CIRCUIT_BREAKER", c.EnableCircuitBreaker)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.MetricsBackend = getEnv("METRICS_BACKEND", c.MetricsBackend)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.OTLPEndpoint = getEnv("OTLP_ENDPOINT", c.OTLPEndpoint)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
}

func (c *Config) resolveVariant() {
	c.Variant = strings.ToLower(strings.TrimSpace(c.Variant))
	defaults, ok := variants[c.Variant]
	if !ok {
		return
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaults.baseURL
	}
	if c.AppName == "" {
		c.AppName = defaults.appName
	}
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if _, ok := variants[c.Variant]; !ok {
		return fmt.Errorf("unknown variant %q", c.Variant)
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be positive")
	}
	if c.ReadRetryDelay < 0 || c.CacheStaleAfter < 0 || c.CacheGCAfter < 0 {
		return fmt.Errorf("cache durations must not be negative")
	}

	switch c.IDStrategy {
	case IDStrategyUUID7, IDStrategyTimestamp:
	default:
		return fmt.Errorf("unknown ID_STRATEGY %q", c.IDStrategy)
	}

	if c.EnableMetrics {
		switch c.MetricsBackend {
		case MetricsPrometheus:
		case MetricsCloudWatch:
			if c.AWSRegion == "" {
				return fmt.Errorf("AWS_REGION is required for cloudwatch metrics")
			}
		default:
			return fmt.Errorf("unknown METRICS_BACKEND %q", c.MetricsBackend)
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Variant == VariantDevelopment
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Variant == VariantProduction
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1500ms") or plain milliseconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms := getEnvInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
