package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxUploadBytes is the documented 100 MB upload ceiling.
const DefaultMaxUploadBytes = 100 << 20

// ConfigSource defines an interface for loading configuration from various sources.
type ConfigSource interface {
	Get(key string) (string, bool)
	GetWithDefault(key, defaultValue string) string
}

// EnvConfigSource loads configuration from environment variables.
type EnvConfigSource struct{}

// Get retrieves an environment variable.
func (e *EnvConfigSource) Get(key string) (string, bool) {
	val := os.Getenv(key)
	return val, val != ""
}

// GetWithDefault retrieves an environment variable or returns a default value.
func (e *EnvConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := e.Get(key); ok {
		return val
	}
	return defaultValue
}

// FileConfigSource loads configuration from a JSON or YAML file.
type FileConfigSource struct {
	data map[string]interface{}
}

// NewFileConfigSource creates a new file-based config source.
// Supports both JSON and YAML files based on file extension.
func NewFileConfigSource(filePath string) (*FileConfigSource, error) {
	data := make(map[string]interface{})

	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.HasSuffix(filePath, ".yaml") || strings.HasSuffix(filePath, ".yml") {
		if err := yaml.Unmarshal(fileData, &data); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	} else if strings.HasSuffix(filePath, ".json") {
		if err := json.Unmarshal(fileData, &data); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		return nil, fmt.Errorf("unsupported config file format, use .json, .yaml, or .yml")
	}

	return &FileConfigSource{data: data}, nil
}

// Get retrieves a value from the config file using dot notation (e.g., "blob.container").
func (f *FileConfigSource) Get(key string) (string, bool) {
	keys := strings.Split(key, ".")
	var current interface{} = f.data

	for _, k := range keys {
		if m, ok := current.(map[string]interface{}); ok {
			if val, exists := m[k]; exists {
				current = val
			} else {
				return "", false
			}
		} else {
			return "", false
		}
	}

	if str, ok := current.(string); ok {
		return str, true
	}
	return fmt.Sprintf("%v", current), true
}

// GetWithDefault retrieves a value from the config file or returns a default.
func (f *FileConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := f.Get(key); ok {
		return val
	}
	return defaultValue
}

// Config holds application configuration.
type Config struct {
	// Blob Storage configuration. ConnectionString wins when set; otherwise
	// AccountName/AccountKey are used, falling back to DefaultAzureCredential
	// when the key is empty.
	StorageConnectionString string
	StorageAccountName      string
	StorageAccountKey       string
	BlobContainer           string
	MaxUploadBytes          int64
	SASExpiryMinutes        int

	// HTTP Server configuration
	HTTPPort         int
	HTTPReadTimeout  int // seconds
	HTTPWriteTimeout int // seconds
	HTTPIdleTimeout  int // seconds

	// CORS and rate limiting
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Logging configuration
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, console

	// Application configuration
	AppName     string
	AppVersion  string
	Environment string // dev, staging, prod

	// Telemetry
	NewRelicEnabled    bool
	NewRelicLicenseKey string
}

// LoadConfig loads configuration from the provided source.
func LoadConfig(source ConfigSource) (*Config, error) {
	cfg := &Config{}

	getInt := func(key string, defaultValue int) int {
		str := source.GetWithDefault(key, fmt.Sprintf("%d", defaultValue))
		val, err := strconv.Atoi(str)
		if err != nil {
			return defaultValue
		}
		return val
	}
	getInt64 := func(key string, defaultValue int64) int64 {
		str := source.GetWithDefault(key, fmt.Sprintf("%d", defaultValue))
		val, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return defaultValue
		}
		return val
	}
	getFloat := func(key string, defaultValue float64) float64 {
		str := source.GetWithDefault(key, fmt.Sprintf("%g", defaultValue))
		val, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return defaultValue
		}
		return val
	}
	getBool := func(key string, defaultValue bool) bool {
		str := source.GetWithDefault(key, strconv.FormatBool(defaultValue))
		val, err := strconv.ParseBool(str)
		if err != nil {
			return defaultValue
		}
		return val
	}

	cfg.StorageConnectionString = source.GetWithDefault("AZURE_STORAGE_CONNECTION_STRING", "")
	cfg.StorageAccountName = source.GetWithDefault("BLOB_STORAGE_ACCOUNT_NAME", "")
	cfg.StorageAccountKey = source.GetWithDefault("BLOB_STORAGE_ACCOUNT_KEY", "")
	cfg.BlobContainer = source.GetWithDefault("BLOB_CONTAINER", "uploads")
	cfg.MaxUploadBytes = getInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)
	cfg.SASExpiryMinutes = getInt("SAS_EXPIRY_MINUTES", 5)

	cfg.HTTPPort = getInt("HTTP_PORT", 8080)
	cfg.HTTPReadTimeout = getInt("HTTP_READ_TIMEOUT", 30)
	cfg.HTTPWriteTimeout = getInt("HTTP_WRITE_TIMEOUT", 30)
	cfg.HTTPIdleTimeout = getInt("HTTP_IDLE_TIMEOUT", 120)

	origins := source.GetWithDefault("CORS_ALLOWED_ORIGINS", "*")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}
	cfg.RateLimitRPS = getFloat("RATE_LIMIT_RPS", 0)
	cfg.RateLimitBurst = getInt("RATE_LIMIT_BURST", 0)

	cfg.LogLevel = source.GetWithDefault("LOG_LEVEL", "info")
	cfg.LogFormat = source.GetWithDefault("LOG_FORMAT", "json")

	cfg.AppName = source.GetWithDefault("APP_NAME", "blobmeta-api")
	cfg.AppVersion = source.GetWithDefault("APP_VERSION", "2.0")
	cfg.Environment = source.GetWithDefault("ENVIRONMENT", "dev")

	cfg.NewRelicEnabled = getBool("NEW_RELIC_ENABLED", false)
	cfg.NewRelicLicenseKey = source.GetWithDefault("NEW_RELIC_LICENSE_KEY", "")

	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}

	return cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig(&EnvConfigSource{})
}

// LoadConfigFromFile loads configuration from a JSON or YAML file.
// Environment variables will override file values if both are set.
func LoadConfigFromFile(filePath string) (*Config, error) {
	fileSource, err := NewFileConfigSource(filePath)
	if err != nil {
		return nil, err
	}

	composite := &CompositeConfigSource{
		sources: []ConfigSource{&EnvConfigSource{}, fileSource},
	}

	return LoadConfig(composite)
}

// CompositeConfigSource checks multiple config sources in order.
type CompositeConfigSource struct {
	sources []ConfigSource
}

// Get retrieves a value from the first source that has it.
func (c *CompositeConfigSource) Get(key string) (string, bool) {
	for _, source := range c.sources {
		if val, ok := source.Get(key); ok {
			return val, true
		}
	}
	return "", false
}

// GetWithDefault retrieves a value from sources or returns default.
func (c *CompositeConfigSource) GetWithDefault(key, defaultValue string) string {
	for _, source := range c.sources {
		if val, ok := source.Get(key); ok {
			return val
		}
	}
	return defaultValue
}
