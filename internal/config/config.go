// Package config provides centralized configuration management for turboyaml.
// It handles environment variables, default values, an optional YAML config
// file and configuration validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for turboyaml
type Config struct {
	// OpenAI settings
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	Temperature   float32

	// Pipeline settings
	MaxConcurrency int
	MaxRetries     int
	Destination    string

	// Output settings
	ErrorLogFile string
	Verbose      bool
	DebugMode    bool
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// Default values
const (
	DefaultOpenAIModel    = "gpt-4"
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultTemperature    = 0.6
	DefaultMaxConcurrency = 4
	DefaultMaxRetries     = 3
	DefaultDestination    = "schema.yml"
	DefaultErrorLogFile   = "turboyaml_error.log"
)

// Get returns the global configuration, loading from environment if not already loaded
func Get() *Config {
	configOnce.Do(func() {
		globalConfig = loadFromEnv()
	})
	return globalConfig
}

// Reset clears the global configuration, forcing reload on next Get()
// This is primarily useful for testing
func Reset() {
	configOnce = sync.Once{}
	globalConfig = nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv() *Config {
	return &Config{
		// OpenAI settings
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", DefaultOpenAIBaseURL),
		OpenAIModel:   getEnv("OPENAI_MODEL", DefaultOpenAIModel),
		Temperature:   getEnvFloat("TURBOYAML_TEMPERATURE", DefaultTemperature),

		// Pipeline settings
		MaxConcurrency: getEnvInt("TURBOYAML_MAX_CONCURRENCY", DefaultMaxConcurrency),
		MaxRetries:     getEnvInt("TURBOYAML_MAX_RETRIES", DefaultMaxRetries),
		Destination:    DefaultDestination,

		// Output settings
		ErrorLogFile: getEnv("TURBOYAML_ERROR_LOG", DefaultErrorLogFile),
		Verbose:      getEnvBool("TURBOYAML_VERBOSE", false),
		DebugMode:    getEnvBool("TURBOYAML_DEBUG", false),
	}
}

// NewConfig creates a new configuration with default values.
// This is useful for testing or programmatic configuration
func NewConfig() *Config {
	return &Config{
		OpenAIBaseURL:  DefaultOpenAIBaseURL,
		OpenAIModel:    DefaultOpenAIModel,
		Temperature:    DefaultTemperature,
		MaxConcurrency: DefaultMaxConcurrency,
		MaxRetries:     DefaultMaxRetries,
		Destination:    DefaultDestination,
		ErrorLogFile:   DefaultErrorLogFile,
	}
}

// WithOpenAI configures OpenAI settings
func (c *Config) WithOpenAI(apiKey, baseURL, model string) *Config {
	c.OpenAIAPIKey = apiKey
	if baseURL != "" {
		c.OpenAIBaseURL = baseURL
	}
	if model != "" {
		c.OpenAIModel = model
	}
	return c
}

// WithConcurrency sets the number of simultaneous completion requests
func (c *Config) WithConcurrency(n int) *Config {
	if n > 0 {
		c.MaxConcurrency = n
	}
	return c
}

// WithDestination sets the destination file name
func (c *Config) WithDestination(name string) *Config {
	if name != "" {
		c.Destination = name
	}
	return c
}

// WithDebug enables debug and verbose modes
func (c *Config) WithDebug(debug, verbose bool) *Config {
	c.DebugMode = debug
	c.Verbose = verbose
	return c
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive, got %d", c.MaxRetries)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature)
	}
	if c.OpenAIModel == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// fileConfig mirrors the keys accepted in a turboyaml config file.
// Pointers distinguish "absent" from zero values.
type fileConfig struct {
	Model          *string  `yaml:"model"`
	BaseURL        *string  `yaml:"base_url"`
	Temperature    *float32 `yaml:"temperature"`
	MaxConcurrency *int     `yaml:"max_concurrency"`
	MaxRetries     *int     `yaml:"max_retries"`
	ErrorLog       *string  `yaml:"error_log"`
	Destination    *string  `yaml:"destination"`
}

// LoadFile returns a copy of the environment configuration overlaid with the
// values found in the YAML file at path. The API key is never read from the
// file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := *Get()
	if fc.Model != nil {
		cfg.OpenAIModel = *fc.Model
	}
	if fc.BaseURL != nil {
		cfg.OpenAIBaseURL = *fc.BaseURL
	}
	if fc.Temperature != nil {
		cfg.Temperature = *fc.Temperature
	}
	if fc.MaxConcurrency != nil {
		cfg.MaxConcurrency = *fc.MaxConcurrency
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.ErrorLog != nil {
		cfg.ErrorLogFile = *fc.ErrorLog
	}
	if fc.Destination != nil {
		cfg.Destination = *fc.Destination
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		// Also accept "1" as true
		if value == "1" {
			return true
		}
	}
	return defaultValue
}
