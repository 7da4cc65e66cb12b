package internal

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the origin of the data API
	DefaultBaseURL = "https://members-ng.iracing.com"
	// MaxChunkConcurrency caps parallel chunk downloads
	MaxChunkConcurrency = 16
)

// Config holds application configuration
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	AuthURL          string        `yaml:"auth_url"`
	LoginTimeout     time.Duration `yaml:"login_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	ChunkConcurrency int           `yaml:"chunk_concurrency"`
	UserAgent        string        `yaml:"user_agent"`
	ProxyURL         string        `yaml:"proxy"`

	// Credentials. Either Username+Password or AccessToken.
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	AccessToken string `yaml:"access_token"`

	// Logging configuration
	LogLevel    string `yaml:"log_level"`
	EnableDebug bool   `yaml:"debug"`
	QuietMode   bool   `yaml:"quiet"`
	LogFile     string `yaml:"log_file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          DefaultBaseURL,
		AuthURL:          DefaultBaseURL + "/auth",
		LoginTimeout:     5 * time.Second,
		RequestTimeout:   0, // resource fetches are not time-limited
		MaxRetries:       5,
		ChunkConcurrency: 1,
		UserAgent:        "irfetch/1.0",

		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr
	}
}

// LoadFromFile merges a YAML configuration file into c
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewValidationErrorWithValue("config", "failed to read config file", path).
			WithContext("error", err.Error())
	}

	baseURL := c.BaseURL
	authURL := c.AuthURL
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewValidationErrorWithValue("config", fmt.Sprintf("invalid YAML: %v", err), path)
	}

	// Follow a base_url override unless the file pinned auth_url too
	if c.BaseURL != baseURL && c.AuthURL == authURL {
		c.AuthURL = AuthURLFor(c.BaseURL)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if base := os.Getenv("IRFETCH_BASE_URL"); base != "" {
		c.BaseURL = base
		if os.Getenv("IRFETCH_AUTH_URL") == "" {
			c.AuthURL = AuthURLFor(base)
		}
	}

	if auth := os.Getenv("IRFETCH_AUTH_URL"); auth != "" {
		c.AuthURL = auth
	}

	if timeout := os.Getenv("IRFETCH_LOGIN_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			c.LoginTimeout = d
		}
	}

	if retries := os.Getenv("IRFETCH_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil && r > 0 {
			c.MaxRetries = r
		}
	}

	if concurrency := os.Getenv("IRFETCH_CONCURRENCY"); concurrency != "" {
		if n, err := strconv.Atoi(concurrency); err == nil && n > 0 && n <= MaxChunkConcurrency {
			c.ChunkConcurrency = n
		}
	}

	c.ProxyURL = GetEnvWithDefault("IRFETCH_PROXY", c.ProxyURL)
	c.Username = GetEnvWithDefault("IRFETCH_USERNAME", c.Username)
	c.Password = GetEnvWithDefault("IRFETCH_PASSWORD", c.Password)
	c.AccessToken = GetEnvWithDefault("IRFETCH_ACCESS_TOKEN", c.AccessToken)

	// Load logging configuration from environment
	c.LogLevel = GetEnvWithDefault("IRFETCH_LOG_LEVEL", c.LogLevel)

	if debug := os.Getenv("IRFETCH_DEBUG"); debug != "" {
		c.EnableDebug = debug == "true" || debug == "1"
	}

	if quiet := os.Getenv("IRFETCH_QUIET"); quiet != "" {
		c.QuietMode = quiet == "true" || quiet == "1"
	}

	c.LogFile = GetEnvWithDefault("IRFETCH_LOG_FILE", c.LogFile)
}

// AuthURLFor returns the login endpoint served under base
func AuthURLFor(base string) string {
	return strings.TrimRight(base, "/") + "/auth"
}

// GetEnvWithDefault returns environment variable value or default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	for field, raw := range map[string]string{"base_url": c.BaseURL, "auth_url": c.AuthURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return NewValidationErrorWithValue(field, "must be an absolute http(s) URL", raw)
		}
	}

	if c.LoginTimeout <= 0 {
		return fmt.Errorf("invalid login timeout: %v (must be > 0)", c.LoginTimeout)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("invalid request timeout: %v (must be >= 0)", c.RequestTimeout)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("invalid max retries: %d (must be >= 1)", c.MaxRetries)
	}

	if c.ChunkConcurrency < 1 || c.ChunkConcurrency > MaxChunkConcurrency {
		return fmt.Errorf("invalid chunk concurrency: %d (must be 1-%d)", c.ChunkConcurrency, MaxChunkConcurrency)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
