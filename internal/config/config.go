package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFacePPBaseURL   = "https://api-us.faceplusplus.com"
	DefaultAcquisitionPath = "/analysis"
	DefaultSweepSchedule   = "@every 1m"
	defaultMaxBodySize     = 5 * 1024 * 1024
	defaultProviderRetries = 3
	defaultRetryBackoff    = time.Second
	defaultSessionTTL      = 30 * time.Minute
	defaultRequestTimeout  = 30 * time.Second
	defaultFetchTimeout    = 15 * time.Second
	defaultAnalysisTimeout = 20 * time.Second
)

type Config struct {
	Host               string        `yaml:"host"`
	Port               string        `yaml:"port"`
	LogLevel           string        `yaml:"log_level"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ImageFetchTimeout  time.Duration `yaml:"image_fetch_timeout"`
	AnalysisTimeout    time.Duration `yaml:"analysis_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
	AcquisitionPath    string        `yaml:"acquisition_path"`
	ImageSourceHosts   []string      `yaml:"image_source_hosts"`

	Provider ProviderConfig `yaml:"provider"`
	Session  SessionConfig  `yaml:"session"`
	Azure    AzureConfig    `yaml:"azure"`
}

// ProviderConfig holds the Face++ credentials and call policy.
type ProviderConfig struct {
	APIKey             string        `yaml:"api_key"`
	APISecret          string        `yaml:"api_secret"`
	BaseURL            string        `yaml:"base_url"`
	SkinAnalysis       bool          `yaml:"skin_analysis"`
	CelebrityFacesetID string        `yaml:"celebrity_faceset"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
}

// Configured reports whether both credentials are present.
func (p ProviderConfig) Configured() bool {
	return strings.TrimSpace(p.APIKey) != "" && strings.TrimSpace(p.APISecret) != ""
}

type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

type AzureConfig struct {
	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`
	ServiceURL  string `yaml:"service_url"`
}

// Enabled reports whether blob image sources can be served.
func (a AzureConfig) Enabled() bool {
	return a.AccountName != "" && a.AccountKey != ""
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               "8080",
		LogLevel:           "info",
		RequestTimeout:     defaultRequestTimeout,
		ImageFetchTimeout:  defaultFetchTimeout,
		AnalysisTimeout:    defaultAnalysisTimeout,
		MaxRequestBodySize: defaultMaxBodySize,
		AcquisitionPath:    DefaultAcquisitionPath,
		Provider: ProviderConfig{
			BaseURL:      DefaultFacePPBaseURL,
			MaxRetries:   defaultProviderRetries,
			RetryBackoff: defaultRetryBackoff,
		},
		Session: SessionConfig{
			TTL:           defaultSessionTTL,
			SweepSchedule: DefaultSweepSchedule,
		},
	}
}

// LoadFromEnv builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE, a .env file and finally the process environment.
func LoadFromEnv() (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ImageFetchTimeout = parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", cfg.ImageFetchTimeout)
	cfg.AnalysisTimeout = parseDurationOrDefault("ANALYSIS_TIMEOUT", cfg.AnalysisTimeout)
	cfg.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", cfg.MaxRequestBodySize)
	cfg.AcquisitionPath = getEnvOrDefault("ACQUISITION_PATH", cfg.AcquisitionPath)
	cfg.ImageSourceHosts = parseListOrDefault("IMAGE_SOURCE_HOSTS", cfg.ImageSourceHosts)

	cfg.Provider.APIKey = getEnvOrDefault("FACEPP_API_KEY", cfg.Provider.APIKey)
	cfg.Provider.APISecret = getEnvOrDefault("FACEPP_API_SECRET", cfg.Provider.APISecret)
	cfg.Provider.BaseURL = getEnvOrDefault("FACEPP_BASE_URL", cfg.Provider.BaseURL)
	cfg.Provider.SkinAnalysis = parseBoolOrDefault("FACEPP_SKIN_ANALYSIS", cfg.Provider.SkinAnalysis)
	cfg.Provider.CelebrityFacesetID = getEnvOrDefault("FACEPP_CELEBRITY_FACESET", cfg.Provider.CelebrityFacesetID)
	cfg.Provider.MaxRetries = int(parseIntOrDefault("PROVIDER_MAX_RETRIES", int64(cfg.Provider.MaxRetries)))
	cfg.Provider.RetryBackoff = parseDurationOrDefault("PROVIDER_RETRY_BACKOFF", cfg.Provider.RetryBackoff)

	cfg.Session.TTL = parseDurationOrDefault("SESSION_TTL", cfg.Session.TTL)
	cfg.Session.SweepSchedule = getEnvOrDefault("SESSION_SWEEP_SCHEDULE", cfg.Session.SweepSchedule)

	cfg.Azure.AccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", cfg.Azure.AccountName)
	cfg.Azure.AccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", cfg.Azure.AccountKey)
	cfg.Azure.ServiceURL = getEnvOrDefault("AZURE_STORAGE_ENDPOINT", cfg.Azure.ServiceURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, analysis=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.AnalysisTimeout)
	}
	if c.Provider.MaxRetries < 1 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must be >= 1 (got %d)", c.Provider.MaxRetries)
	}
	if c.Provider.RetryBackoff < 0 {
		return fmt.Errorf("PROVIDER_RETRY_BACKOFF must be >= 0 (got %s)", c.Provider.RetryBackoff)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0 (got %s)", c.Session.TTL)
	}
	if !strings.HasPrefix(c.AcquisitionPath, "/") {
		return fmt.Errorf("ACQUISITION_PATH must be an absolute path (got %q)", c.AcquisitionPath)
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration >= 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// parseListOrDefault splits a comma-separated value, dropping blanks.
func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
