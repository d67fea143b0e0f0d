package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Egham-7/medchat/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = "8080"
	defaultMaxTokens      = 4096
	defaultTitleModel     = "claude-3-5-haiku-20241022"
	defaultUploadMaxBytes = 32 << 20
	defaultRedisChannel   = "medchat:stop"
	defaultUserHeader     = "X-User-ID"
	defaultSQLitePath     = "medchat.db"

	defaultBreakerFailures  = 5
	defaultBreakerSuccesses = 3
	defaultBreakerOpenMs    = 30000
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

// Config represents the complete application configuration
type Config struct {
	Server       models.ServerConfig    `yaml:"server"`
	Anthropic    models.AnthropicConfig `yaml:"anthropic"`
	Stream       models.StreamConfig    `yaml:"stream"`
	Models       []models.ChatModel     `yaml:"models"`
	DefaultModel string                 `yaml:"default_model"`
	Auth         models.AuthConfig      `yaml:"auth"`
	Database     *models.DatabaseConfig `yaml:"database,omitempty"`
	Redis        *models.RedisConfig    `yaml:"redis,omitempty"`
	Uploads      models.UploadConfig    `yaml:"uploads"`
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration after environment substitution and fills defaults
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return WithDefaults(&config), nil
}

// WithDefaults fills every unset value of cfg with its default and returns cfg
func WithDefaults(cfg *Config) *Config {
	cfg.applyDefaults()
	return cfg
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fmt.Printf("Loaded environment variables from %s\n", envFile)
			}
		}
	}
}

// New creates a new Config instance by loading from the specified config file path
func New(configPath string) (*Config, error) {
	return LoadFromFile(configPath)
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			// Remove the leading '-' from default value
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = defaultPort
	}
	if c.Anthropic.MaxTokens <= 0 {
		c.Anthropic.MaxTokens = defaultMaxTokens
	}
	if c.Anthropic.TitleModel == "" {
		c.Anthropic.TitleModel = defaultTitleModel
	}
	if c.Anthropic.MaxRetries < 0 {
		c.Anthropic.MaxRetries = 0
	}
	if cb := &c.Anthropic.CircuitBreaker; !cb.Disabled {
		if cb.FailureThreshold <= 0 {
			cb.FailureThreshold = defaultBreakerFailures
		}
		if cb.SuccessThreshold <= 0 {
			cb.SuccessThreshold = defaultBreakerSuccesses
		}
		if cb.OpenTimeoutMs <= 0 {
			cb.OpenTimeoutMs = defaultBreakerOpenMs
		}
	}
	if len(c.Models) == 0 {
		c.Models = models.DefaultChatModels()
	}
	if c.DefaultModel == "" {
		c.DefaultModel = models.DefaultModelID
	}
	if c.Auth.UserHeader == "" {
		c.Auth.UserHeader = defaultUserHeader
	}
	if c.Uploads.MaxBytes <= 0 {
		c.Uploads.MaxBytes = defaultUploadMaxBytes
	}
	if len(c.Uploads.AllowedTypes) == 0 {
		c.Uploads.AllowedTypes = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	if c.Database == nil {
		c.Database = &models.DatabaseConfig{Type: models.SQLite, FilePath: defaultSQLitePath}
	}
	if c.Redis != nil && c.Redis.URL == "" {
		c.Redis = nil
	}
	if c.Redis != nil && c.Redis.Channel == "" {
		c.Redis.Channel = defaultRedisChannel
	}
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IdleTimeout returns the configured stream idle timeout, zero when disabled
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Stream.IdleTimeoutMs) * time.Millisecond
}

// FindModel resolves a client-facing model id, falling back to the default model when id is empty
func (c *Config) FindModel(id string) (models.ChatModel, bool) {
	if id == "" {
		id = c.DefaultModel
	}
	return models.FindChatModel(c.Models, id)
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	var missing []string

	if c.Server.Port == "" {
		missing = append(missing, "server.port")
	}
	if c.Server.AllowedOrigins == "" {
		missing = append(missing, "server.allowed_origins")
	}
	if c.Anthropic.APIKey == "" {
		missing = append(missing, "anthropic.api_key")
	}
	if _, ok := models.FindChatModel(c.Models, c.DefaultModel); !ok {
		missing = append(missing, "default_model")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		missing = append(missing, "auth.jwt_secret")
	}

	if len(missing) > 0 {
		return &ValidationError{MissingFields: missing}
	}

	if c.Auth.JWTSecret == "" {
		fiberlog.Warnf("auth.jwt_secret is not set, trusting the %s header", c.Auth.UserHeader)
	}

	return nil
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return "missing required configuration fields: " + strings.Join(e.MissingFields, ", ")
}
