// Package builder assembles a server configuration in code, as an
// alternative to a YAML file.
package builder

import (
	"github.com/Egham-7/medchat/internal/config"
	"github.com/Egham-7/medchat/internal/models"
	"github.com/gofiber/fiber/v2"
)

type Builder struct {
	cfg             *config.Config
	middlewares     []fiber.Handler
	rateLimitConfig *models.RateLimitConfig
	timeoutConfig   *models.TimeoutConfig
}

func New() *Builder {
	return &Builder{
		cfg: &config.Config{
			Server: models.ServerConfig{
				Port:           "8080",
				AllowedOrigins: "*",
				Environment:    "development",
				LogLevel:       "info",
			},
			Models: models.DefaultChatModels(),
			Database: &models.DatabaseConfig{
				Type:     models.SQLite,
				FilePath: "medchat.db",
			},
		},
		middlewares: []fiber.Handler{},
	}
}

// Build fills unset values with defaults and returns the configuration
func (b *Builder) Build() *config.Config {
	return config.WithDefaults(b.cfg)
}

func (b *Builder) GetMiddlewares() []fiber.Handler {
	return b.middlewares
}

func (b *Builder) GetRateLimitConfig() *models.RateLimitConfig {
	return b.rateLimitConfig
}

func (b *Builder) GetTimeoutConfig() *models.TimeoutConfig {
	return b.timeoutConfig
}
