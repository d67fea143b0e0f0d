package models

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string `json:"port,omitzero" yaml:"port"`
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"`
	Environment    string `json:"environment,omitzero" yaml:"environment"`
	LogLevel       string `json:"log_level,omitzero" yaml:"log_level"`
	RateLimitRpm   int    `json:"rate_limit_rpm,omitzero" yaml:"rate_limit_rpm"` // Requests per minute per user or IP
}

// RateLimitConfig overrides the default per-user limiter
type RateLimitConfig struct {
	Max        int
	Expiration time.Duration
	KeyFunc    func(*fiber.Ctx) string
}

// TimeoutConfig bounds non-streaming request handling
type TimeoutConfig struct {
	Timeout time.Duration
}
