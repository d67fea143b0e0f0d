package builder

import (
	"strings"

	"github.com/Egham-7/medchat/internal/models"
)

// WithServer replaces the listener settings. Empty fields keep the builder
// defaults.
func (b *Builder) WithServer(cfg models.ServerConfig) *Builder {
	if cfg.Port != "" {
		b.Port(cfg.Port)
	}
	if cfg.AllowedOrigins != "" {
		b.cfg.Server.AllowedOrigins = cfg.AllowedOrigins
	}
	if cfg.Environment != "" {
		b.Environment(cfg.Environment)
	}
	if cfg.LogLevel != "" {
		b.LogLevel(cfg.LogLevel)
	}
	if cfg.RateLimitRpm > 0 {
		b.RateLimitRpm(cfg.RateLimitRpm)
	}
	return b
}

func (b *Builder) Port(port string) *Builder {
	b.cfg.Server.Port = strings.TrimPrefix(port, ":")
	return b
}

// AllowedOrigins sets the CORS origins of the chat web client. No origins
// means any origin.
func (b *Builder) AllowedOrigins(origins ...string) *Builder {
	kept := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		b.cfg.Server.AllowedOrigins = "*"
		return b
	}
	b.cfg.Server.AllowedOrigins = strings.Join(kept, ",")
	return b
}

func (b *Builder) Environment(env string) *Builder {
	b.cfg.Server.Environment = strings.ToLower(strings.TrimSpace(env))
	return b
}

func (b *Builder) LogLevel(level string) *Builder {
	b.cfg.Server.LogLevel = strings.ToLower(strings.TrimSpace(level))
	return b
}

// RateLimitRpm caps chat requests per user per minute. WithRateLimit takes
// precedence when both are set.
func (b *Builder) RateLimitRpm(rpm int) *Builder {
	b.cfg.Server.RateLimitRpm = rpm
	return b
}
