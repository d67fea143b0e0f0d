package pkg

import "github.com/Egham-7/medchat/internal/models"

type (
	ServerConfig    = models.ServerConfig
	AnthropicConfig = models.AnthropicConfig
	StreamConfig    = models.StreamConfig
	ChatModel       = models.ChatModel
	AuthConfig      = models.AuthConfig
	DatabaseConfig  = models.DatabaseConfig
	RedisConfig     = models.RedisConfig
	UploadConfig    = models.UploadConfig
	RateLimitConfig = models.RateLimitConfig
	TimeoutConfig   = models.TimeoutConfig
)
