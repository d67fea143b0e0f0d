package builder

import (
	"github.com/Egham-7/medchat/internal/models"
)

func (b *Builder) WithDatabase(cfg models.DatabaseConfig) *Builder {
	b.cfg.Database = &cfg
	return b
}

// WithRedis enables stop broadcasts between instances
func (b *Builder) WithRedis(url string) *Builder {
	b.cfg.Redis = &models.RedisConfig{URL: url}
	return b
}

// WithJWTSecret requires HS256 bearer tokens signed with secret
func (b *Builder) WithJWTSecret(secret string) *Builder {
	b.cfg.Auth.JWTSecret = secret
	return b
}

func (b *Builder) WithUploads(cfg models.UploadConfig) *Builder {
	b.cfg.Uploads = cfg
	return b
}
