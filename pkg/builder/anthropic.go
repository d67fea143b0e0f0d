package builder

import (
	"maps"
	"time"

	"github.com/Egham-7/medchat/internal/models"
)

func (b *Builder) WithAnthropic(cfg models.AnthropicConfig) *Builder {
	if cfg.Headers != nil {
		cfg.Headers = maps.Clone(cfg.Headers)
	}
	b.cfg.Anthropic = cfg
	return b
}

func (b *Builder) APIKey(apiKey string) *Builder {
	b.cfg.Anthropic.APIKey = apiKey
	return b
}

func (b *Builder) BaseURL(url string) *Builder {
	b.cfg.Anthropic.BaseURL = url
	return b
}

// WithRetries retries failed stream opens on 429 and 5xx answers
func (b *Builder) WithRetries(maxRetries int, backoff time.Duration) *Builder {
	b.cfg.Anthropic.MaxRetries = maxRetries
	b.cfg.Anthropic.RetryBackoffMs = int(backoff / time.Millisecond)
	return b
}

// WithModels replaces the model registry; the first model becomes the default
func (b *Builder) WithModels(chatModels ...models.ChatModel) *Builder {
	b.cfg.Models = chatModels
	if len(chatModels) > 0 {
		b.cfg.DefaultModel = chatModels[0].ID
	}
	return b
}

// WithIdleTimeout fails a stream whose upstream stays silent for d
func (b *Builder) WithIdleTimeout(d time.Duration) *Builder {
	b.cfg.Stream.IdleTimeoutMs = int(d / time.Millisecond)
	return b
}

// WithErrorEvent writes an error record before closing a failed stream
func (b *Builder) WithErrorEvent(enabled bool) *Builder {
	b.cfg.Stream.ErrorEvent = enabled
	return b
}
