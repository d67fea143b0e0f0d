package models

// AnthropicConfig holds the upstream client settings shared by every session
type AnthropicConfig struct {
	APIKey         string               `yaml:"api_key" json:"api_key,omitzero"`
	BaseURL        string               `yaml:"base_url" json:"base_url,omitzero"` // Optional custom base URL
	Headers        map[string]string    `yaml:"headers" json:"headers,omitzero"`   // Optional custom headers
	TimeoutMs      int                  `yaml:"timeout_ms" json:"timeout_ms,omitzero"`
	MaxTokens      int64                `yaml:"max_tokens" json:"max_tokens,omitzero"`
	Temperature    *float64             `yaml:"temperature" json:"temperature,omitzero"`
	TitleModel     string               `yaml:"title_model" json:"title_model,omitzero"`           // Model used to name new chats
	MaxRetries     int                  `yaml:"max_retries" json:"max_retries,omitzero"`           // Retries of a failed stream open (429/5xx only)
	RetryBackoffMs int                  `yaml:"retry_backoff_ms" json:"retry_backoff_ms,omitzero"` // Linear backoff step between retries
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker,omitzero"`
}

// CircuitBreakerConfig stops opening upstream streams after repeated failures
type CircuitBreakerConfig struct {
	Disabled         bool `yaml:"disabled" json:"disabled,omitzero"`
	FailureThreshold int  `yaml:"failure_threshold" json:"failure_threshold,omitzero"` // Consecutive failures before opening
	SuccessThreshold int  `yaml:"success_threshold" json:"success_threshold,omitzero"` // Half-open successes before closing
	OpenTimeoutMs    int  `yaml:"open_timeout_ms" json:"open_timeout_ms,omitzero"`     // Time spent open before a trial request
}

// StreamConfig holds Session policy
type StreamConfig struct {
	IdleTimeoutMs int  `yaml:"idle_timeout_ms" json:"idle_timeout_ms,omitzero"` // 0 disables the idle timeout
	ErrorEvent    bool `yaml:"error_event" json:"error_event,omitzero"`         // Write an error record before closing a failed stream
}

// UploadConfig bounds file uploads
type UploadConfig struct {
	MaxBytes     int64    `yaml:"max_bytes" json:"max_bytes,omitzero"`
	AllowedTypes []string `yaml:"allowed_types" json:"allowed_types,omitzero"`
}

// RedisConfig enables cross-instance stop signals
type RedisConfig struct {
	URL     string `yaml:"url" json:"url,omitzero"`
	Channel string `yaml:"channel" json:"channel,omitzero"`
}
