package messages

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/circuitbreaker"
	"github.com/Egham-7/medchat/internal/services/stream/contracts"
	"github.com/Egham-7/medchat/internal/services/stream/readers"
	"github.com/Egham-7/medchat/internal/utils/clientcache"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Breaker guards stream opens against a failing upstream
type Breaker interface {
	Allow(ctx context.Context) bool
	RecordSuccess(ctx context.Context)
	RecordFailure(ctx context.Context)
}

// MessagesService handles Anthropic Messages API calls using the Anthropic SDK
type MessagesService struct {
	config      models.AnthropicConfig
	clientCache *clientcache.Cache[*anthropic.Client]
	breaker     Breaker
	// sleep waits between retries; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewMessagesService creates a new MessagesService. breaker may be nil.
func NewMessagesService(config models.AnthropicConfig, breaker Breaker) *MessagesService {
	return &MessagesService{
		config:      config,
		clientCache: clientcache.NewCache[*anthropic.Client](),
		breaker:     breaker,
		sleep:       sleepContext,
	}
}

// generateConfigHash creates a hash of the client config to detect changes
func (ms *MessagesService) generateConfigHash(config models.AnthropicConfig) (string, error) {
	type configForHash struct {
		BaseURL    string
		Headers    map[string]string
		APIKeyHash string
	}

	apiKeyHash := sha256.Sum256([]byte(config.APIKey))
	hashConfig := configForHash{
		BaseURL:    config.BaseURL,
		Headers:    config.Headers,
		APIKeyHash: fmt.Sprintf("%x", apiKeyHash[:8]),
	}

	configJSON, err := json.Marshal(hashConfig)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(configJSON)
	return fmt.Sprintf("%x", hash[:16]), nil
}

// Client creates or retrieves the cached Anthropic client
func (ms *MessagesService) Client() *anthropic.Client {
	configHash, err := ms.generateConfigHash(ms.config)
	if err != nil {
		fiberlog.Warnf("Failed to generate config hash: %v, creating new client without caching", err)
		return ms.buildClient(ms.config)
	}

	client, err := ms.clientCache.GetOrCreate(configHash, func() (*anthropic.Client, error) {
		fiberlog.Debugf("Creating new Anthropic client (config hash: %s)", configHash[:8])
		return ms.buildClient(ms.config), nil
	})
	if err != nil {
		fiberlog.Warnf("Unexpected error from cache: %v, creating new client", err)
		return ms.buildClient(ms.config)
	}

	return client
}

// buildClient creates a new Anthropic client. SDK retries are disabled so
// that Opener owns the retry policy.
func (ms *MessagesService) buildClient(config models.AnthropicConfig) *anthropic.Client {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}

	if config.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(config.BaseURL))
	}

	for key, value := range config.Headers {
		clientOpts = append(clientOpts, option.WithHeader(key, value))
	}

	client := anthropic.NewClient(clientOpts...)
	return &client
}

// BuildParams assembles a Messages request for model
func (ms *MessagesService) BuildParams(model, system string, messages []anthropic.MessageParam) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		MaxTokens: ms.config.MaxTokens,
		Messages:  messages,
		Model:     anthropic.Model(model),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if ms.config.Temperature != nil {
		params.Temperature = anthropic.Float(*ms.config.Temperature)
	}
	return params
}

// SendMessage sends a non-streaming message request to Anthropic
func (ms *MessagesService) SendMessage(
	ctx context.Context,
	params anthropic.MessageNewParams,
	requestID string,
) (*anthropic.Message, error) {
	fiberlog.Infof("[%s] Making non-streaming Anthropic API request - model: %s, max_tokens: %d",
		requestID, params.Model, params.MaxTokens)

	if ms.config.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms.config.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	startTime := time.Now()
	message, err := ms.Client().Messages.New(ctx, params)
	duration := time.Since(startTime)

	if err != nil {
		fiberlog.Errorf("[%s] Anthropic API request failed after %v: %v", requestID, duration, err)
		return nil, models.NewProviderError("anthropic", "message request failed", err)
	}

	fiberlog.Infof("[%s] Anthropic API request completed in %v - usage: input:%d, output:%d",
		requestID, duration, message.Usage.InputTokens, message.Usage.OutputTokens)
	return message, nil
}

// SendStreamingMessage opens a streaming message request to Anthropic
func (ms *MessagesService) SendStreamingMessage(
	ctx context.Context,
	params anthropic.MessageNewParams,
	requestID string,
) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	fiberlog.Infof("[%s] Making streaming Anthropic API request - model: %s, max_tokens: %d",
		requestID, params.Model, params.MaxTokens)
	return ms.Client().Messages.NewStreaming(ctx, params)
}

// Opener returns a session opener for params. Each open validates the stream
// by reading its first event and retries 429 and 5xx answers up to
// max_retries times with a linear backoff. An open breaker fails the open
// without calling upstream.
func (ms *MessagesService) Opener(params anthropic.MessageNewParams, requestID string) contracts.Opener {
	return func(ctx context.Context) (contracts.DeltaSource, error) {
		var lastErr error
		for attempt := 0; attempt <= ms.config.MaxRetries; attempt++ {
			if attempt > 0 {
				backoff := time.Duration(ms.config.RetryBackoffMs*attempt) * time.Millisecond
				fiberlog.Warnf("[%s] Retrying upstream stream (attempt %d/%d) in %v: %v",
					requestID, attempt+1, ms.config.MaxRetries+1, backoff, lastErr)
				if err := ms.sleep(ctx, backoff); err != nil {
					return nil, err
				}
			}

			if ms.breaker != nil && !ms.breaker.Allow(ctx) {
				fiberlog.Warnf("[%s] Upstream circuit breaker is open", requestID)
				return nil, fmt.Errorf("anthropic: %w", circuitbreaker.ErrOpen)
			}

			stream := ms.SendStreamingMessage(ctx, params, requestID)
			source, err := readers.NewAnthropicDeltaSource(stream, requestID)
			if err == nil {
				ms.recordOutcome(ctx, nil)
				return source, nil
			}
			ms.recordOutcome(ctx, err)
			lastErr = err
			if !IsRetryable(err) {
				break
			}
		}
		return nil, lastErr
	}
}

func (ms *MessagesService) recordOutcome(ctx context.Context, err error) {
	if ms.breaker == nil {
		return
	}
	switch {
	case err == nil:
		ms.breaker.RecordSuccess(ctx)
	case countsAsFailure(err):
		ms.breaker.RecordFailure(ctx)
	}
}

// countsAsFailure excludes cancellations and client errors such as 400 or 401
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return IsRetryable(err)
	}
	return true
}

// IsRetryable reports whether err is an Anthropic API answer worth retrying
func IsRetryable(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
