package messages

import (
	"context"
	"strings"

	"github.com/Egham-7/medchat/internal/services/prompts"

	"github.com/anthropics/anthropic-sdk-go"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const titleMaxTokens = 100

// GenerateTitle names a new chat after its first user message. Any failure
// falls back to a title cut from the message itself.
func (ms *MessagesService) GenerateTitle(ctx context.Context, firstMessage, requestID string) string {
	params := anthropic.MessageNewParams{
		MaxTokens: titleMaxTokens,
		Model:     anthropic.Model(ms.config.TitleModel),
		System:    []anthropic.TextBlockParam{{Text: prompts.Title}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(firstMessage)),
		},
	}

	message, err := ms.SendMessage(ctx, params, requestID)
	if err != nil {
		fiberlog.Warnf("[%s] Title generation failed, using message prefix: %v", requestID, err)
		return prompts.FallbackTitle(firstMessage)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	title := prompts.SanitizeTitle(text.String())
	if title == "" {
		return prompts.FallbackTitle(firstMessage)
	}
	return title
}
