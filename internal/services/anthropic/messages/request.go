package messages

import (
	"fmt"
	"strings"

	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/request"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// RequestService handles chat request parsing and validation
type RequestService struct {
	*request.BaseService
}

// NewRequestService creates a new RequestService
func NewRequestService() *RequestService {
	return &RequestService{BaseService: request.NewBaseService()}
}

// ParseRequest parses a chat request body
func (rs *RequestService) ParseRequest(c *fiber.Ctx) (*models.ChatRequest, error) {
	requestID := rs.GetRequestID(c)

	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		fiberlog.Errorf("[%s] Failed to parse chat request body: %v", requestID, err)
		return nil, models.NewValidationError("invalid JSON in request body", err)
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		return nil, models.NewValidationError("chat id is required", nil)
	}
	if len(req.Messages) == 0 {
		return nil, models.NewValidationError("messages must not be empty", nil)
	}

	return &req, nil
}

// MostRecentUserMessage returns the last message sent by the user
func MostRecentUserMessage(messages []models.ChatMessage) (models.ChatMessage, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i], nil
		}
	}
	return models.ChatMessage{}, models.NewValidationError(fmt.Sprintf("no user message found in %d messages", len(messages)), nil)
}
