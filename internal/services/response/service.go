package response

import (
	"github.com/Egham-7/medchat/internal/models"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// BaseService provides common HTTP response utilities that can be embedded and specialized
type BaseService struct{}

// NewBaseService creates a new base response service
func NewBaseService() *BaseService {
	return &BaseService{}
}

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Error sends an error response with specified status, type, and code
func (s *BaseService) Error(c *fiber.Ctx, status int, message, errorType, code string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Code:    code,
		},
	})
}

// AppError sends err as a sanitized error response. Internal causes are logged, never returned.
func (s *BaseService) AppError(c *fiber.Ctx, err error, requestID string) error {
	sanitized := models.SanitizeError(err)
	if sanitized.GetStatusCode() >= fiber.StatusInternalServerError {
		fiberlog.Errorf("[%s] %v", requestID, err)
	}
	return c.Status(sanitized.GetStatusCode()).JSON(ErrorResponse{
		Error: ErrorDetail{
			Message:   sanitized.Message,
			Type:      string(sanitized.Type),
			Code:      sanitized.Code,
			RequestID: requestID,
		},
	})
}

// Success sends a 200 OK response with the provided data
func (s *BaseService) Success(c *fiber.Ctx, data any) error {
	return c.JSON(data)
}
