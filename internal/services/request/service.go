package request

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
)

const (
	// requestIDLocalKey is the shared key for storing request ID in fiber locals
	requestIDLocalKey = "request_id"
	// maxRequestIDLength is the maximum allowed length for request IDs
	maxRequestIDLength = 256
)

// BaseService provides common request handling utilities that can be embedded and specialized
type BaseService struct{}

// NewBaseService creates a new base request service
func NewBaseService() *BaseService {
	return &BaseService{}
}

// sanitizeRequestID sanitizes and caps the length of a request ID
func (s *BaseService) sanitizeRequestID(reqID string) string {
	sanitized := strings.TrimSpace(reqID)
	if len(sanitized) > maxRequestIDLength {
		sanitized = sanitized[:maxRequestIDLength]
	}
	return sanitized
}

// GetRequestID extracts or generates a request ID from the context.
// The id is cached in locals and echoed in the X-Request-ID response header.
func (s *BaseService) GetRequestID(c *fiber.Ctx) string {
	if cachedID, ok := c.Locals(requestIDLocalKey).(string); ok && cachedID != "" {
		return cachedID
	}

	requestID := s.sanitizeRequestID(c.Get(fiber.HeaderXRequestID))
	if requestID == "" {
		requestID = s.GenerateRequestID()
	}

	s.SetRequestID(c, requestID)
	return requestID
}

// GenerateRequestID creates a new time-ordered request ID
func (s *BaseService) GenerateRequestID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "req_unknown"
	}
	return "req_" + strings.ToLower(id.String())
}

// SetRequestID sets the request ID in the context locals and response header
func (s *BaseService) SetRequestID(c *fiber.Ctx, requestID string) {
	c.Locals(requestIDLocalKey, requestID)
	c.Set(fiber.HeaderXRequestID, requestID)
}
