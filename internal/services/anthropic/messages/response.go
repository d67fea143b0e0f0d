package messages

import (
	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/response"
	"github.com/Egham-7/medchat/internal/services/stream/contracts"
	"github.com/Egham-7/medchat/internal/services/stream/handlers"
	"github.com/Egham-7/medchat/internal/services/stream/session"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ResponseService writes chat responses and errors
type ResponseService struct {
	*response.BaseService
	streamConfig models.StreamConfig
}

// NewResponseService creates a new ResponseService
func NewResponseService(streamConfig models.StreamConfig) *ResponseService {
	return &ResponseService{
		BaseService:  response.NewBaseService(),
		streamConfig: streamConfig,
	}
}

// HandleStreamingResponse pipes a started session to the client
func (rs *ResponseService) HandleStreamingResponse(c *fiber.Ctx, sess *session.Session, onFinish func(error)) error {
	fiberlog.Infof("[%s] Starting chat streaming response", sess.RequestID())
	return handlers.HandleSession(c, sess, handlers.StreamConfig{
		ErrorEvent: rs.streamConfig.ErrorEvent,
		OnFinish:   onFinish,
	})
}

// HandleError answers with a JSON error. Stream errors that happen before
// the first frame map onto provider and internal errors.
func (rs *ResponseService) HandleError(c *fiber.Ctx, err error, requestID string) error {
	if kind, ok := contracts.KindOf(err); ok {
		switch kind {
		case contracts.UpstreamRequest, contracts.UpstreamStream, contracts.IdleTimeout:
			err = models.NewProviderError("anthropic", "failed to process with Claude", err)
		case contracts.Cancelled:
			fiberlog.Infof("[%s] Request cancelled before streaming: %v", requestID, err)
			return c.SendStatus(fiber.StatusNoContent)
		default:
			err = models.NewInternalError("stream setup failed", err)
		}
	}
	return rs.AppError(c, err, requestID)
}
