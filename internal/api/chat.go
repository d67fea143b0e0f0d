package api

import (
	"errors"
	"strings"

	"github.com/Egham-7/medchat/internal/config"
	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/anthropic/messages"
	"github.com/Egham-7/medchat/internal/services/auth"
	"github.com/Egham-7/medchat/internal/services/chat"
	"github.com/Egham-7/medchat/internal/services/history"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ChatHandler serves the streaming chat endpoint and chat management
type ChatHandler struct {
	cfg         *config.Config
	chatSvc     *chat.Service
	historySvc  *history.Service
	requestSvc  *messages.RequestService
	responseSvc *messages.ResponseService
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(cfg *config.Config, chatSvc *chat.Service, historySvc *history.Service) *ChatHandler {
	return &ChatHandler{
		cfg:         cfg,
		chatSvc:     chatSvc,
		historySvc:  historySvc,
		requestSvc:  messages.NewRequestService(),
		responseSvc: messages.NewResponseService(cfg.Stream),
	}
}

// Chat handles POST /v1/chat and answers with an SSE stream of snapshots
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)
	fiberlog.Infof("[%s] Starting chat request from %s", requestID, c.IP())

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	req, err := h.requestSvc.ParseRequest(c)
	if err != nil {
		fiberlog.Warnf("[%s] Request parsing failed: %v", requestID, err)
		return h.responseSvc.AppError(c, err, requestID)
	}

	model, ok := h.cfg.FindModel(req.ModelID)
	if !ok {
		return h.responseSvc.AppError(c, models.NewNotFoundError("model"), requestID)
	}
	fiberlog.Debugf("[%s] Request parsed - chat: %s, model: %s, messages: %d",
		requestID, req.ID, model.ID, len(req.Messages))

	sess, release, err := h.chatSvc.StartChat(c.UserContext(), userID, req, model, requestID)
	if err != nil {
		return h.responseSvc.HandleError(c, err, requestID)
	}

	return h.responseSvc.HandleStreamingResponse(c, sess, func(error) { release() })
}

// DeleteChat handles DELETE /v1/chat?id=
func (h *ChatHandler) DeleteChat(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	chatID := strings.TrimSpace(c.Query("id"))
	if chatID == "" {
		return h.responseSvc.AppError(c, models.NewValidationError("Missing chat ID", nil), requestID)
	}

	if err := h.historySvc.DeleteChat(c.UserContext(), userID, chatID); err != nil {
		return h.responseSvc.AppError(c, historyError(err), requestID)
	}

	// A reply still streaming into a deleted chat has nowhere to go
	if _, err := h.chatSvc.Registry().Stop(c.UserContext(), chatID); err != nil {
		fiberlog.Warnf("[%s] %v", requestID, err)
	}

	fiberlog.Infof("[%s] Deleted chat %s", requestID, chatID)
	return c.SendString("OK")
}

// StopChat handles POST /v1/chat/:id/stop
func (h *ChatHandler) StopChat(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	chatID := c.Params("id")
	if _, err := h.historySvc.GetChat(c.UserContext(), userID, chatID); err != nil {
		return h.responseSvc.AppError(c, historyError(err), requestID)
	}

	stopped, err := h.chatSvc.Registry().Stop(c.UserContext(), chatID)
	if err != nil {
		fiberlog.Warnf("[%s] %v", requestID, err)
	}
	if !stopped {
		return h.responseSvc.AppError(c, models.NewNotFoundError("running stream"), requestID)
	}

	fiberlog.Infof("[%s] Stop requested for chat %s", requestID, chatID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": chatID, "stopped": true})
}

// Messages handles GET /v1/chat/:id/messages
func (h *ChatHandler) Messages(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	msgs, err := h.historySvc.GetMessages(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return h.responseSvc.AppError(c, historyError(err), requestID)
	}
	return c.JSON(msgs)
}

// ListChats handles GET /v1/chat
func (h *ChatHandler) ListChats(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	chats, err := h.historySvc.ListChats(c.UserContext(), userID)
	if err != nil {
		return h.responseSvc.AppError(c, historyError(err), requestID)
	}
	return c.JSON(chats)
}

// historyError maps store errors onto API errors
func historyError(err error) error {
	switch {
	case errors.Is(err, history.ErrChatNotFound):
		return models.NewNotFoundError("chat")
	case errors.Is(err, history.ErrDocumentNotFound):
		return models.NewNotFoundError("document")
	default:
		return models.NewInternalError("storage error", err)
	}
}
