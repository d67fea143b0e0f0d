package api

import (
	"strings"

	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/auth"
	"github.com/Egham-7/medchat/internal/services/history"
	"github.com/Egham-7/medchat/internal/services/request"
	"github.com/Egham-7/medchat/internal/services/response"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// DocumentsHandler stores user documents
type DocumentsHandler struct {
	historySvc  *history.Service
	requestSvc  *request.BaseService
	responseSvc *response.BaseService
}

func NewDocumentsHandler(historySvc *history.Service) *DocumentsHandler {
	return &DocumentsHandler{
		historySvc:  historySvc,
		requestSvc:  request.NewBaseService(),
		responseSvc: response.NewBaseService(),
	}
}

// Create handles POST /v1/documents
func (h *DocumentsHandler) Create(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	var req models.DocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return h.responseSvc.AppError(c, models.NewValidationError("invalid JSON in request body", err), requestID)
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return h.responseSvc.AppError(c, models.NewValidationError("title is required", nil), requestID)
	}

	doc, err := h.historySvc.CreateDocument(c.UserContext(), userID, req.Title, req.Content)
	if err != nil {
		return h.responseSvc.AppError(c, historyError(err), requestID)
	}

	fiberlog.Infof("[%s] Created document %s", requestID, doc.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": doc.ID, "title": doc.Title})
}

// Update handles PUT /v1/documents
func (h *DocumentsHandler) Update(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	var req models.DocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return h.responseSvc.AppError(c, models.NewValidationError("invalid JSON in request body", err), requestID)
	}
	if req.ID == "" {
		return h.responseSvc.AppError(c, models.NewValidationError("id is required", nil), requestID)
	}

	doc, err := h.historySvc.UpdateDocument(c.UserContext(), userID, req.ID, req.Content)
	if err != nil {
		return h.responseSvc.AppError(c, historyError(err), requestID)
	}
	return c.JSON(doc)
}
