package api

import (
	"encoding/json"

	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/auth"
	"github.com/Egham-7/medchat/internal/services/history"
	"github.com/Egham-7/medchat/internal/services/request"
	"github.com/Egham-7/medchat/internal/services/response"

	"github.com/gofiber/fiber/v2"
)

// MedicalHistoryHandler reads and writes the caller's medical history
type MedicalHistoryHandler struct {
	historySvc  *history.Service
	requestSvc  *request.BaseService
	responseSvc *response.BaseService
}

func NewMedicalHistoryHandler(historySvc *history.Service) *MedicalHistoryHandler {
	return &MedicalHistoryHandler{
		historySvc:  historySvc,
		requestSvc:  request.NewBaseService(),
		responseSvc: response.NewBaseService(),
	}
}

// Get handles GET /v1/medical-history. An empty history is returned when none is on file.
func (h *MedicalHistoryHandler) Get(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	raw, err := h.historySvc.GetMedicalHistory(c.UserContext(), userID)
	if err != nil {
		return h.responseSvc.AppError(c, historyError(err), requestID)
	}

	var payload models.MedicalHistoryPayload
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return h.responseSvc.AppError(c, models.NewInternalError("stored medical history is unreadable", err), requestID)
		}
	}
	return c.JSON(payload)
}

// Put handles PUT /v1/medical-history
func (h *MedicalHistoryHandler) Put(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	var payload models.MedicalHistoryPayload
	if err := c.BodyParser(&payload); err != nil {
		return h.responseSvc.AppError(c, models.NewValidationError("invalid JSON in request body", err), requestID)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return h.responseSvc.AppError(c, models.NewInternalError("failed to encode medical history", err), requestID)
	}
	if err := h.historySvc.SaveMedicalHistory(c.UserContext(), userID, string(raw)); err != nil {
		return h.responseSvc.AppError(c, historyError(err), requestID)
	}
	return c.JSON(payload)
}
