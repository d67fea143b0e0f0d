package api

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/Egham-7/medchat/internal/config"
	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/anthropic/messages"
	"github.com/Egham-7/medchat/internal/services/auth"
	"github.com/Egham-7/medchat/internal/services/chat"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// FilesHandler accepts an uploaded file and streams the model's review of it
type FilesHandler struct {
	cfg         *config.Config
	chatSvc     *chat.Service
	requestSvc  *messages.RequestService
	responseSvc *messages.ResponseService
}

func NewFilesHandler(cfg *config.Config, chatSvc *chat.Service) *FilesHandler {
	return &FilesHandler{
		cfg:         cfg,
		chatSvc:     chatSvc,
		requestSvc:  messages.NewRequestService(),
		responseSvc: messages.NewResponseService(cfg.Stream),
	}
}

// Upload handles POST /v1/files/upload with a multipart "file" field
func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	requestID := h.requestSvc.GetRequestID(c)

	userID, ok := auth.GetUserID(c)
	if !ok {
		return h.responseSvc.AppError(c, models.NewUnauthorizedError("Unauthorized"), requestID)
	}

	header, err := c.FormFile("file")
	if err != nil {
		return h.responseSvc.AppError(c, models.NewValidationError("No file uploaded", err), requestID)
	}

	contentType := strings.TrimSpace(strings.Split(header.Header.Get(fiber.HeaderContentType), ";")[0])
	if problems := h.validate(header.Size, contentType); problems != "" {
		fiberlog.Warnf("[%s] Rejected upload %q: %s", requestID, header.Filename, problems)
		return h.responseSvc.AppError(c, models.NewValidationError(problems, nil), requestID)
	}

	file, err := header.Open()
	if err != nil {
		return h.responseSvc.AppError(c, models.NewInternalError("failed to read upload", err), requestID)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.Uploads.MaxBytes+1))
	if err != nil {
		return h.responseSvc.AppError(c, models.NewInternalError("failed to read upload", err), requestID)
	}
	if int64(len(data)) > h.cfg.Uploads.MaxBytes {
		return h.responseSvc.AppError(c, models.NewValidationError(h.sizeMessage(), nil), requestID)
	}

	model, _ := h.cfg.FindModel("")
	fiberlog.Infof("[%s] Reviewing upload %q (%s, %d bytes)", requestID, header.Filename, contentType, len(data))

	sess, err := h.chatSvc.StartFileReview(c.UserContext(), userID, header.Filename, contentType, data, model, requestID)
	if err != nil {
		return h.responseSvc.HandleError(c, err, requestID)
	}
	return h.responseSvc.HandleStreamingResponse(c, sess, nil)
}

// validate returns every violated constraint joined by ", "
func (h *FilesHandler) validate(size int64, contentType string) string {
	var problems []string
	if size > h.cfg.Uploads.MaxBytes {
		problems = append(problems, h.sizeMessage())
	}
	if !slices.Contains(h.cfg.Uploads.AllowedTypes, contentType) {
		problems = append(problems, "File type should be "+describeTypes(h.cfg.Uploads.AllowedTypes))
	}
	return strings.Join(problems, ", ")
}

func (h *FilesHandler) sizeMessage() string {
	return fmt.Sprintf("File size should be less than %dMB", h.cfg.Uploads.MaxBytes>>20)
}

// describeTypes renders ["application/pdf","image/jpeg","image/png"] as "PDF, JPEG, or PNG"
func describeTypes(types []string) string {
	names := make([]string, len(types))
	for i, t := range types {
		_, sub, found := strings.Cut(t, "/")
		if !found {
			sub = t
		}
		names[i] = strings.ToUpper(sub)
	}
	switch len(names) {
	case 0:
		return "one of the allowed types"
	case 1:
		return names[0]
	case 2:
		return names[0] + " or " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
	}
}
