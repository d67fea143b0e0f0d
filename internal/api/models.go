package api

import (
	"github.com/Egham-7/medchat/internal/config"

	"github.com/gofiber/fiber/v2"
)

// ModelsHandler lists the chat models clients may pick
type ModelsHandler struct {
	cfg *config.Config
}

func NewModelsHandler(cfg *config.Config) *ModelsHandler {
	return &ModelsHandler{cfg: cfg}
}

// List handles GET /v1/models
func (h *ModelsHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"models":  h.cfg.Models,
		"default": h.cfg.DefaultModel,
	})
}
