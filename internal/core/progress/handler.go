package progress

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler { return &Handler{service: service} }

// HandleGet serves GET /v1/jobs/:id/:entityKind. An unknown job id is a
// valid poll target, so it answers 200 with null fields rather than 404.
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	report, err := h.service.Get(c.Context(), c.Params("id"), c.Params("entityKind"))
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "progress lookup failed"})
	}
	return c.JSON(report)
}
