package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"listingreel/internal/core/flows"
	"listingreel/internal/core/listing"
)

type Handler struct {
	events *Service
}

func NewHandler(events *Service) *Handler { return &Handler{events: events} }

type publishRequest struct {
	EventName string          `json:"eventName"`
	Data      json.RawMessage `json:"data"`
}

type publishResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"eventId"`
}

// HandlePublish serves POST /v1/events, the generic trigger endpoint.
func (h *Handler) HandlePublish(c *fiber.Ctx) error {
	var req publishRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.EventName == "" {
		return badRequest(c, "eventName is required")
	}
	return h.trigger(c, req.EventName, req.Data)
}

// HandleParseListing serves POST /v1/listings/parse.
func (h *Handler) HandleParseListing(c *fiber.Ctx) error {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	data, _ := json.Marshal(map[string]string{"url": req.URL})
	return h.trigger(c, flows.EventListingParse, data)
}

// HandleGenerateScripts serves POST /v1/listings/:id/scripts.
func (h *Handler) HandleGenerateScripts(c *fiber.Ctx) error {
	data, _ := json.Marshal(map[string]string{"listingId": c.Params("id")})
	return h.trigger(c, flows.EventGenerateScripts, data)
}

// HandleGenerateAutoReel serves POST /v1/groups/:id/auto-reel.
func (h *Handler) HandleGenerateAutoReel(c *fiber.Ctx) error {
	data, _ := json.Marshal(map[string]string{"groupId": c.Params("id")})
	return h.trigger(c, flows.EventGenerateAutoReel, data)
}

// HandleGenerateFinalVideo serves POST /v1/groups/:id/final-video.
func (h *Handler) HandleGenerateFinalVideo(c *fiber.Ctx) error {
	data, _ := json.Marshal(map[string]string{"groupId": c.Params("id")})
	return h.trigger(c, flows.EventGenerateFinal, data)
}

func (h *Handler) trigger(c *fiber.Ctx, eventName string, data json.RawMessage) error {
	eventID, err := h.events.Trigger(c.Context(), eventName, data)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownEvent), errors.Is(err, ErrPrecondition):
			return badRequest(c, err.Error())
		case errors.Is(err, listing.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": fmt.Sprintf("trigger failed: %v", err)})
		}
	}
	return c.Status(fiber.StatusAccepted).JSON(publishResponse{Success: true, EventID: eventID})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": msg})
}
