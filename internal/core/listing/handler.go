package listing

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"listingreel/internal/logger"
	"listingreel/internal/platform/storage"
)

// SpeechSynthesizer is the text-to-speech slice the voice-over action uses.
type SpeechSynthesizer interface {
	Convert(ctx context.Context, script, voiceID string) ([]byte, error)
}

type Handler struct {
	store        Store
	tts          SpeechSynthesizer
	uploads      storage.Uploader
	defaultVoice string
	log          *logger.Logger
}

func NewHandler(store Store, tts SpeechSynthesizer, uploads storage.Uploader, defaultVoice string) *Handler {
	return &Handler{
		store:        store,
		tts:          tts,
		uploads:      uploads,
		defaultVoice: defaultVoice,
		log:          logger.New("Listings"),
	}
}

// HandleGetGroups serves GET /v1/listings/:id/groups.
func (h *Handler) HandleGetGroups(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.store.GetListing(c.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "listing not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "lookup failed"})
	}
	groups, err := h.store.GroupsByListing(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "lookup failed"})
	}
	return c.JSON(fiber.Map{"success": true, "groups": groups})
}

type voiceOverRequest struct {
	VoiceID string `json:"voiceId"`
}

// HandleVoiceOver serves POST /v1/groups/:id/voice-over. Synthesis is quick
// enough to run synchronously; the upload key is stable per group so a
// repeat replaces the previous take.
func (h *Handler) HandleVoiceOver(c *fiber.Ctx) error {
	id := c.Params("id")

	var req voiceOverRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid body"})
		}
	}
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = h.defaultVoice
	}

	g, err := h.store.GetGroup(c.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "group not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "lookup failed"})
	}
	if g.Script == nil || *g.Script == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "group has no script yet"})
	}

	audio, err := h.tts.Convert(c.Context(), *g.Script, voiceID)
	if err != nil {
		h.log.LogErrorf("voice-over synthesis for group %s failed: %v", id, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "speech synthesis failed"})
	}

	audioURL, err := h.uploads.Upload(storage.VoiceOverPath(g.ListingID, g.ID), audio, "audio/mpeg")
	if err != nil {
		h.log.LogErrorf("voice-over upload for group %s failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "audio upload failed"})
	}
	if err := h.store.UpdateGroup(c.Context(), id, GroupUpdate{AudioURL: &audioURL}); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "update failed"})
	}

	return c.JSON(fiber.Map{"success": true, "audioUrl": audioURL})
}
