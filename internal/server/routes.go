package server

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"listingreel/internal/core/event"
	"listingreel/internal/core/listing"
	"listingreel/internal/core/progress"
	"listingreel/internal/health"
	"listingreel/internal/platform/redis"
	"listingreel/internal/platform/storage"
)

type Dependencies struct {
	Events       *event.Service
	Progress     *progress.Service
	Store        listing.Store
	TTS          listing.SpeechSynthesizer
	Uploads      storage.Uploader
	DefaultVoice string
	Redis        *redis.Service
	DBCheck      func(context.Context) error
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	// Health endpoints
	healthHandler := health.NewHealthHandler(d.Redis, d.DBCheck)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	eventHandler := event.NewHandler(d.Events)
	api.Post("/events", eventHandler.HandlePublish)
	api.Post("/listings/parse", eventHandler.HandleParseListing)
	api.Post("/listings/:id/scripts", eventHandler.HandleGenerateScripts)
	api.Post("/groups/:id/auto-reel", eventHandler.HandleGenerateAutoReel)
	api.Post("/groups/:id/final-video", eventHandler.HandleGenerateFinalVideo)

	progressHandler := progress.NewHandler(d.Progress)
	api.Get("/jobs/:id/:entityKind", progressHandler.HandleGet)

	listingHandler := listing.NewHandler(d.Store, d.TTS, d.Uploads, d.DefaultVoice)
	api.Get("/listings/:id/groups", listingHandler.HandleGetGroups)
	api.Post("/groups/:id/voice-over", listingHandler.HandleVoiceOver)

	return healthHandler
}
