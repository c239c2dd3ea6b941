package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"listingreel/internal/config"
	"listingreel/internal/core/event"
	"listingreel/internal/core/flows"
	"listingreel/internal/core/job"
	"listingreel/internal/core/listing"
	"listingreel/internal/core/progress"
	"listingreel/internal/core/workflow"
	"listingreel/internal/logger"
	"listingreel/internal/platform/postgres"
	rds "listingreel/internal/platform/redis"
	"listingreel/internal/platform/storage"
	tasks "listingreel/internal/platform/tasks"
	"listingreel/internal/provider"
	"listingreel/internal/provider/reel"
	"listingreel/internal/provider/render"
	"listingreel/internal/provider/scrape"
	"listingreel/internal/provider/tts"
	"listingreel/internal/provider/vision"
	"listingreel/internal/server"
	"listingreel/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.Printf("[listingreel] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	// Initialize logger
	logr := logger.New("main")

	ctx := context.Background()

	// Postgres pool (ledger, checkpoints, entities)
	pool, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	// Asynq client and server
	taskClient := tasks.New(redisSvc)
	defer taskClient.Close()
	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{"workflows": 1},
	})

	// Persistence
	ledger := job.NewPGLedger(pool)
	checkpoints := job.NewPGCheckpointStore(pool)
	store := listing.NewRepository(pool)

	// Object storage
	uploads, err := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
	if err != nil {
		log.Fatal(err)
	}

	// Provider adapters
	scrapeClient := scrape.New(cfg, redisSvc)
	visionClient, err := vision.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize vision client: %v", err)
	}
	reelClient := reel.New(cfg)
	renderClient := render.New(cfg)
	ttsClient := tts.New(cfg)

	// Workflow definitions and runner
	registry := workflow.NewRegistry()
	err = flows.Register(registry, flows.Deps{
		Store:   store,
		Scraper: scrapeClient,
		Vision:  visionClient,
		Reel:    reelClient,
		Render:  renderClient,
		Uploads: uploads,
		Fetch:   provider.NewClient("PhotoFetch", "", "", cfg.Timings.RequestTimeout),
		Timings: cfg.Timings,
	})
	if err != nil {
		log.Fatalf("failed to register workflows: %v", err)
	}
	runner := workflow.NewRunner(registry, ledger, checkpoints)

	// Core services
	eventSvc := event.NewService(registry, taskClient, store)
	progressSvc := progress.NewService(ledger, store, registry)

	// Worker mux: every workflow runs through the same handler
	mux := worker.NewMux()
	for _, def := range registry.Definitions() {
		mux.HandleFunc(workflow.TaskType(def.Name), runner.HandleTask)
	}

	// Start worker
	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			log.Printf("[worker] stopped: %v\n", err)
		}
	}()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Listingreel Engine",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})

	// Register routes with health handler
	deps := server.Dependencies{
		Events:       eventSvc,
		Progress:     progressSvc,
		Store:        store,
		TTS:          ttsClient,
		Uploads:      uploads,
		DefaultVoice: cfg.DefaultVoiceID,
		Redis:        redisSvc,
		DBCheck:      postgres.HealthCheck(pool),
	}
	healthHandler := server.RegisterRoutes(app, deps)

	// Mark application as ready after all services are initialized
	go func() {
		time.Sleep(5 * time.Second) // Allow services to fully initialize
		healthHandler.SetReady()
	}()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
