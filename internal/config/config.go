package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string
	HTTPAddr string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	ScrapeAPIURL  string
	ScrapeAPIKey  string
	ScrapeDataset string

	ReelAPIURL   string
	ReelAPIKey   string
	RenderAPIURL string
	RenderAPIKey string

	TTSAPIURL      string
	TTSAPIKey      string
	DefaultVoiceID string

	GeminiAPIKey string
	VisionModel  string
	ScriptModel  string

	AnalyzeWorkers    int
	WorkerConcurrency int

	Timings Timings
}

// Timings holds per-provider poll intervals and step timeouts. Defaults are
// tuned to each provider's cost profile; a YAML file named by TIMINGS_FILE
// overrides individual values per deployment.
type Timings struct {
	ScrapePollInterval time.Duration
	ScrapeTimeout      time.Duration
	ReelPollInterval   time.Duration
	ReelTimeout        time.Duration
	RenderPollInterval time.Duration
	RenderTimeout      time.Duration
	RequestTimeout     time.Duration
	LLMTimeout         time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		ScrapePollInterval: 5 * time.Second,
		ScrapeTimeout:      10 * time.Minute,
		ReelPollInterval:   time.Second,
		ReelTimeout:        20 * time.Minute,
		RenderPollInterval: 10 * time.Second,
		RenderTimeout:      40 * time.Minute,
		RequestTimeout:     30 * time.Second,
		LLMTimeout:         2 * time.Minute,
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Load() (Config, error) {
	cfg := Config{
		AppEnv:   getenv("APP_ENV", "development"),
		HTTPAddr: getenv("HTTP_ADDR", ":8082"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     getenv("SUPABASE_STORAGE_BUCKET", "listing-media"),

		ScrapeAPIURL:  getenv("SCRAPE_API_URL", "https://api.brightdata.com/datasets/v3"),
		ScrapeAPIKey:  os.Getenv("SCRAPE_API_KEY"),
		ScrapeDataset: getenv("SCRAPE_DATASET_ID", "gd_lfqkr8wm13ixtbd8f5"),

		ReelAPIURL:   os.Getenv("REEL_API_URL"),
		ReelAPIKey:   os.Getenv("REEL_API_KEY"),
		RenderAPIURL: os.Getenv("RENDER_API_URL"),
		RenderAPIKey: os.Getenv("RENDER_API_KEY"),

		TTSAPIURL:      getenv("TTS_API_URL", "https://api.elevenlabs.io"),
		TTSAPIKey:      os.Getenv("TTS_API_KEY"),
		DefaultVoiceID: getenv("TTS_DEFAULT_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		VisionModel:  getenv("VISION_MODEL", "gemini-1.5-flash"),
		ScriptModel:  getenv("SCRIPT_MODEL", "gemini-1.5-pro"),

		AnalyzeWorkers:    getenvInt("ANALYZE_WORKERS", 6),
		WorkerConcurrency: getenvInt("WORKER_CONCURRENCY", 10),

		Timings: DefaultTimings(),
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisAddr == "" {
		return cfg, fmt.Errorf("REDIS_ADDR is required")
	}

	if path := os.Getenv("TIMINGS_FILE"); path != "" {
		if err := loadTimings(path, &cfg.Timings); err != nil {
			return cfg, fmt.Errorf("load timings file: %w", err)
		}
	}
	return cfg, nil
}

func loadTimings(path string, t *Timings) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Durations are written as Go duration strings ("10s", "30m"). Decode into
	// a string-typed mirror and parse, so omitted keys keep their defaults.
	var raw map[string]string
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	fields := map[string]*time.Duration{
		"scrape_poll_interval": &t.ScrapePollInterval,
		"scrape_timeout":       &t.ScrapeTimeout,
		"reel_poll_interval":   &t.ReelPollInterval,
		"reel_timeout":         &t.ReelTimeout,
		"render_poll_interval": &t.RenderPollInterval,
		"render_timeout":       &t.RenderTimeout,
		"request_timeout":      &t.RequestTimeout,
		"llm_timeout":          &t.LLMTimeout,
	}
	for key, val := range raw {
		dst, ok := fields[key]
		if !ok {
			return fmt.Errorf("unknown timing %q", key)
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("timing %q: %w", key, err)
		}
		*dst = d
	}
	return nil
}
