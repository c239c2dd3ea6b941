// Package render adapts the distributed render farm that composites the
// auto-reel with its voice-over into the final vertical video.
package render

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"listingreel/internal/config"
	"listingreel/internal/provider"
)

// RenderInput carries everything the farm needs for one composition.
type RenderInput struct {
	CompositionID   string  `json:"compositionId"`
	VideoURL        string  `json:"videoUrl"`
	AudioURL        string  `json:"audioUrl"`
	PlaybackRate    float64 `json:"playbackRate"`
	AudioPadding    float64 `json:"audioPadding"`
	OutName         string  `json:"outName"`
	FramesPerWorker int     `json:"framesPerLambda"`
}

type startResponse struct {
	RenderID string `json:"renderId"`
}

// Progress mirrors the farm's progress payload. FatalErrorEncountered is
// terminal; Done with an OutputFile is success.
type Progress struct {
	Done                  bool     `json:"done"`
	FatalErrorEncountered bool     `json:"fatalErrorEncountered"`
	Errors                []string `json:"errors"`
	OutputFile            string   `json:"outputFile"`
	OverallProgress       float64  `json:"overallProgress"`
}

type durationResponse struct {
	DurationSeconds float64 `json:"durationSeconds"`
}

type Client struct {
	http *provider.Client
}

func New(cfg config.Config) *Client {
	return &Client{
		http: provider.NewClient("RenderClient", cfg.RenderAPIURL, cfg.RenderAPIKey, cfg.Timings.RequestTimeout),
	}
}

func (c *Client) StartRender(ctx context.Context, input RenderInput) (string, error) {
	var resp startResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/renders", input, &resp); err != nil {
		return "", fmt.Errorf("start render: %w", err)
	}
	if resp.RenderID == "" {
		return "", fmt.Errorf("start render: provider returned no render id")
	}
	return resp.RenderID, nil
}

// GetProgress polls a render in the uniform adapter shape. The provider's
// error text is preserved verbatim for the job record.
func (c *Client) GetProgress(ctx context.Context, renderID string) (provider.Status, Progress, error) {
	var p Progress
	if err := c.http.DoJSON(ctx, http.MethodGet, "/renders/"+renderID, nil, &p); err != nil {
		return provider.StatusFailed, Progress{}, err
	}
	if p.FatalErrorEncountered {
		msg := "unknown render error"
		if len(p.Errors) > 0 {
			msg = strings.Join(p.Errors, ", ")
		}
		return provider.StatusFailed, Progress{}, fmt.Errorf("render failed: %s", msg)
	}
	if p.Done {
		if p.OutputFile == "" {
			return provider.StatusFailed, Progress{}, fmt.Errorf("render completed but no output file was generated")
		}
		return provider.StatusDone, p, nil
	}
	return provider.StatusRunning, p, nil
}

// MediaDuration probes the duration of a remote audio or video asset.
func (c *Client) MediaDuration(ctx context.Context, url string) (float64, error) {
	var resp durationResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/media/duration", map[string]string{"url": url}, &resp); err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	if resp.DurationSeconds <= 0 {
		return 0, fmt.Errorf("probe duration: provider returned %v", resp.DurationSeconds)
	}
	return resp.DurationSeconds, nil
}

// FetchVideo downloads the farm's output for re-upload to our storage.
func (c *Client) FetchVideo(ctx context.Context, url string) ([]byte, error) {
	data, _, err := c.http.GetBytes(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch rendered video: %w", err)
	}
	return data, nil
}
