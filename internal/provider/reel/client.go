// Package reel adapts the auto-reel farm: submit a set of still images and
// poll until the generated vertical video is ready.
package reel

import (
	"context"
	"fmt"
	"net/http"

	"listingreel/internal/config"
	"listingreel/internal/provider"
)

type imageInput struct {
	ImageURL     string `json:"image_url"`
	CameraMotion string `json:"camera_motion"`
}

type createRequest struct {
	ImageInputs []imageInput `json:"image_inputs"`
	Orientation string       `json:"orientation"`
	Resolution  string       `json:"resolution"`
	AIEngine    string       `json:"ai_engine"`
}

type videoResponse struct {
	UUID     string `json:"uuid"`
	Status   string `json:"status"` // queued | in_progress | complete | error
	VideoURL string `json:"video_url"`
	Error    string `json:"error,omitempty"`
}

// Video is the uniform result of a finished reel generation.
type Video struct {
	UUID     string
	VideoURL string
}

type Client struct {
	http *provider.Client
}

func New(cfg config.Config) *Client {
	return &Client{
		http: provider.NewClient("ReelClient", cfg.ReelAPIURL, cfg.ReelAPIKey, cfg.Timings.RequestTimeout),
	}
}

// CreateVideo submits the image set and returns the provider's job handle.
func (c *Client) CreateVideo(ctx context.Context, imageURLs []string) (string, error) {
	req := createRequest{
		Orientation: "portrait",
		Resolution:  "1080p",
		AIEngine:    "v25",
	}
	for _, u := range imageURLs {
		req.ImageInputs = append(req.ImageInputs, imageInput{ImageURL: u, CameraMotion: "auto"})
	}

	var resp videoResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/create_video", req, &resp); err != nil {
		return "", fmt.Errorf("create video: %w", err)
	}
	if resp.UUID == "" {
		return "", fmt.Errorf("create video: provider returned no handle")
	}
	return resp.UUID, nil
}

// GetVideo polls the provider's handle in the uniform adapter shape.
func (c *Client) GetVideo(ctx context.Context, uuid string) (provider.Status, Video, error) {
	var resp videoResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, "/get_video/"+uuid, nil, &resp); err != nil {
		return provider.StatusFailed, Video{}, err
	}
	switch resp.Status {
	case "complete":
		if resp.VideoURL == "" {
			return provider.StatusFailed, Video{}, fmt.Errorf("reel provider: completed without a video url")
		}
		return provider.StatusDone, Video{UUID: resp.UUID, VideoURL: resp.VideoURL}, nil
	case "error":
		msg := resp.Error
		if msg == "" {
			msg = "video generation failed"
		}
		return provider.StatusFailed, Video{}, fmt.Errorf("reel provider: %s", msg)
	case "queued":
		return provider.StatusQueued, Video{}, nil
	default:
		return provider.StatusRunning, Video{}, nil
	}
}

// FetchVideo downloads the rendered asset for re-upload to our storage.
func (c *Client) FetchVideo(ctx context.Context, url string) ([]byte, error) {
	data, _, err := c.http.GetBytes(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch video: %w", err)
	}
	return data, nil
}
