// Package tts adapts the text-to-speech provider that turns a scene script
// into voice-over audio.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"listingreel/internal/config"
	"listingreel/internal/logger"
)

type convertRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	OutputFormat  string        `json:"output_format"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability float64 `json:"stability"`
	Speed     float64 `json:"speed"`
}

type Client struct {
	base    string
	apiKey  string
	modelID string
	http    *http.Client
	log     *logger.Logger
}

func New(cfg config.Config) *Client {
	return &Client{
		base:    cfg.TTSAPIURL,
		apiKey:  cfg.TTSAPIKey,
		modelID: "eleven_multilingual_v2",
		http:    &http.Client{Timeout: 2 * time.Minute},
		log:     logger.New("TTSClient"),
	}
}

// Convert synthesizes MP3 audio for a script. The response is the raw audio
// stream, not JSON, so this bypasses the shared JSON client.
func (c *Client) Convert(ctx context.Context, script, voiceID string) ([]byte, error) {
	body, err := json.Marshal(convertRequest{
		Text:         script,
		ModelID:      c.modelID,
		OutputFormat: "mp3_44100_128",
		VoiceSettings: voiceSettings{
			Stability: 0,
			Speed:     1.2,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.base, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("text-to-speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("text-to-speech: status %d: %s", resp.StatusCode, detail)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio stream: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("text-to-speech returned empty audio")
	}
	c.log.LogDebugf("synthesized %d bytes of audio", len(audio))
	return audio, nil
}
