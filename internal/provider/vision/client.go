// Package vision adapts the multimodal LLM used for photo analysis, scene
// grouping, property summaries, and script generation.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"listingreel/internal/config"
	"listingreel/internal/logger"
	"listingreel/internal/provider"
)

// DescribedImage is one analyzed listing photo.
type DescribedImage struct {
	URL                string `json:"url"`
	Filename           string `json:"filename"`
	Description        string `json:"description"`
	IsEstablishingShot bool   `json:"isEstablishingShot"`
}

// Group is a named scene cluster referencing images by filename.
type Group struct {
	GroupName string   `json:"groupName"`
	Images    []string `json:"images"`
}

// SceneInput is the per-group context handed to script generation.
type SceneInput struct {
	GroupID      string   `json:"groupId"`
	GroupName    string   `json:"groupName"`
	Descriptions []string `json:"descriptions"`
}

// GroupScript is one generated voice-over script for a scene.
type GroupScript struct {
	GroupID string `json:"groupId"`
	Script  string `json:"script"`
}

type Client struct {
	genai       *genai.Client
	fetch       *provider.Client
	visionModel string
	scriptModel string
	workers     int
	llmTimeout  time.Duration
	log         *logger.Logger
}

func New(ctx context.Context, cfg config.Config) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{
		genai:       client,
		fetch:       provider.NewClient("VisionFetch", "", "", cfg.Timings.RequestTimeout),
		visionModel: cfg.VisionModel,
		scriptModel: cfg.ScriptModel,
		workers:     cfg.AnalyzeWorkers,
		llmTimeout:  cfg.Timings.LLMTimeout,
		log:         logger.New("VisionClient"),
	}, nil
}

// generate wraps every model call in the configured per-call deadline so a
// hung provider cannot hold a step open past its budget.
func (c *Client) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if c.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.llmTimeout)
		defer cancel()
	}
	return c.genai.Models.GenerateContent(ctx, model, contents, cfg)
}

// AnalyzeImages fetches and describes every photo with bounded concurrency.
// Results keep the input order so grouping output stays deterministic.
func (c *Client) AnalyzeImages(ctx context.Context, urls []string) ([]DescribedImage, error) {
	results := make([]DescribedImage, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			data, mime, err := c.fetch.GetBytes(gctx, u)
			if err != nil {
				return fmt.Errorf("fetch image %s: %w", u, err)
			}
			if mime == "" || !strings.HasPrefix(mime, "image/") {
				mime = "image/jpeg"
			}
			desc, establishing, err := c.describeImage(gctx, data, mime)
			if err != nil {
				return fmt.Errorf("analyze image %s: %w", u, err)
			}
			results[i] = DescribedImage{
				URL:                u,
				Filename:           filenameOf(u),
				Description:        desc,
				IsEstablishingShot: establishing,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) describeImage(ctx context.Context, data []byte, mime string) (string, bool, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(describePrompt),
			genai.NewPartFromBytes(data, mime),
		}, genai.RoleUser),
	}
	resp, err := c.generate(ctx, c.visionModel, contents, nil)
	if err != nil {
		return "", false, err
	}
	return splitEstablishingShot(resp.Text())
}

// GroupImages asks the model to cluster described photos into scenes and
// returns the clusters rehydrated with their full image records.
func (c *Client) GroupImages(ctx context.Context, images []DescribedImage) ([]Group, error) {
	input, err := json.Marshal(images)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(groupSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	resp, err := c.generate(ctx, c.visionModel, genai.Text(string(input)), cfg)
	if err != nil {
		return nil, fmt.Errorf("group images: %w", err)
	}

	var groups []Group
	if err := decodeJSON(resp.Text(), &groups); err != nil {
		return nil, fmt.Errorf("group images: %w", err)
	}
	return mergeGroups(groups), nil
}

// PropertyContext produces the short selling-points summary that seeds
// script generation.
func (c *Client) PropertyContext(ctx context.Context, propertyInfo string, scenes []SceneInput) (string, error) {
	var sb strings.Builder
	for i, scene := range scenes {
		fmt.Fprintf(&sb, "\n%d. %s:\n", i+1, scene.GroupName)
		for _, d := range scene.Descriptions {
			fmt.Fprintf(&sb, "   - %s\n", d)
		}
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(contextSystemPrompt(propertyInfo), genai.RoleUser),
	}
	resp, err := c.generate(ctx, c.scriptModel, genai.Text(sb.String()), cfg)
	if err != nil {
		return "", fmt.Errorf("generate property context: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("generate property context: model returned empty text")
	}
	return text, nil
}

// GenerateScripts writes one short voice-over script per scene.
func (c *Client) GenerateScripts(ctx context.Context, propertyContext string, scenes []SceneInput) ([]GroupScript, error) {
	input, err := json.Marshal(scenes)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(scriptSystemPrompt(propertyContext), genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	resp, err := c.generate(ctx, c.scriptModel, genai.Text(string(input)), cfg)
	if err != nil {
		return nil, fmt.Errorf("generate scripts: %w", err)
	}

	var scripts []GroupScript
	if err := decodeJSON(resp.Text(), &scripts); err != nil {
		return nil, fmt.Errorf("generate scripts: %w", err)
	}
	for _, s := range scripts {
		if s.GroupID == "" || s.Script == "" {
			return nil, fmt.Errorf("generate scripts: model returned incomplete entry %+v", s)
		}
	}
	return scripts, nil
}

func filenameOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}
