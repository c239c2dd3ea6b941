// Package scrape adapts the Bright Data style dataset API: trigger a
// collection for a URL, poll the snapshot's progress, then fetch the
// structured property details.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"listingreel/internal/config"
	"listingreel/internal/logger"
	"listingreel/internal/platform/redis"
	"listingreel/internal/provider"
)

// PropertyDetails is the structured snapshot for one property listing.
type PropertyDetails struct {
	Address struct {
		StreetAddress string `json:"streetAddress"`
		City          string `json:"city"`
		State         string `json:"state"`
		Zipcode       string `json:"zipcode"`
	} `json:"address"`
	Description string  `json:"description"`
	HomeType    string  `json:"homeType"`
	Bedrooms    float64 `json:"bedrooms"`
	Bathrooms   float64 `json:"bathrooms"`
	LivingArea  float64 `json:"livingArea"`
	LotSize     string  `json:"lotSize"`
	YearBuilt   int     `json:"yearBuilt"`
	Price       float64 `json:"price"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Photos      []Photo `json:"photos"`
	Attributes  []Attr  `json:"attributes"`
}

type Photo struct {
	URL string `json:"url"`
}

type Attr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

type progressResponse struct {
	Status string `json:"status"` // running | ready | failed
	Error  string `json:"error,omitempty"`
}

type Client struct {
	http    *provider.Client
	cache   *redis.Service
	dataset string
	log     *logger.Logger
}

func New(cfg config.Config, cache *redis.Service) *Client {
	return &Client{
		http:    provider.NewClient("ScrapeClient", cfg.ScrapeAPIURL, cfg.ScrapeAPIKey, cfg.Timings.RequestTimeout),
		cache:   cache,
		dataset: cfg.ScrapeDataset,
		log:     logger.New("ScrapeClient"),
	}
}

// Trigger submits the listing URL and returns the snapshot handle to poll.
func (c *Client) Trigger(ctx context.Context, url string) (string, error) {
	var resp triggerResponse
	path := fmt.Sprintf("/trigger?dataset_id=%s&include_errors=true", c.dataset)
	body := []map[string]string{{"url": url}}
	if err := c.http.DoJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", fmt.Errorf("trigger scrape: %w", err)
	}
	if resp.SnapshotID == "" {
		return "", fmt.Errorf("trigger scrape: provider returned no snapshot id")
	}
	return resp.SnapshotID, nil
}

// Progress reports the snapshot's state in the uniform adapter shape.
func (c *Client) Progress(ctx context.Context, snapshotID string) (provider.Status, error) {
	var resp progressResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, "/progress/"+snapshotID, nil, &resp); err != nil {
		return provider.StatusFailed, err
	}
	switch resp.Status {
	case "ready":
		return provider.StatusDone, nil
	case "failed":
		msg := resp.Error
		if msg == "" {
			msg = "scrape snapshot failed"
		}
		return provider.StatusFailed, fmt.Errorf("scrape provider: %s", msg)
	default:
		return provider.StatusRunning, nil
	}
}

// Snapshot fetches the structured data for a ready snapshot. Snapshots are
// immutable once ready, so results are cached to keep step re-runs cheap.
func (c *Client) Snapshot(ctx context.Context, snapshotID string) (*PropertyDetails, error) {
	key := "snapshot:" + snapshotID
	var cached PropertyDetails
	if err := c.cache.CacheGet(ctx, key, &cached); err == nil {
		c.log.LogDebugf("snapshot %s served from cache", snapshotID)
		return &cached, nil
	}

	var details PropertyDetails
	if err := c.http.DoJSON(ctx, http.MethodGet, "/snapshot/"+snapshotID, nil, &details); err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	if err := c.cache.CacheSet(ctx, key, details, 24*time.Hour); err != nil {
		c.log.LogWarnf("snapshot cache write failed: %v", err)
	}
	return &details, nil
}
