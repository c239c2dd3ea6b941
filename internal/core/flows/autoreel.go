package flows

import (
	"context"
	"encoding/json"
	"fmt"

	"listingreel/internal/core/listing"
	"listingreel/internal/core/workflow"
	"listingreel/internal/platform/storage"
	"listingreel/internal/provider"
	"listingreel/internal/provider/reel"
)

type generateAutoReelInput struct {
	GroupID string `json:"groupId"`
}

type reelSetup struct {
	ListingID string   `json:"listingId"`
	ImageURLs []string `json:"imageUrls"`
}

type reelFetch struct {
	SourceURL string `json:"sourceUrl"`
	Bytes     int    `json:"bytes"`
}

// GenerateAutoReel turns one scene group's photos into a short vertical
// video and re-hosts it in our storage.
func GenerateAutoReel(d Deps) *workflow.Definition {
	return &workflow.Definition{
		Name:    WorkflowGenerateAutoReel,
		Event:   EventGenerateAutoReel,
		Timeout: d.Timings.ReelTimeout + taskSlack,
		Steps: []workflow.StepSpec{
			workflow.Step("setup"),
			workflow.Step("start-video-generation"),
			workflow.Step("poll-video-status"),
			workflow.Step("fetch-video"),
			workflow.Step("upload-video"),
			workflow.Step("finish"),
		},
		EntityID: func(input json.RawMessage) (string, error) {
			var in generateAutoReelInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", err
			}
			if in.GroupID == "" {
				return "", fmt.Errorf("input requires groupId")
			}
			return in.GroupID, nil
		},
		Handler: func(ex *workflow.Execution, input json.RawMessage) error {
			var in generateAutoReelInput
			if err := json.Unmarshal(input, &in); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}

			setup, err := workflow.StepResult(ex, "setup", func(ctx context.Context) (reelSetup, error) {
				return loadReelImages(ctx, d, in.GroupID)
			})
			if err != nil {
				return err
			}

			handle, err := workflow.StepResult(ex, "start-video-generation", func(ctx context.Context) (string, error) {
				// The group may have been deleted while the job sat queued.
				if _, err := loadReelImages(ctx, d, in.GroupID); err != nil {
					return "", err
				}
				return d.Reel.CreateVideo(ctx, setup.ImageURLs)
			})
			if err != nil {
				return err
			}

			video, err := workflow.StepResult(ex, "poll-video-status", func(ctx context.Context) (reel.Video, error) {
				return provider.Await(ctx, d.Timings.ReelPollInterval, d.Timings.ReelTimeout,
					func(ctx context.Context) (provider.Status, reel.Video, error) {
						return d.Reel.GetVideo(ctx, handle)
					})
			})
			if err != nil {
				return err
			}

			var data []byte
			fetched, err := workflow.StepResult(ex, "fetch-video", func(ctx context.Context) (reelFetch, error) {
				b, err := d.Reel.FetchVideo(ctx, video.VideoURL)
				if err != nil {
					return reelFetch{}, err
				}
				data = b
				return reelFetch{SourceURL: video.VideoURL, Bytes: len(b)}, nil
			})
			if err != nil {
				return err
			}

			hostedURL, err := workflow.StepResult(ex, "upload-video", func(ctx context.Context) (string, error) {
				// After a crash the downloaded bytes are gone even though the
				// fetch step replays; pull them again from the provider.
				if data == nil {
					b, err := d.Reel.FetchVideo(ctx, fetched.SourceURL)
					if err != nil {
						return "", err
					}
					data = b
				}
				return d.Uploads.Upload(storage.AutoReelPath(setup.ListingID, in.GroupID), data, "video/mp4")
			})
			if err != nil {
				return err
			}

			return ex.Run("finish", func(ctx context.Context) error {
				if err := d.Store.UpdateGroup(ctx, in.GroupID, listing.GroupUpdate{AutoReelURL: &hostedURL}); err != nil {
					return err
				}
				hasReels := true
				return d.Store.UpdateListing(ctx, setup.ListingID, listing.ListingUpdate{HasVideoReels: &hasReels})
			})
		},
	}
}

func loadReelImages(ctx context.Context, d Deps, groupID string) (reelSetup, error) {
	g, err := d.Store.GetGroup(ctx, groupID)
	if err != nil {
		return reelSetup{}, err
	}
	var urls []string
	for _, m := range g.Media {
		if m.MediaType == listing.MediaTypeImage && m.MediaURL != "" {
			urls = append(urls, m.MediaURL)
		}
	}
	if len(urls) == 0 {
		return reelSetup{}, fmt.Errorf("group %s has no images to animate", groupID)
	}
	return reelSetup{ListingID: g.ListingID, ImageURLs: urls}, nil
}
