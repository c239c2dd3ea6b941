package flows

import (
	"context"
	"encoding/json"
	"fmt"

	"listingreel/internal/core/listing"
	"listingreel/internal/core/workflow"
	"listingreel/internal/platform/storage"
	"listingreel/internal/provider"
	"listingreel/internal/provider/render"
)

type generateFinalInput struct {
	GroupID string `json:"groupId"`
}

type finalSetup struct {
	ListingID string `json:"listingId"`
	VideoURL  string `json:"videoUrl"`
	AudioURL  string `json:"audioUrl"`
}

// GenerateFinalVideo composites a group's auto-reel with its voice-over on
// the render farm and stores the finished vertical video.
func GenerateFinalVideo(d Deps) *workflow.Definition {
	return &workflow.Definition{
		Name:    WorkflowGenerateFinal,
		Event:   EventGenerateFinal,
		Timeout: d.Timings.RenderTimeout + taskSlack,
		Steps: []workflow.StepSpec{
			workflow.Step("setup"),
			workflow.Step("calculate-timing"),
			workflow.Step("start-render"),
			workflow.Step("poll-render-progress"),
			workflow.Step("upload-final-video"),
			workflow.Step("finish"),
		},
		EntityID: func(input json.RawMessage) (string, error) {
			var in generateFinalInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", err
			}
			if in.GroupID == "" {
				return "", fmt.Errorf("input requires groupId")
			}
			return in.GroupID, nil
		},
		Handler: func(ex *workflow.Execution, input json.RawMessage) error {
			var in generateFinalInput
			if err := json.Unmarshal(input, &in); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}

			setup, err := workflow.StepResult(ex, "setup", func(ctx context.Context) (finalSetup, error) {
				g, err := d.Store.GetGroup(ctx, in.GroupID)
				if err != nil {
					return finalSetup{}, err
				}
				if g.AutoReelURL == nil || *g.AutoReelURL == "" {
					return finalSetup{}, fmt.Errorf("group %s has no auto-reel yet", in.GroupID)
				}
				if g.AudioURL == nil || *g.AudioURL == "" {
					return finalSetup{}, fmt.Errorf("group %s has no voice-over yet", in.GroupID)
				}
				return finalSetup{
					ListingID: g.ListingID,
					VideoURL:  *g.AutoReelURL,
					AudioURL:  *g.AudioURL,
				}, nil
			})
			if err != nil {
				return err
			}

			timing, err := workflow.StepResult(ex, "calculate-timing", func(ctx context.Context) (render.Timing, error) {
				audioDuration, err := d.Render.MediaDuration(ctx, setup.AudioURL)
				if err != nil {
					return render.Timing{}, fmt.Errorf("audio duration: %w", err)
				}
				videoDuration, err := d.Render.MediaDuration(ctx, setup.VideoURL)
				if err != nil {
					return render.Timing{}, fmt.Errorf("video duration: %w", err)
				}
				return render.ComputeTiming(audioDuration, videoDuration), nil
			})
			if err != nil {
				return err
			}

			renderID, err := workflow.StepResult(ex, "start-render", func(ctx context.Context) (string, error) {
				return d.Render.StartRender(ctx, render.RenderInput{
					CompositionID:   timing.CompositionID,
					VideoURL:        setup.VideoURL,
					AudioURL:        setup.AudioURL,
					PlaybackRate:    timing.PlaybackRate,
					AudioPadding:    timing.AudioPadding,
					OutName:         fmt.Sprintf("%s.mp4", in.GroupID),
					FramesPerWorker: timing.FramesPerWorker,
				})
			})
			if err != nil {
				return err
			}

			progress, err := workflow.StepResult(ex, "poll-render-progress", func(ctx context.Context) (render.Progress, error) {
				return provider.Await(ctx, d.Timings.RenderPollInterval, d.Timings.RenderTimeout,
					func(ctx context.Context) (provider.Status, render.Progress, error) {
						return d.Render.GetProgress(ctx, renderID)
					})
			})
			if err != nil {
				return err
			}

			hostedURL, err := workflow.StepResult(ex, "upload-final-video", func(ctx context.Context) (string, error) {
				data, err := d.Render.FetchVideo(ctx, progress.OutputFile)
				if err != nil {
					return "", err
				}
				return d.Uploads.Upload(storage.FinalVideoPath(setup.ListingID, in.GroupID), data, "video/mp4")
			})
			if err != nil {
				return err
			}

			return ex.Run("finish", func(ctx context.Context) error {
				if err := d.Store.UpdateGroup(ctx, in.GroupID, listing.GroupUpdate{ReelURL: &hostedURL}); err != nil {
					return err
				}
				status := listing.StatusPublished
				published := true
				return d.Store.UpdateListing(ctx, setup.ListingID, listing.ListingUpdate{
					Status:      &status,
					IsPublished: &published,
				})
			})
		},
	}
}
