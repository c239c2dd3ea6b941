package flows

import (
	"context"
	"encoding/json"
	"fmt"

	"listingreel/internal/core/listing"
	"listingreel/internal/core/workflow"
	"listingreel/internal/provider/vision"
)

type generateScriptsInput struct {
	ListingID string `json:"listingId"`
}

type scriptSetup struct {
	PropertyContext string              `json:"propertyContext"`
	Scenes          []vision.SceneInput `json:"scenes"`
}

// GenerateScripts writes one voice-over script per scene group of a parsed
// listing.
func GenerateScripts(d Deps) *workflow.Definition {
	return &workflow.Definition{
		Name:    WorkflowGenerateScripts,
		Event:   EventGenerateScripts,
		Timeout: 2*d.Timings.LLMTimeout + taskSlack,
		Steps: []workflow.StepSpec{
			workflow.Step("setup"),
			workflow.Step("generate-scripts"),
			workflow.Step("update-groups-with-scripts"),
			workflow.Step("finish"),
		},
		EntityID: func(input json.RawMessage) (string, error) {
			var in generateScriptsInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", err
			}
			if in.ListingID == "" {
				return "", fmt.Errorf("input requires listingId")
			}
			return in.ListingID, nil
		},
		Handler: func(ex *workflow.Execution, input json.RawMessage) error {
			var in generateScriptsInput
			if err := json.Unmarshal(input, &in); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}

			setup, err := workflow.StepResult(ex, "setup", func(ctx context.Context) (scriptSetup, error) {
				l, err := d.Store.GetListing(ctx, in.ListingID)
				if err != nil {
					return scriptSetup{}, err
				}
				groups, err := d.Store.GroupsByListing(ctx, in.ListingID)
				if err != nil {
					return scriptSetup{}, err
				}
				if len(groups) == 0 {
					return scriptSetup{}, fmt.Errorf("listing %s has no scene groups", in.ListingID)
				}

				out := scriptSetup{}
				if l.PropertyContext != nil {
					out.PropertyContext = *l.PropertyContext
				}
				for _, g := range groups {
					var descriptions []string
					for _, m := range g.Media {
						if m.Description != nil {
							descriptions = append(descriptions, *m.Description)
						}
					}
					out.Scenes = append(out.Scenes, vision.SceneInput{
						GroupID:      g.ID,
						GroupName:    g.GroupName,
						Descriptions: descriptions,
					})
				}
				return out, nil
			})
			if err != nil {
				return err
			}

			scripts, err := workflow.StepResult(ex, "generate-scripts", func(ctx context.Context) ([]vision.GroupScript, error) {
				return d.Vision.GenerateScripts(ctx, setup.PropertyContext, setup.Scenes)
			})
			if err != nil {
				return err
			}

			if err := ex.Run("update-groups-with-scripts", func(ctx context.Context) error {
				for _, s := range scripts {
					script := s.Script
					if err := d.Store.UpdateGroup(ctx, s.GroupID, listing.GroupUpdate{Script: &script}); err != nil {
						return fmt.Errorf("update group %s: %w", s.GroupID, err)
					}
				}
				return nil
			}); err != nil {
				return err
			}

			return ex.Run("finish", func(ctx context.Context) error {
				hasScripts := true
				return d.Store.UpdateListing(ctx, in.ListingID, listing.ListingUpdate{HasScripts: &hasScripts})
			})
		},
	}
}
