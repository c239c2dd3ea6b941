package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"listingreel/internal/core/listing"
	"listingreel/internal/core/workflow"
	"listingreel/internal/platform/storage"
	"listingreel/internal/provider"
	"listingreel/internal/provider/scrape"
	"listingreel/internal/provider/vision"
)

type parseListingInput struct {
	URL string `json:"url"`
}

// propertyFacts is what the scrape snapshot compiles down to.
type propertyFacts struct {
	Location string                `json:"location"`
	Stats    listing.PropertyStats `json:"stats"`
}

// ParseListing ingests a listing URL: scrape the property, describe and
// group its photos, re-host the images, and leave the listing ready for
// script generation.
func ParseListing(d Deps) *workflow.Definition {
	return &workflow.Definition{
		Name:    WorkflowParseListing,
		Event:   EventListingParse,
		Timeout: d.Timings.ScrapeTimeout + 6*d.Timings.LLMTimeout + taskSlack,
		Steps: []workflow.StepSpec{
			workflow.Step("setup"),
			workflow.Step("start-scrape"),
			workflow.Step("poll-scrape-status"),
			workflow.Step("retrieve-data"),
			workflow.Fork("analyze-property-data", "analyze-photos"),
			workflow.Step("group-photos"),
			workflow.Step("store-groups"),
			workflow.Step("finish"),
		},
		Handler: func(ex *workflow.Execution, input json.RawMessage) error {
			var in parseListingInput
			if err := json.Unmarshal(input, &in); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}
			if in.URL == "" {
				return fmt.Errorf("input requires a listing url")
			}

			listingID, err := workflow.StepResult(ex, "setup", func(ctx context.Context) (string, error) {
				l, err := d.Store.CreateListing(ctx)
				if err != nil {
					return "", err
				}
				if err := ex.BindEntity(l.ID); err != nil {
					return "", err
				}
				return l.ID, nil
			})
			if err != nil {
				return err
			}

			snapshotID, err := workflow.StepResult(ex, "start-scrape", func(ctx context.Context) (string, error) {
				return d.Scraper.Trigger(ctx, in.URL)
			})
			if err != nil {
				return err
			}

			if err := ex.Run("poll-scrape-status", func(ctx context.Context) error {
				_, err := provider.Await(ctx, d.Timings.ScrapePollInterval, d.Timings.ScrapeTimeout,
					func(ctx context.Context) (provider.Status, struct{}, error) {
						status, err := d.Scraper.Progress(ctx, snapshotID)
						return status, struct{}{}, err
					})
				return err
			}); err != nil {
				return err
			}

			details, err := workflow.StepResult(ex, "retrieve-data", func(ctx context.Context) (*scrape.PropertyDetails, error) {
				return d.Scraper.Snapshot(ctx, snapshotID)
			})
			if err != nil {
				return err
			}
			if len(details.Photos) == 0 {
				return &workflow.StepError{Step: "retrieve-data", Err: fmt.Errorf("snapshot has no photos")}
			}
			photoURLs := make([]string, 0, len(details.Photos))
			for _, p := range details.Photos {
				if p.URL != "" {
					photoURLs = append(photoURLs, p.URL)
				}
			}

			var facts propertyFacts
			var described []vision.DescribedImage
			if err := ex.Fork(
				workflow.Branch{
					Name: "analyze-property-data",
					Out:  &facts,
					Run: func(ctx context.Context) (any, error) {
						facts = compileFacts(details)
						return facts, nil
					},
				},
				workflow.Branch{
					Name: "analyze-photos",
					Out:  &described,
					Run: func(ctx context.Context) (any, error) {
						imgs, err := d.Vision.AnalyzeImages(ctx, photoURLs)
						if err != nil {
							return nil, err
						}
						described = imgs
						return imgs, nil
					},
				},
			); err != nil {
				return err
			}

			groups, err := workflow.StepResult(ex, "group-photos", func(ctx context.Context) ([]vision.Group, error) {
				return d.Vision.GroupImages(ctx, described)
			})
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				return &workflow.StepError{Step: "group-photos", Err: fmt.Errorf("no scene groups produced")}
			}

			scenes, err := workflow.StepResult(ex, "store-groups", func(ctx context.Context) ([]vision.SceneInput, error) {
				return storeGroups(ctx, d, listingID, groups, described)
			})
			if err != nil {
				return err
			}

			return ex.Run("finish", func(ctx context.Context) error {
				propertyContext, err := d.Vision.PropertyContext(ctx, formatPropertyInfo(facts), scenes)
				if err != nil {
					return err
				}
				status := listing.StatusProcessing
				imageCount := len(described)
				return d.Store.UpdateListing(ctx, listingID, listing.ListingUpdate{
					Status:          &status,
					Location:        &facts.Location,
					ImageCount:      &imageCount,
					PropertyStats:   &facts.Stats,
					PropertyContext: &propertyContext,
				})
			})
		},
	}
}

// storeGroups re-hosts every grouped photo and persists the scene groups
// with their media. Returns the per-scene inputs later used for context and
// script generation.
func storeGroups(ctx context.Context, d Deps, listingID string, groups []vision.Group, described []vision.DescribedImage) ([]vision.SceneInput, error) {
	byFilename := make(map[string]vision.DescribedImage, len(described))
	for _, img := range described {
		byFilename[img.Filename] = img
	}

	var scenes []vision.SceneInput
	for _, g := range groups {
		establishing := false
		for _, name := range g.Images {
			if byFilename[name].IsEstablishingShot {
				establishing = true
			}
		}

		mg, err := d.Store.UpsertGroup(ctx, listingID, g.GroupName, establishing)
		if err != nil {
			return nil, fmt.Errorf("upsert group %s: %w", g.GroupName, err)
		}

		var items []listing.Media
		var descriptions []string
		for _, name := range g.Images {
			img, ok := byFilename[name]
			if !ok {
				continue
			}
			data, mime, err := d.Fetch.GetBytes(ctx, img.URL)
			if err != nil {
				return nil, fmt.Errorf("fetch photo %s: %w", img.URL, err)
			}
			if mime == "" {
				mime = "image/jpeg"
			}
			hosted, err := d.Uploads.Upload(storage.ImagePath(listingID, img.Filename), data, mime)
			if err != nil {
				return nil, err
			}
			desc := img.Description
			items = append(items, listing.Media{
				ListingID:          listingID,
				GroupID:            &mg.ID,
				MediaType:          listing.MediaTypeImage,
				MediaURL:           hosted,
				Description:        &desc,
				IsEstablishingShot: img.IsEstablishingShot,
			})
			descriptions = append(descriptions, img.Description)
		}
		if len(items) == 0 {
			continue
		}
		if err := d.Store.AddMedia(ctx, items); err != nil {
			return nil, fmt.Errorf("store media for %s: %w", g.GroupName, err)
		}
		scenes = append(scenes, vision.SceneInput{
			GroupID:      mg.ID,
			GroupName:    g.GroupName,
			Descriptions: descriptions,
		})
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("no groups matched any analyzed photo")
	}
	return scenes, nil
}

func compileFacts(details *scrape.PropertyDetails) propertyFacts {
	meta := make(map[string]string, len(details.Attributes))
	for _, attr := range details.Attributes {
		if attr.Name != "" && attr.Value != "" {
			meta[attr.Name] = attr.Value
		}
	}
	if len(meta) == 0 {
		meta = nil
	}

	var parts []string
	if details.Address.StreetAddress != "" {
		parts = append(parts, details.Address.StreetAddress)
	}
	if details.Address.City != "" {
		parts = append(parts, details.Address.City)
	}
	if region := strings.TrimSpace(details.Address.State + " " + details.Address.Zipcode); region != "" {
		parts = append(parts, region)
	}

	return propertyFacts{
		Location: strings.Join(parts, ", "),
		Stats: listing.PropertyStats{
			Description: details.Description,
			HomeType:    details.HomeType,
			Bedrooms:    details.Bedrooms,
			Bathrooms:   details.Bathrooms,
			SquareFeet:  details.LivingArea,
			LotSize:     details.LotSize,
			YearBuilt:   details.YearBuilt,
			Price:       details.Price,
			Latitude:    details.Latitude,
			Longitude:   details.Longitude,
			Meta:        meta,
		},
	}
}

// formatPropertyInfo renders the fact sheet as prompt text.
func formatPropertyInfo(facts propertyFacts) string {
	var sb strings.Builder
	add := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "%s: %s\n", label, value)
		}
	}
	add("Location", facts.Location)
	add("Home type", facts.Stats.HomeType)
	if facts.Stats.Bedrooms > 0 {
		fmt.Fprintf(&sb, "Bedrooms: %g\n", facts.Stats.Bedrooms)
	}
	if facts.Stats.Bathrooms > 0 {
		fmt.Fprintf(&sb, "Bathrooms: %g\n", facts.Stats.Bathrooms)
	}
	if facts.Stats.SquareFeet > 0 {
		fmt.Fprintf(&sb, "Square feet: %g\n", facts.Stats.SquareFeet)
	}
	add("Lot size", facts.Stats.LotSize)
	if facts.Stats.YearBuilt > 0 {
		fmt.Fprintf(&sb, "Year built: %d\n", facts.Stats.YearBuilt)
	}
	if facts.Stats.Price > 0 {
		fmt.Fprintf(&sb, "Price: $%.0f\n", facts.Stats.Price)
	}
	add("Description", facts.Stats.Description)
	for name, value := range facts.Stats.Meta {
		add(name, value)
	}
	return sb.String()
}
