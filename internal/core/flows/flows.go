// Package flows holds the workflow definitions: the business processes that
// turn a listing URL into scenes, scripts, and finished vertical videos.
package flows

import (
	"context"
	"time"

	"listingreel/internal/config"
	"listingreel/internal/core/listing"
	"listingreel/internal/core/workflow"
	"listingreel/internal/platform/storage"
	"listingreel/internal/provider"
	"listingreel/internal/provider/reel"
	"listingreel/internal/provider/render"
	"listingreel/internal/provider/scrape"
	"listingreel/internal/provider/vision"
)

// Workflow names and trigger events.
const (
	WorkflowParseListing     = "parse-listing"
	WorkflowGenerateScripts  = "generate-scripts"
	WorkflowGenerateAutoReel = "generate-auto-reel"
	WorkflowGenerateFinal    = "generate-final-video"

	EventListingParse     = "listing/parse"
	EventGenerateScripts  = "listing/generate.scripts"
	EventGenerateAutoReel = "group/generate.auto-reel"
	EventGenerateFinal    = "group/generate.final-video"
)

// taskSlack pads a workflow's queue timeout beyond its longest provider
// wait, covering the short steps and uploads around it.
const taskSlack = 15 * time.Minute

// Scraper is the slice of the scrape adapter the parse flow uses.
type Scraper interface {
	Trigger(ctx context.Context, url string) (string, error)
	Progress(ctx context.Context, snapshotID string) (provider.Status, error)
	Snapshot(ctx context.Context, snapshotID string) (*scrape.PropertyDetails, error)
}

// SceneAnalyzer is the slice of the vision adapter the flows use.
type SceneAnalyzer interface {
	AnalyzeImages(ctx context.Context, urls []string) ([]vision.DescribedImage, error)
	GroupImages(ctx context.Context, images []vision.DescribedImage) ([]vision.Group, error)
	PropertyContext(ctx context.Context, propertyInfo string, scenes []vision.SceneInput) (string, error)
	GenerateScripts(ctx context.Context, propertyContext string, scenes []vision.SceneInput) ([]vision.GroupScript, error)
}

// ReelMaker is the slice of the auto-reel adapter the flows use.
type ReelMaker interface {
	CreateVideo(ctx context.Context, imageURLs []string) (string, error)
	GetVideo(ctx context.Context, uuid string) (provider.Status, reel.Video, error)
	FetchVideo(ctx context.Context, url string) ([]byte, error)
}

// Renderer is the slice of the render-farm adapter the flows use.
type Renderer interface {
	StartRender(ctx context.Context, input render.RenderInput) (string, error)
	GetProgress(ctx context.Context, renderID string) (provider.Status, render.Progress, error)
	MediaDuration(ctx context.Context, url string) (float64, error)
	FetchVideo(ctx context.Context, url string) ([]byte, error)
}

// Fetcher downloads raw bytes, used to re-host listing photos.
type Fetcher interface {
	GetBytes(ctx context.Context, url string) ([]byte, string, error)
}

// Deps is everything the workflow handlers touch.
type Deps struct {
	Store   listing.Store
	Scraper Scraper
	Vision  SceneAnalyzer
	Reel    ReelMaker
	Render  Renderer
	Uploads storage.Uploader
	Fetch   Fetcher
	Timings config.Timings
}

// Register installs all four workflow definitions.
func Register(registry *workflow.Registry, d Deps) error {
	for _, def := range []*workflow.Definition{
		ParseListing(d),
		GenerateScripts(d),
		GenerateAutoReel(d),
		GenerateFinalVideo(d),
	} {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}
