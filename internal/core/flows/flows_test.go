package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"listingreel/internal/config"
	"listingreel/internal/core/job"
	"listingreel/internal/core/listing"
	"listingreel/internal/core/workflow"
	"listingreel/internal/provider"
	"listingreel/internal/provider/reel"
	"listingreel/internal/provider/render"
	"listingreel/internal/provider/scrape"
	"listingreel/internal/provider/vision"
)

// ---- in-memory ledger and checkpoints ----

type memLedger struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

func newMemLedger() *memLedger { return &memLedger{jobs: make(map[string]*job.Job)} }

func (l *memLedger) Create(ctx context.Context, id, workflowName, entityID string) (*job.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.jobs[id]; ok {
		return existing, nil
	}
	j := &job.Job{ID: id, WorkflowName: workflowName, Status: job.StatusRunning, CreatedAt: time.Now()}
	if entityID != "" {
		j.EntityID = &entityID
	}
	l.jobs[id] = j
	return j, nil
}

func (l *memLedger) AdvanceStep(ctx context.Context, id, stepName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	if !j.Status.Terminal() {
		step := stepName
		j.CurrentStep = &step
	}
	return nil
}

func (l *memLedger) SetEntity(ctx context.Context, id, entityID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.EntityID = &entityID
	return nil
}

func (l *memLedger) Complete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	if !j.Status.Terminal() {
		j.Status = job.StatusReady
		step := job.StepFinished
		j.CurrentStep = &step
	}
	return nil
}

func (l *memLedger) Fail(ctx context.Context, id, errorMessage string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	if !j.Status.Terminal() {
		j.Status = job.StatusFailed
		j.Error = &errorMessage
	}
	return nil
}

func (l *memLedger) GetByID(ctx context.Context, id string) (*job.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	copied := *j
	return &copied, nil
}

type memCheckpoints struct {
	mu      sync.Mutex
	results map[string][]byte
}

func newMemCheckpoints() *memCheckpoints { return &memCheckpoints{results: make(map[string][]byte)} }

func (c *memCheckpoints) Get(ctx context.Context, jobID, stepName string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.results[jobID+"/"+stepName]
	return data, ok, nil
}

func (c *memCheckpoints) Save(ctx context.Context, jobID, stepName string, result []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[jobID+"/"+stepName] = result
	return nil
}

// ---- in-memory entity store ----

type memStore struct {
	mu       sync.Mutex
	listings map[string]*listing.Listing
	groups   map[string]*listing.MediaGroup
	media    map[string][]listing.Media
	nextID   int
}

func newMemStore() *memStore {
	return &memStore{
		listings: make(map[string]*listing.Listing),
		groups:   make(map[string]*listing.MediaGroup),
		media:    make(map[string][]listing.Media),
	}
}

func (s *memStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *memStore) CreateListing(ctx context.Context) (*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &listing.Listing{ID: s.id("listing"), Status: listing.StatusDraft, CreatedAt: time.Now()}
	s.listings[l.ID] = l
	return l, nil
}

func (s *memStore) GetListing(ctx context.Context, id string) (*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, listing.ErrNotFound
	}
	copied := *l
	return &copied, nil
}

func (s *memStore) UpdateListing(ctx context.Context, id string, upd listing.ListingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return listing.ErrNotFound
	}
	if upd.Status != nil {
		l.Status = *upd.Status
	}
	if upd.Location != nil {
		l.Location = upd.Location
	}
	if upd.ImageCount != nil {
		l.ImageCount = upd.ImageCount
	}
	if upd.PropertyStats != nil {
		l.PropertyStats = upd.PropertyStats
	}
	if upd.PropertyContext != nil {
		l.PropertyContext = upd.PropertyContext
	}
	if upd.HasScripts != nil {
		l.HasScripts = *upd.HasScripts
	}
	if upd.HasVideoReels != nil {
		l.HasVideoReels = *upd.HasVideoReels
	}
	if upd.IsPublished != nil {
		l.IsPublished = *upd.IsPublished
	}
	return nil
}

func (s *memStore) UpsertGroup(ctx context.Context, listingID, groupName string, isEstablishingShot bool) (*listing.MediaGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.ListingID == listingID && g.GroupName == groupName {
			copied := *g
			return &copied, nil
		}
	}
	g := &listing.MediaGroup{
		ID:                 s.id("group"),
		ListingID:          listingID,
		GroupName:          groupName,
		IsEstablishingShot: isEstablishingShot,
		CreatedAt:          time.Now(),
	}
	s.groups[g.ID] = g
	copied := *g
	return &copied, nil
}

func (s *memStore) GetGroup(ctx context.Context, id string) (*listing.MediaGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, listing.ErrNotFound
	}
	copied := *g
	copied.Media = append([]listing.Media(nil), s.media[id]...)
	return &copied, nil
}

func (s *memStore) UpdateGroup(ctx context.Context, id string, upd listing.GroupUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return listing.ErrNotFound
	}
	if upd.Script != nil {
		g.Script = upd.Script
	}
	if upd.AudioURL != nil {
		g.AudioURL = upd.AudioURL
	}
	if upd.AutoReelURL != nil {
		g.AutoReelURL = upd.AutoReelURL
	}
	if upd.ReelURL != nil {
		g.ReelURL = upd.ReelURL
	}
	return nil
}

func (s *memStore) GroupsByListing(ctx context.Context, listingID string) ([]listing.MediaGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []listing.MediaGroup
	for _, g := range s.groups {
		if g.ListingID == listingID {
			copied := *g
			copied.Media = append([]listing.Media(nil), s.media[g.ID]...)
			out = append(out, copied)
		}
	}
	return out, nil
}

func (s *memStore) AddMedia(ctx context.Context, items []listing.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range items {
		if m.GroupID != nil {
			s.media[*m.GroupID] = append(s.media[*m.GroupID], m)
		}
	}
	return nil
}

// ---- scripted providers ----

type fakeScraper struct {
	pending int
	polls   int
	details scrape.PropertyDetails
}

func (f *fakeScraper) Trigger(ctx context.Context, url string) (string, error) {
	return "snap-1", nil
}

func (f *fakeScraper) Progress(ctx context.Context, snapshotID string) (provider.Status, error) {
	f.polls++
	if f.polls <= f.pending {
		return provider.StatusRunning, nil
	}
	return provider.StatusDone, nil
}

func (f *fakeScraper) Snapshot(ctx context.Context, snapshotID string) (*scrape.PropertyDetails, error) {
	copied := f.details
	return &copied, nil
}

type fakeVision struct{}

func (fakeVision) AnalyzeImages(ctx context.Context, urls []string) ([]vision.DescribedImage, error) {
	out := make([]vision.DescribedImage, len(urls))
	for i, u := range urls {
		name := u[strings.LastIndex(u, "/")+1:]
		out[i] = vision.DescribedImage{
			URL:                u,
			Filename:           name,
			Description:        "described " + name,
			IsEstablishingShot: i == 0,
		}
	}
	return out, nil
}

func (fakeVision) GroupImages(ctx context.Context, images []vision.DescribedImage) ([]vision.Group, error) {
	groups := map[string][]string{}
	for _, img := range images {
		key := "Interior"
		if img.IsEstablishingShot {
			key = "Exterior"
		}
		groups[key] = append(groups[key], img.Filename)
	}
	var out []vision.Group
	for _, name := range []string{"Exterior", "Interior"} {
		if files := groups[name]; len(files) > 0 {
			out = append(out, vision.Group{GroupName: name, Images: files})
		}
	}
	return out, nil
}

func (fakeVision) PropertyContext(ctx context.Context, propertyInfo string, scenes []vision.SceneInput) (string, error) {
	return "a charming home", nil
}

func (fakeVision) GenerateScripts(ctx context.Context, propertyContext string, scenes []vision.SceneInput) ([]vision.GroupScript, error) {
	out := make([]vision.GroupScript, len(scenes))
	for i, s := range scenes {
		out[i] = vision.GroupScript{GroupID: s.GroupID, Script: "script for " + s.GroupName}
	}
	return out, nil
}

type fakeReel struct {
	pending int
	polls   int
}

func (f *fakeReel) CreateVideo(ctx context.Context, imageURLs []string) (string, error) {
	if len(imageURLs) == 0 {
		return "", fmt.Errorf("no images submitted")
	}
	return "reel-1", nil
}

func (f *fakeReel) GetVideo(ctx context.Context, uuid string) (provider.Status, reel.Video, error) {
	f.polls++
	if f.polls == 1 {
		return provider.StatusQueued, reel.Video{}, nil
	}
	if f.polls <= f.pending {
		return provider.StatusRunning, reel.Video{}, nil
	}
	return provider.StatusDone, reel.Video{UUID: uuid, VideoURL: "https://farm.example.com/reel-1.mp4"}, nil
}

func (f *fakeReel) FetchVideo(ctx context.Context, url string) ([]byte, error) {
	return []byte("mp4-bytes"), nil
}

type fakeRender struct {
	pending int
	polls   int
}

func (f *fakeRender) StartRender(ctx context.Context, input render.RenderInput) (string, error) {
	if input.VideoURL == "" || input.AudioURL == "" {
		return "", fmt.Errorf("render input incomplete")
	}
	return "render-1", nil
}

func (f *fakeRender) GetProgress(ctx context.Context, renderID string) (provider.Status, render.Progress, error) {
	f.polls++
	if f.polls <= f.pending {
		return provider.StatusRunning, render.Progress{OverallProgress: 0.5}, nil
	}
	return provider.StatusDone, render.Progress{Done: true, OutputFile: "https://farm.example.com/out.mp4"}, nil
}

func (f *fakeRender) MediaDuration(ctx context.Context, url string) (float64, error) {
	if strings.HasSuffix(url, ".mp3") {
		return 24, nil
	}
	return 12, nil
}

func (f *fakeRender) FetchVideo(ctx context.Context, url string) ([]byte, error) {
	return []byte("final-bytes"), nil
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads map[string]string
}

func newFakeUploader() *fakeUploader { return &fakeUploader{uploads: make(map[string]string)} }

func (f *fakeUploader) Upload(path string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "https://cdn.example.com/" + path
	f.uploads[path] = contentType
	return url, nil
}

type fakeFetcher struct{}

func (fakeFetcher) GetBytes(ctx context.Context, url string) ([]byte, string, error) {
	return []byte("img"), "image/jpeg", nil
}

type env struct {
	runner  *workflow.Runner
	ledger  *memLedger
	store   *memStore
	uploads *fakeUploader
	reel    *fakeReel
}

func newEnv(t *testing.T, scraper *fakeScraper) *env {
	t.Helper()
	store := newMemStore()
	uploads := newFakeUploader()
	fr := &fakeReel{pending: 3}
	timings := config.DefaultTimings()
	timings.ScrapePollInterval = time.Millisecond
	timings.ReelPollInterval = time.Millisecond
	timings.RenderPollInterval = time.Millisecond

	registry := workflow.NewRegistry()
	err := Register(registry, Deps{
		Store:   store,
		Scraper: scraper,
		Vision:  fakeVision{},
		Reel:    fr,
		Render:  &fakeRender{pending: 2},
		Uploads: uploads,
		Fetch:   fakeFetcher{},
		Timings: timings,
	})
	if err != nil {
		t.Fatalf("register flows: %v", err)
	}
	ledger := newMemLedger()
	return &env{
		runner:  workflow.NewRunner(registry, ledger, newMemCheckpoints()),
		ledger:  ledger,
		store:   store,
		uploads: uploads,
		reel:    fr,
	}
}

func sampleDetails() scrape.PropertyDetails {
	var d scrape.PropertyDetails
	d.Address.StreetAddress = "12 Oak Lane"
	d.Address.City = "Austin"
	d.Address.State = "TX"
	d.Address.Zipcode = "78701"
	d.Description = "Bright two-story home"
	d.HomeType = "SingleFamily"
	d.Bedrooms = 3
	d.Bathrooms = 2
	d.LivingArea = 1850
	d.YearBuilt = 1998
	d.Price = 525000
	d.Photos = []scrape.Photo{
		{URL: "https://photos.example.com/front.jpg"},
		{URL: "https://photos.example.com/kitchen.jpg"},
		{URL: "https://photos.example.com/living.jpg"},
	}
	return d
}

func TestParseListingFlow(t *testing.T) {
	e := newEnv(t, &fakeScraper{pending: 2, details: sampleDetails()})

	input, _ := json.Marshal(map[string]string{"url": "https://homes.example.com/12-oak-lane"})
	if err := e.runner.Run(context.Background(), "evt-1", WorkflowParseListing, input); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	j, err := e.ledger.GetByID(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if j.Status != job.StatusReady {
		t.Fatalf("job status = %s, want ready", j.Status)
	}
	if j.EntityID == nil {
		t.Fatalf("job has no bound entity")
	}

	l, err := e.store.GetListing(context.Background(), *j.EntityID)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if l.Status != listing.StatusProcessing {
		t.Fatalf("listing status = %s, want processing", l.Status)
	}
	if l.Location == nil || *l.Location != "12 Oak Lane, Austin, TX 78701" {
		t.Fatalf("location = %v", l.Location)
	}
	if l.ImageCount == nil || *l.ImageCount != 3 {
		t.Fatalf("imageCount = %v, want 3", l.ImageCount)
	}
	if l.PropertyStats == nil || l.PropertyStats.Bedrooms != 3 {
		t.Fatalf("propertyStats = %+v", l.PropertyStats)
	}
	if l.PropertyContext == nil || *l.PropertyContext == "" {
		t.Fatalf("propertyContext not stored")
	}

	groups, err := e.store.GroupsByListing(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("GroupsByListing: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	total := 0
	for _, g := range groups {
		total += len(g.Media)
		for _, m := range g.Media {
			if !strings.HasPrefix(m.MediaURL, "https://cdn.example.com/listings/") {
				t.Fatalf("media not re-hosted: %s", m.MediaURL)
			}
		}
	}
	if total != 3 {
		t.Fatalf("stored %d media, want 3", total)
	}
}

func TestGenerateScriptsFlow(t *testing.T) {
	e := newEnv(t, &fakeScraper{details: sampleDetails()})

	input, _ := json.Marshal(map[string]string{"url": "https://homes.example.com/12-oak-lane"})
	if err := e.runner.Run(context.Background(), "evt-1", WorkflowParseListing, input); err != nil {
		t.Fatalf("parse run: %v", err)
	}
	j, _ := e.ledger.GetByID(context.Background(), "evt-1")

	input, _ = json.Marshal(map[string]string{"listingId": *j.EntityID})
	if err := e.runner.Run(context.Background(), "evt-2", WorkflowGenerateScripts, input); err != nil {
		t.Fatalf("scripts run: %v", err)
	}

	l, _ := e.store.GetListing(context.Background(), *j.EntityID)
	if !l.HasScripts {
		t.Fatalf("hasScripts not set")
	}
	groups, _ := e.store.GroupsByListing(context.Background(), l.ID)
	for _, g := range groups {
		if g.Script == nil || *g.Script == "" {
			t.Fatalf("group %s has no script", g.GroupName)
		}
	}
}

func TestGenerateScriptsUnknownListingFails(t *testing.T) {
	e := newEnv(t, &fakeScraper{})

	input, _ := json.Marshal(map[string]string{"listingId": "nope"})
	err := e.runner.Run(context.Background(), "evt-1", WorkflowGenerateScripts, input)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	j, _ := e.ledger.GetByID(context.Background(), "evt-1")
	if j.Status != job.StatusFailed {
		t.Fatalf("job status = %s, want failed", j.Status)
	}
}

func TestGenerateAutoReelFlow(t *testing.T) {
	e := newEnv(t, &fakeScraper{details: sampleDetails()})

	input, _ := json.Marshal(map[string]string{"url": "https://homes.example.com/12-oak-lane"})
	if err := e.runner.Run(context.Background(), "evt-1", WorkflowParseListing, input); err != nil {
		t.Fatalf("parse run: %v", err)
	}
	j, _ := e.ledger.GetByID(context.Background(), "evt-1")
	groups, _ := e.store.GroupsByListing(context.Background(), *j.EntityID)

	input, _ = json.Marshal(map[string]string{"groupId": groups[0].ID})
	if err := e.runner.Run(context.Background(), "evt-2", WorkflowGenerateAutoReel, input); err != nil {
		t.Fatalf("auto-reel run: %v", err)
	}

	g, _ := e.store.GetGroup(context.Background(), groups[0].ID)
	if g.AutoReelURL == nil || !strings.Contains(*g.AutoReelURL, "/auto-reels/") {
		t.Fatalf("autoReelUrl = %v", g.AutoReelURL)
	}
	l, _ := e.store.GetListing(context.Background(), *j.EntityID)
	if !l.HasVideoReels {
		t.Fatalf("hasVideoReels not set")
	}
	// queued once, pending twice, then complete
	if e.reel.polls != 4 {
		t.Fatalf("reel polled %d times, want 4", e.reel.polls)
	}
}

func TestGenerateFinalVideoFlow(t *testing.T) {
	e := newEnv(t, &fakeScraper{})

	l, _ := e.store.CreateListing(context.Background())
	g, _ := e.store.UpsertGroup(context.Background(), l.ID, "Exterior", true)
	auto := "https://cdn.example.com/listings/x/auto-reels/" + g.ID + ".mp4"
	audio := "https://cdn.example.com/listings/x/voice-overs/" + g.ID + ".mp3"
	if err := e.store.UpdateGroup(context.Background(), g.ID, listing.GroupUpdate{AutoReelURL: &auto, AudioURL: &audio}); err != nil {
		t.Fatalf("seed group: %v", err)
	}

	input, _ := json.Marshal(map[string]string{"groupId": g.ID})
	if err := e.runner.Run(context.Background(), "evt-1", WorkflowGenerateFinal, input); err != nil {
		t.Fatalf("final run: %v", err)
	}

	got, _ := e.store.GetGroup(context.Background(), g.ID)
	if got.ReelURL == nil || !strings.Contains(*got.ReelURL, "/reels/") {
		t.Fatalf("reelUrl = %v", got.ReelURL)
	}
	updated, _ := e.store.GetListing(context.Background(), l.ID)
	if !updated.IsPublished || updated.Status != listing.StatusPublished {
		t.Fatalf("listing not published: %+v", updated)
	}
}

func TestTaskTimeoutsCoverProviderWaits(t *testing.T) {
	timings := config.DefaultTimings()
	d := Deps{Timings: timings}

	cases := []struct {
		def  *workflow.Definition
		wait time.Duration
	}{
		{ParseListing(d), timings.ScrapeTimeout},
		{GenerateScripts(d), timings.LLMTimeout},
		{GenerateAutoReel(d), timings.ReelTimeout},
		{GenerateFinalVideo(d), timings.RenderTimeout},
	}
	for _, tc := range cases {
		if tc.def.Timeout <= tc.wait {
			t.Fatalf("workflow %s queue timeout %v does not exceed its longest provider wait %v",
				tc.def.Name, tc.def.Timeout, tc.wait)
		}
	}
}

func TestGenerateFinalVideoRequiresVoiceOver(t *testing.T) {
	e := newEnv(t, &fakeScraper{})

	l, _ := e.store.CreateListing(context.Background())
	g, _ := e.store.UpsertGroup(context.Background(), l.ID, "Exterior", true)
	auto := "https://cdn.example.com/auto.mp4"
	if err := e.store.UpdateGroup(context.Background(), g.ID, listing.GroupUpdate{AutoReelURL: &auto}); err != nil {
		t.Fatalf("seed group: %v", err)
	}

	input, _ := json.Marshal(map[string]string{"groupId": g.ID})
	err := e.runner.Run(context.Background(), "evt-1", WorkflowGenerateFinal, input)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	j, _ := e.ledger.GetByID(context.Background(), "evt-1")
	if j.Status != job.StatusFailed || j.Error == nil || !strings.Contains(*j.Error, "voice-over") {
		t.Fatalf("job = %+v, want failed with voice-over message", j)
	}
}
