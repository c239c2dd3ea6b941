package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type fakeStore struct {
	Store
	listings map[string]*Listing
	groups   map[string]*MediaGroup
	updates  map[string]GroupUpdate
}

func (s *fakeStore) GetListing(ctx context.Context, id string) (*Listing, error) {
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

func (s *fakeStore) GetGroup(ctx context.Context, id string) (*MediaGroup, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

func (s *fakeStore) GroupsByListing(ctx context.Context, listingID string) ([]MediaGroup, error) {
	var out []MediaGroup
	for _, g := range s.groups {
		if g.ListingID == listingID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateGroup(ctx context.Context, id string, upd GroupUpdate) error {
	if _, ok := s.groups[id]; !ok {
		return ErrNotFound
	}
	if s.updates == nil {
		s.updates = make(map[string]GroupUpdate)
	}
	s.updates[id] = upd
	return nil
}

type fakeTTS struct {
	fail   bool
	voices []string
}

func (f *fakeTTS) Convert(ctx context.Context, script, voiceID string) ([]byte, error) {
	if f.fail {
		return nil, fmt.Errorf("voice farm down")
	}
	f.voices = append(f.voices, voiceID)
	return []byte("mp3"), nil
}

type fakeUploader struct {
	paths []string
}

func (f *fakeUploader) Upload(path string, data []byte, contentType string) (string, error) {
	f.paths = append(f.paths, path)
	return "https://cdn.example.com/" + path, nil
}

func newTestApp(store *fakeStore, tts *fakeTTS, uploads *fakeUploader) *fiber.App {
	app := fiber.New()
	h := NewHandler(store, tts, uploads, "voice-default")
	app.Get("/v1/listings/:id/groups", h.HandleGetGroups)
	app.Post("/v1/groups/:id/voice-over", h.HandleVoiceOver)
	return app
}

func TestHandleGetGroups(t *testing.T) {
	script := "welcome home"
	store := &fakeStore{
		listings: map[string]*Listing{"l-1": {ID: "l-1"}},
		groups: map[string]*MediaGroup{
			"g-1": {ID: "g-1", ListingID: "l-1", GroupName: "Kitchen", Script: &script},
		},
	}
	app := newTestApp(store, &fakeTTS{}, &fakeUploader{})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/listings/l-1/groups", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Success bool         `json:"success"`
		Groups  []MediaGroup `json:"groups"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Success || len(body.Groups) != 1 || body.Groups[0].GroupName != "Kitchen" {
		t.Fatalf("body = %+v", body)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/listings/unknown/groups", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("unknown listing status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleVoiceOver(t *testing.T) {
	script := "step into your future kitchen"
	store := &fakeStore{
		groups: map[string]*MediaGroup{
			"g-1": {ID: "g-1", ListingID: "l-1", GroupName: "Kitchen", Script: &script},
			"g-2": {ID: "g-2", ListingID: "l-1", GroupName: "Garage"},
		},
	}
	tts := &fakeTTS{}
	uploads := &fakeUploader{}
	app := newTestApp(store, tts, uploads)

	resp, err := app.Test(httptest.NewRequest("POST", "/v1/groups/g-1/voice-over", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(tts.voices) != 1 || tts.voices[0] != "voice-default" {
		t.Fatalf("voices used = %v, want the default voice", tts.voices)
	}
	if len(uploads.paths) != 1 || !strings.Contains(uploads.paths[0], "voice-overs/g-1.mp3") {
		t.Fatalf("upload paths = %v", uploads.paths)
	}
	upd, ok := store.updates["g-1"]
	if !ok || upd.AudioURL == nil || !strings.Contains(*upd.AudioURL, "voice-overs/g-1.mp3") {
		t.Fatalf("audioUrl not persisted: %+v", upd)
	}

	// scriptless group
	resp, err = app.Test(httptest.NewRequest("POST", "/v1/groups/g-2/voice-over", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("scriptless status = %d, want 400", resp.StatusCode)
	}

	// unknown group
	resp, err = app.Test(httptest.NewRequest("POST", "/v1/groups/nope/voice-over", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("unknown group status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleVoiceOverSynthesisFailure(t *testing.T) {
	script := "hello"
	store := &fakeStore{
		groups: map[string]*MediaGroup{
			"g-1": {ID: "g-1", ListingID: "l-1", Script: &script},
		},
	}
	app := newTestApp(store, &fakeTTS{fail: true}, &fakeUploader{})

	resp, err := app.Test(httptest.NewRequest("POST", "/v1/groups/g-1/voice-over", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if len(store.updates) != 0 {
		t.Fatalf("group updated despite synthesis failure")
	}
}
