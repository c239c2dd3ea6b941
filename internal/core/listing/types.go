package listing

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// PropertyStats is the structured fact sheet compiled from a scrape snapshot.
// Meta keeps the provider's raw attribute list for fields we do not model.
type PropertyStats struct {
	Description string            `json:"description,omitempty"`
	HomeType    string            `json:"homeType,omitempty"`
	Bedrooms    float64           `json:"bedrooms,omitempty"`
	Bathrooms   float64           `json:"bathrooms,omitempty"`
	SquareFeet  float64           `json:"squareFeet,omitempty"`
	LotSize     string            `json:"lotSize,omitempty"`
	YearBuilt   int               `json:"yearBuilt,omitempty"`
	Price       float64           `json:"price,omitempty"`
	Latitude    float64           `json:"lat,omitempty"`
	Longitude   float64           `json:"lon,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Listing is the real-estate property aggregate. It is created empty at
// workflow start and filled in incrementally as steps produce facts.
type Listing struct {
	ID              string         `json:"id"`
	Status          Status         `json:"status"`
	Location        *string        `json:"location"`
	ImageCount      *int           `json:"imageCount"`
	PropertyStats   *PropertyStats `json:"propertyStats"`
	PropertyContext *string        `json:"propertyContext"`
	HasScripts      bool           `json:"hasScripts"`
	HasVideoReels   bool           `json:"hasVideoReels"`
	IsPublished     bool           `json:"isPublished"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// MediaGroup is one logical scene of a listing ("Kitchen", "Exterior").
type MediaGroup struct {
	ID                 string    `json:"id"`
	ListingID          string    `json:"listingId"`
	GroupName          string    `json:"groupName"`
	IsEstablishingShot bool      `json:"isEstablishingShot"`
	Script             *string   `json:"script"`
	AudioURL           *string   `json:"audioUrl"`
	AutoReelURL        *string   `json:"autoReelUrl"`
	ReelURL            *string   `json:"reelUrl"`
	Media              []Media   `json:"media,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

type Media struct {
	ID                 string    `json:"id"`
	ListingID          string    `json:"listingId"`
	GroupID            *string   `json:"groupId"`
	MediaType          MediaType `json:"mediaType"`
	MediaURL           string    `json:"mediaUrl"`
	Description        *string   `json:"description"`
	IsEstablishingShot bool      `json:"isEstablishingShot"`
}

// ListingUpdate and GroupUpdate are partial patches; nil fields are left
// untouched by the store.
type ListingUpdate struct {
	Status          *Status
	Location        *string
	ImageCount      *int
	PropertyStats   *PropertyStats
	PropertyContext *string
	HasScripts      *bool
	HasVideoReels   *bool
	IsPublished     *bool
}

type GroupUpdate struct {
	Script      *string
	AudioURL    *string
	AutoReelURL *string
	ReelURL     *string
}

var ErrNotFound = errors.New("listing entity not found")

// Store is the entity persistence contract the workflows write through.
type Store interface {
	CreateListing(ctx context.Context) (*Listing, error)
	GetListing(ctx context.Context, id string) (*Listing, error)
	UpdateListing(ctx context.Context, id string, upd ListingUpdate) error

	UpsertGroup(ctx context.Context, listingID, groupName string, isEstablishingShot bool) (*MediaGroup, error)
	GetGroup(ctx context.Context, id string) (*MediaGroup, error)
	UpdateGroup(ctx context.Context, id string, upd GroupUpdate) error
	GroupsByListing(ctx context.Context, listingID string) ([]MediaGroup, error)

	AddMedia(ctx context.Context, items []Media) error
}
