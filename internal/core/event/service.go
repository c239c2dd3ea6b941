// Package event is the trigger surface: it maps event names to workflow
// definitions, validates preconditions against current entity state, mints
// the event id that doubles as the job id, and enqueues the run.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"listingreel/internal/core/flows"
	"listingreel/internal/core/listing"
	"listingreel/internal/core/workflow"
	"listingreel/internal/logger"
)

const (
	workflowQueue    = "workflows"
	workflowMaxRetry = 3
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	// ErrPrecondition rejects a trigger whose entity is not in the required
	// state. No job row is written for rejected triggers.
	ErrPrecondition = errors.New("precondition failed")
)

// Enqueuer is the queue client slice the service needs.
type Enqueuer interface {
	Enqueue(task *asynq.Task, queue string, maxRetries int, timeout time.Duration) error
}

type Service struct {
	registry *workflow.Registry
	tasks    Enqueuer
	store    listing.Store
	log      *logger.Logger
}

func NewService(registry *workflow.Registry, tasks Enqueuer, store listing.Store) *Service {
	return &Service{
		registry: registry,
		tasks:    tasks,
		store:    store,
		log:      logger.New("Events"),
	}
}

// Trigger validates and enqueues one event. The returned event id is the job
// id a caller polls for progress.
func (s *Service) Trigger(ctx context.Context, eventName string, data json.RawMessage) (string, error) {
	def, ok := s.registry.GetByEvent(eventName)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, eventName)
	}
	if err := s.checkPrecondition(ctx, eventName, data); err != nil {
		return "", err
	}

	eventID := uuid.NewString()
	payload, err := json.Marshal(workflow.TaskPayload{
		JobID:    eventID,
		Workflow: def.Name,
		Data:     data,
	})
	if err != nil {
		return "", err
	}
	task := asynq.NewTask(workflow.TaskType(def.Name), payload)
	if err := s.tasks.Enqueue(task, workflowQueue, workflowMaxRetry, def.Timeout); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", def.Name, err)
	}
	s.log.LogInfof("event %s accepted as job %s (workflow %s)", eventName, eventID, def.Name)
	return eventID, nil
}

func (s *Service) checkPrecondition(ctx context.Context, eventName string, data json.RawMessage) error {
	switch eventName {
	case flows.EventListingParse:
		var in struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(data, &in); err != nil || in.URL == "" {
			return fmt.Errorf("%w: a listing url is required", ErrPrecondition)
		}
		u, err := url.Parse(in.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q is not a valid listing url", ErrPrecondition, in.URL)
		}
		return nil

	case flows.EventGenerateScripts:
		var in struct {
			ListingID string `json:"listingId"`
		}
		if err := json.Unmarshal(data, &in); err != nil || in.ListingID == "" {
			return fmt.Errorf("%w: listingId is required", ErrPrecondition)
		}
		if _, err := s.store.GetListing(ctx, in.ListingID); err != nil {
			return err
		}
		groups, err := s.store.GroupsByListing(ctx, in.ListingID)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			return fmt.Errorf("%w: listing %s has no scene groups yet", ErrPrecondition, in.ListingID)
		}
		return nil

	case flows.EventGenerateAutoReel:
		g, err := s.group(ctx, data)
		if err != nil {
			return err
		}
		for _, m := range g.Media {
			if m.MediaType == listing.MediaTypeImage && m.MediaURL != "" {
				return nil
			}
		}
		return fmt.Errorf("%w: group %s has no images", ErrPrecondition, g.ID)

	case flows.EventGenerateFinal:
		g, err := s.group(ctx, data)
		if err != nil {
			return err
		}
		if g.AutoReelURL == nil || *g.AutoReelURL == "" {
			return fmt.Errorf("%w: group %s has no auto-reel yet", ErrPrecondition, g.ID)
		}
		if g.AudioURL == nil || *g.AudioURL == "" {
			return fmt.Errorf("%w: group %s has no voice-over yet", ErrPrecondition, g.ID)
		}
		return nil
	}
	return nil
}

func (s *Service) group(ctx context.Context, data json.RawMessage) (*listing.MediaGroup, error) {
	var in struct {
		GroupID string `json:"groupId"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.GroupID == "" {
		return nil, fmt.Errorf("%w: groupId is required", ErrPrecondition)
	}
	return s.store.GetGroup(ctx, in.GroupID)
}
