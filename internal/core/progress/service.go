// Package progress answers "where is my job and what has it produced so
// far" by joining the job ledger with the entity store.
package progress

import (
	"context"
	"errors"
	"fmt"

	"listingreel/internal/core/job"
	"listingreel/internal/core/listing"
	"listingreel/internal/core/workflow"
	"listingreel/internal/logger"
)

const (
	KindListing = "listing"
	KindGroup   = "group"
)

var ErrUnknownKind = errors.New("unknown entity kind")

// Report is the combined view returned to pollers. Job and Entity are null
// when the id is unknown; a known job with an unbound or deleted entity
// reports the job alone. Steps lists the job's workflow steps in execution
// order so clients can render the current step against the whole pipeline.
type Report struct {
	Job    *job.Job    `json:"job"`
	Entity interface{} `json:"entity"`
	Steps  []string    `json:"steps,omitempty"`
}

type Service struct {
	ledger   job.Ledger
	store    listing.Store
	registry *workflow.Registry
	log      *logger.Logger
}

func NewService(ledger job.Ledger, store listing.Store, registry *workflow.Registry) *Service {
	return &Service{ledger: ledger, store: store, registry: registry, log: logger.New("Progress")}
}

// Get reads straight from the stores so a poll immediately after a step
// completes sees that step's writes.
func (s *Service) Get(ctx context.Context, jobID, entityKind string) (*Report, error) {
	if entityKind != KindListing && entityKind != KindGroup {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, entityKind)
	}

	j, err := s.ledger.GetByID(ctx, jobID)
	if errors.Is(err, job.ErrNotFound) {
		return &Report{}, nil
	}
	if err != nil {
		return nil, err
	}

	report := &Report{Job: j}
	if def, ok := s.registry.Get(j.WorkflowName); ok {
		report.Steps = def.StepNames()
	}
	if j.EntityID == nil {
		return report, nil
	}

	switch entityKind {
	case KindListing:
		l, err := s.store.GetListing(ctx, *j.EntityID)
		if errors.Is(err, listing.ErrNotFound) {
			return report, nil
		}
		if err != nil {
			return nil, err
		}
		report.Entity = l
	case KindGroup:
		g, err := s.store.GetGroup(ctx, *j.EntityID)
		if errors.Is(err, listing.ErrNotFound) {
			return report, nil
		}
		if err != nil {
			return nil, err
		}
		report.Entity = g
	}
	return report, nil
}
