package job

import (
	"context"
	"errors"
	"time"
)

// Status is the ledger-level lifecycle of one workflow execution. The only
// legal transitions are running -> ready and running -> failed.
type Status string

const (
	StatusRunning Status = "running"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusReady || s == StatusFailed }

// Job is one durable execution of a workflow. Its id is the triggering
// event's id, which doubles as the idempotency key.
type Job struct {
	ID           string    `json:"id"`
	WorkflowName string    `json:"workflowName"`
	Status       Status    `json:"status"`
	CurrentStep  *string   `json:"currentStep"`
	Error        *string   `json:"error"`
	EntityID     *string   `json:"entityId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

var (
	ErrNotFound = errors.New("job not found")
)

// Ledger is the passive record of workflow executions. It enforces none of
// the step ordering itself; that is the executor's responsibility.
type Ledger interface {
	// Create inserts a running job with a null current step. If a job with
	// the same id already exists it is returned unchanged, because the
	// triggering event may be redelivered.
	Create(ctx context.Context, id, workflowName, entityID string) (*Job, error)
	// AdvanceStep records entry into a step. It is a no-op on terminal jobs.
	AdvanceStep(ctx context.Context, id, stepName string) error
	// SetEntity binds the job to the entity its setup step produced.
	SetEntity(ctx context.Context, id, entityID string) error
	// Complete marks the job ready. First terminal write wins.
	Complete(ctx context.Context, id string) error
	// Fail marks the job failed with a message. First terminal write wins.
	Fail(ctx context.Context, id, errorMessage string) error
	GetByID(ctx context.Context, id string) (*Job, error)
}

// CheckpointStore persists per-step results so a re-delivered job skips work
// it already finished instead of repeating side effects.
type CheckpointStore interface {
	Get(ctx context.Context, jobID, stepName string) ([]byte, bool, error)
	Save(ctx context.Context, jobID, stepName string, result []byte) error
}
