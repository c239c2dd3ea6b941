package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"listingreel/internal/core/job"
	"listingreel/internal/logger"
)

const taskTypePrefix = "workflow:"

// TaskType is the asynq task type a workflow's jobs are enqueued under.
func TaskType(workflowName string) string { return taskTypePrefix + workflowName }

// TaskPayload is the queue message for one job run.
type TaskPayload struct {
	JobID    string          `json:"job_id"`
	Workflow string          `json:"workflow"`
	Data     json.RawMessage `json:"data"`
}

// Runner executes workflow tasks against the job ledger. Queue re-delivery
// after a crash re-enters the same job; the ledger's terminal guard and the
// step checkpoints make that safe.
type Runner struct {
	registry    *Registry
	ledger      job.Ledger
	checkpoints job.CheckpointStore
	log         *logger.Logger
}

func NewRunner(registry *Registry, ledger job.Ledger, checkpoints job.CheckpointStore) *Runner {
	return &Runner{
		registry:    registry,
		ledger:      ledger,
		checkpoints: checkpoints,
		log:         logger.New("WorkflowRunner"),
	}
}

// HandleTask is the asynq handler for every workflow task type.
func (r *Runner) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" || payload.Workflow == "" {
		return fmt.Errorf("task payload missing job_id or workflow: %w", asynq.SkipRetry)
	}
	return r.Run(ctx, payload.JobID, payload.Workflow, payload.Data)
}

// Run executes one workflow for one job id. Ledger errors return as-is so
// the queue retries transient outages; a step failure marks the job failed
// and stops retries, since the terminal record is the outcome.
func (r *Runner) Run(ctx context.Context, jobID, workflowName string, input json.RawMessage) error {
	def, ok := r.registry.Get(workflowName)
	if !ok {
		return fmt.Errorf("unknown workflow %q: %w", workflowName, asynq.SkipRetry)
	}

	existing, err := r.ledger.GetByID(ctx, jobID)
	if err != nil && !errors.Is(err, job.ErrNotFound) {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if existing != nil && existing.Status.Terminal() {
		r.log.LogInfof("job %s already %s, dropping re-delivery", jobID, existing.Status)
		return nil
	}

	entityID := ""
	var entityErr error
	if def.EntityID != nil {
		entityID, entityErr = def.EntityID(input)
	}

	// The job row is written before entity resolution is judged, so even a
	// malformed payload leaves a failed record for pollers to find.
	if _, err := r.ledger.Create(ctx, jobID, def.Name, entityID); err != nil {
		return fmt.Errorf("create job %s: %w", jobID, err)
	}
	if entityErr != nil {
		return r.halt(ctx, jobID, def.Name, fmt.Errorf("resolve entity: %w", entityErr))
	}

	ex := &Execution{
		ctx:         ctx,
		jobID:       jobID,
		def:         def,
		ledger:      r.ledger,
		checkpoints: r.checkpoints,
		log:         r.log,
	}
	if err := def.Handler(ex, input); err != nil {
		return r.halt(ctx, jobID, def.Name, err)
	}

	if err := r.ledger.Complete(ctx, jobID); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	r.log.LogInfof("job %s: workflow %s finished", jobID, def.Name)
	return nil
}

// halt records the failure on the job and tells the queue to stop retrying.
// The Fail write itself may hit a transient outage; that error returns
// without SkipRetry so the delivery runs again.
func (r *Runner) halt(ctx context.Context, jobID, workflowName string, cause error) error {
	msg := cause.Error()
	var se *StepError
	if errors.As(cause, &se) {
		msg = fmt.Sprintf("%s: %v", se.Step, se.Err)
	}
	if err := r.ledger.Fail(ctx, jobID, msg); err != nil {
		return fmt.Errorf("record failure of job %s: %w", jobID, err)
	}
	r.log.LogErrorf("job %s: workflow %s halted: %v", jobID, workflowName, cause)
	return fmt.Errorf("workflow %s job %s halted: %v: %w", workflowName, jobID, cause, asynq.SkipRetry)
}
