package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listingreel/internal/logger"
)

// StepFinished is the terminal sentinel written by Complete. It matches the
// declared final step of every workflow so pollers see a stable end marker.
const StepFinished = "finish"

// PGLedger implements Ledger on PostgreSQL. Terminal immutability is enforced
// in SQL: every mutation is guarded by status = 'running', so the first
// terminal write wins and later calls are no-ops.
type PGLedger struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool, log: logger.New("JobLedger")}
}

const jobColumns = `id, workflow_name, status, current_step, error, entity_id, created_at, updated_at`

func (l *PGLedger) Create(ctx context.Context, id, workflowName, entityID string) (*Job, error) {
	query := `
INSERT INTO jobs (id, workflow_name, status, entity_id)
VALUES ($1, $2, 'running', NULLIF($3, ''))
ON CONFLICT (id) DO NOTHING;
`
	tag, err := l.pool.Exec(ctx, query, id, workflowName, entityID)
	if err != nil {
		return nil, fmt.Errorf("create job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		l.log.LogDebugf("job %s already exists, returning existing row", id)
	}
	return l.GetByID(ctx, id)
}

func (l *PGLedger) AdvanceStep(ctx context.Context, id, stepName string) error {
	query := `
UPDATE jobs SET current_step = $2, updated_at = now()
WHERE id = $1 AND status = 'running';
`
	tag, err := l.pool.Exec(ctx, query, id, stepName)
	if err != nil {
		return fmt.Errorf("advance job %s to %s: %w", id, stepName, err)
	}
	if tag.RowsAffected() == 0 {
		return l.explainMiss(ctx, id)
	}
	return nil
}

func (l *PGLedger) SetEntity(ctx context.Context, id, entityID string) error {
	query := `
UPDATE jobs SET entity_id = $2, updated_at = now()
WHERE id = $1 AND status = 'running';
`
	tag, err := l.pool.Exec(ctx, query, id, entityID)
	if err != nil {
		return fmt.Errorf("bind job %s to entity: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return l.explainMiss(ctx, id)
	}
	return nil
}

func (l *PGLedger) Complete(ctx context.Context, id string) error {
	query := `
UPDATE jobs SET status = 'ready', current_step = $2, updated_at = now()
WHERE id = $1 AND status = 'running';
`
	if _, err := l.pool.Exec(ctx, query, id, StepFinished); err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

func (l *PGLedger) Fail(ctx context.Context, id, errorMessage string) error {
	query := `
UPDATE jobs SET status = 'failed', error = $2, updated_at = now()
WHERE id = $1 AND status = 'running';
`
	if _, err := l.pool.Exec(ctx, query, id, errorMessage); err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

func (l *PGLedger) GetByID(ctx context.Context, id string) (*Job, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id)
	var j Job
	if err := row.Scan(
		&j.ID,
		&j.WorkflowName,
		&j.Status,
		&j.CurrentStep,
		&j.Error,
		&j.EntityID,
		&j.CreatedAt,
		&j.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// explainMiss distinguishes "job absent" from "job already terminal" after a
// guarded update touched zero rows. Terminal jobs swallow the write.
func (l *PGLedger) explainMiss(ctx context.Context, id string) error {
	j, err := l.GetByID(ctx, id)
	if err != nil {
		return err
	}
	l.log.LogDebugf("job %s is %s, ignoring write", id, j.Status)
	return nil
}
