package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGCheckpointStore stores step results as JSON rows keyed by (job, step).
// Save is an upsert so re-running a step after a crash overwrites rather
// than duplicates.
type PGCheckpointStore struct {
	pool *pgxpool.Pool
}

func NewPGCheckpointStore(pool *pgxpool.Pool) *PGCheckpointStore {
	return &PGCheckpointStore{pool: pool}
}

func (s *PGCheckpointStore) Get(ctx context.Context, jobID, stepName string) ([]byte, bool, error) {
	var result []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM job_checkpoints WHERE job_id = $1 AND step_name = $2;`,
		jobID, stepName,
	).Scan(&result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get checkpoint %s/%s: %w", jobID, stepName, err)
	}
	return result, true, nil
}

func (s *PGCheckpointStore) Save(ctx context.Context, jobID, stepName string, result []byte) error {
	query := `
INSERT INTO job_checkpoints (job_id, step_name, result)
VALUES ($1, $2, $3)
ON CONFLICT (job_id, step_name) DO UPDATE SET result = EXCLUDED.result;
`
	if _, err := s.pool.Exec(ctx, query, jobID, stepName, result); err != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", jobID, stepName, err)
	}
	return nil
}
