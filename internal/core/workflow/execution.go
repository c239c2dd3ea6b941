package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"listingreel/internal/core/job"
	"listingreel/internal/logger"
)

// Execution is one run of a workflow for one job. Handlers drive it through
// the declared steps in order; each step records its position in the ledger
// before doing work and checkpoints its result after, so a re-delivered job
// replays completed steps from checkpoints instead of repeating them.
type Execution struct {
	ctx         context.Context
	jobID       string
	def         *Definition
	ledger      job.Ledger
	checkpoints job.CheckpointStore
	log         *logger.Logger
	cursor      int
}

// BindEntity records the entity a setup step just created, so progress
// queries can join job state with entity state.
func (ex *Execution) BindEntity(entityID string) error {
	if err := ex.ledger.SetEntity(ex.ctx, ex.jobID, entityID); err != nil {
		return fmt.Errorf("bind entity %s: %w", entityID, err)
	}
	return nil
}

// StepError marks a failure inside a named step. The runner unwraps it to
// record which step halted the job.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Run executes one sequential step with no result to checkpoint beyond a
// completion marker.
func (ex *Execution) Run(name string, fn func(ctx context.Context) error) error {
	_, err := StepResult(ex, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// StepResult executes one sequential step and checkpoints its result. On
// re-entry a checkpointed step returns its stored result without touching
// the ledger, keeping the recorded current step monotonic.
func StepResult[T any](ex *Execution, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ex.expect(name); err != nil {
		return zero, err
	}

	if data, ok, err := ex.checkpoints.Get(ex.ctx, ex.jobID, name); err != nil {
		return zero, fmt.Errorf("load checkpoint %s: %w", name, err)
	} else if ok {
		var cached T
		if err := json.Unmarshal(data, &cached); err != nil {
			return zero, fmt.Errorf("decode checkpoint %s: %w", name, err)
		}
		ex.log.LogDebugf("job %s: step %s replayed from checkpoint", ex.jobID, name)
		ex.cursor++
		return cached, nil
	}

	if err := ex.ledger.AdvanceStep(ex.ctx, ex.jobID, name); err != nil {
		return zero, fmt.Errorf("advance to step %s: %w", name, err)
	}

	result, err := fn(ex.ctx)
	if err != nil {
		return zero, &StepError{Step: name, Err: err}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("encode checkpoint %s: %w", name, err)
	}
	if err := ex.checkpoints.Save(ex.ctx, ex.jobID, name, data); err != nil {
		return zero, fmt.Errorf("save checkpoint %s: %w", name, err)
	}
	ex.cursor++
	return result, nil
}

// Branch is one side of a declared fork. Run returns the value to
// checkpoint; on replay that value is decoded into Out instead. Closures
// typically point Out at the same variable they assign, so the caller sees
// the branch result on both paths.
type Branch struct {
	Name string
	Run  func(ctx context.Context) (any, error)
	Out  any
}

// Fork runs declared sibling steps concurrently. The ledger advances
// through the siblings in declaration order before any branch starts, then
// all pending branches run under one group: the first failure cancels the
// rest and fails the job. Branches already checkpointed replay from storage.
func (ex *Execution) Fork(branches ...Branch) error {
	spec, err := ex.expectFork(branches)
	if err != nil {
		return err
	}

	var pending []Branch
	for _, b := range branches {
		data, ok, err := ex.checkpoints.Get(ex.ctx, ex.jobID, b.Name)
		if err != nil {
			return fmt.Errorf("load checkpoint %s: %w", b.Name, err)
		}
		if ok {
			if b.Out != nil {
				if err := json.Unmarshal(data, b.Out); err != nil {
					return fmt.Errorf("decode checkpoint %s: %w", b.Name, err)
				}
			}
			ex.log.LogDebugf("job %s: step %s replayed from checkpoint", ex.jobID, b.Name)
			continue
		}
		pending = append(pending, b)
	}

	for _, name := range spec.Names {
		for _, b := range pending {
			if b.Name == name {
				if err := ex.ledger.AdvanceStep(ex.ctx, ex.jobID, name); err != nil {
					return fmt.Errorf("advance to step %s: %w", name, err)
				}
			}
		}
	}

	g, gctx := errgroup.WithContext(ex.ctx)
	for _, b := range pending {
		b := b
		g.Go(func() error {
			result, err := b.Run(gctx)
			if err != nil {
				return &StepError{Step: b.Name, Err: err}
			}
			data, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("encode checkpoint %s: %w", b.Name, err)
			}
			// Save against the execution context so a finished branch keeps
			// its checkpoint even when a sibling fails.
			if err := ex.checkpoints.Save(ex.ctx, ex.jobID, b.Name, data); err != nil {
				return fmt.Errorf("save checkpoint %s: %w", b.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	ex.cursor++
	return nil
}

func (ex *Execution) expect(name string) error {
	if ex.cursor >= len(ex.def.Steps) {
		return fmt.Errorf("workflow %s: step %q past declared order", ex.def.Name, name)
	}
	spec := ex.def.Steps[ex.cursor]
	if len(spec.Names) != 1 || spec.Names[0] != name {
		return fmt.Errorf("workflow %s: step %q out of declared order, expected %v", ex.def.Name, name, spec.Names)
	}
	return nil
}

func (ex *Execution) expectFork(branches []Branch) (StepSpec, error) {
	if ex.cursor >= len(ex.def.Steps) {
		return StepSpec{}, fmt.Errorf("workflow %s: fork past declared order", ex.def.Name)
	}
	spec := ex.def.Steps[ex.cursor]
	if len(spec.Names) != len(branches) {
		return StepSpec{}, fmt.Errorf("workflow %s: fork of %d branches, declared %v", ex.def.Name, len(branches), spec.Names)
	}
	for i, b := range branches {
		if spec.Names[i] != b.Name {
			return StepSpec{}, fmt.Errorf("workflow %s: fork branch %q out of declared order, expected %q", ex.def.Name, b.Name, spec.Names[i])
		}
	}
	return spec, nil
}
