// Package workflow is the durable step executor. A Definition declares an
// ordered list of named steps (with optional concurrent sibling forks); the
// Runner executes them against the job ledger, checkpointing before and
// after each step so a re-delivered job resumes instead of repeating work.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepSpec declares one slot in a workflow's step order. Forked siblings
// share a slot and may run concurrently; everything else is sequential.
type StepSpec struct {
	Names []string
}

func Step(name string) StepSpec { return StepSpec{Names: []string{name}} }

// Fork declares sibling steps with no data dependency. Concurrency is never
// inferred from code shape; it exists only where a definition declares it.
func Fork(names ...string) StepSpec { return StepSpec{Names: names} }

// Definition is one business process: a trigger event, a declared step
// order, and the handler that drives an Execution through those steps.
type Definition struct {
	Name  string
	Event string
	Steps []StepSpec

	// Timeout bounds one queue delivery of the job. It must exceed the
	// workflow's longest provider wait, otherwise the queue cancels a run
	// whose configured poll window has not lapsed. Zero falls back to the
	// queue's own default deadline.
	Timeout time.Duration

	// EntityID extracts the target entity from the trigger payload for
	// workflows that operate on an existing entity. Left nil when the setup
	// step creates the entity and binds it via Execution.BindEntity.
	EntityID func(input json.RawMessage) (string, error)

	Handler func(ex *Execution, input json.RawMessage) error
}

// StepNames flattens the declared order, fork siblings in declaration order.
func (d *Definition) StepNames() []string {
	var names []string
	for _, spec := range d.Steps {
		names = append(names, spec.Names...)
	}
	return names
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow definition missing name")
	}
	if d.Event == "" {
		return fmt.Errorf("workflow %s missing trigger event", d.Name)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %s declares no steps", d.Name)
	}
	seen := make(map[string]bool)
	for _, spec := range d.Steps {
		if len(spec.Names) == 0 {
			return fmt.Errorf("workflow %s declares an empty step slot", d.Name)
		}
		for _, name := range spec.Names {
			if name == "" {
				return fmt.Errorf("workflow %s declares an unnamed step", d.Name)
			}
			if seen[name] {
				return fmt.Errorf("workflow %s declares step %q twice", d.Name, name)
			}
			seen[name] = true
		}
	}
	return nil
}
