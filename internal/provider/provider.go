// Package provider holds the adapters that translate third-party submit/poll
// APIs into one uniform status shape, plus the shared retrying HTTP client
// and the single poll-loop implementation every waiting step reuses.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Status is the uniform view of an external job's progress.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// PollFunc checks an external handle once. A failed status carries the
// provider's message in err so it lands verbatim on the job record.
type PollFunc[T any] func(ctx context.Context) (Status, T, error)

// TimeoutError marks a poll loop that outlived its configured timeout.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for provider", e.Elapsed.Round(time.Second))
}

// Await runs the poll loop shared by every waiting step: poll immediately,
// then at the given interval until the provider reports a terminal status or
// the timeout lapses. queued/running keep polling; failed raises immediately;
// done returns the result. The sleep yields to the scheduler, so a suspended
// loop never blocks other jobs.
func Await[T any](ctx context.Context, interval, timeout time.Duration, poll PollFunc[T]) (T, error) {
	var zero T
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		status, result, err := poll(ctx)
		if err != nil {
			return zero, err
		}
		switch status {
		case StatusDone:
			return result, nil
		case StatusFailed:
			return zero, fmt.Errorf("provider reported failure without detail")
		}

		select {
		case <-ctx.Done():
			return zero, &TimeoutError{Elapsed: time.Since(started)}
		case <-time.After(interval):
		}
	}
}
