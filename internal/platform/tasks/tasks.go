package tasks

import (
	"time"

	"github.com/hibiken/asynq"

	"listingreel/internal/platform/redis"
)

// Client enqueues workflow tasks onto asynq. Workflow tasks are enqueued with
// MaxRetry > 0 so a process crash mid-run re-delivers the task; terminal step
// failures opt out via asynq.SkipRetry.
type Client struct{ c *asynq.Client }

func New(r *redis.Service) *Client { return &Client{c: asynq.NewClient(r.AsynqRedisOpt())} }

func (t *Client) Enqueue(task *asynq.Task, queue string, maxRetries int, timeout time.Duration) error {
	opts := []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(maxRetries)}
	// asynq imposes its own default deadline when none is given, which can
	// undercut a workflow's configured poll windows.
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	_, err := t.c.Enqueue(task, opts...)
	return err
}

func (t *Client) Close() error { return t.c.Close() }
