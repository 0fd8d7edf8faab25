package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/task"
)

// TypeExecuteTask is the asynq task type of an execution job.
const TypeExecuteTask = "task:execute"

// ErrDuplicateJob is returned when a job for the same task is already held
// by the broker.
var ErrDuplicateJob = errors.New("job already enqueued for task")

// RedisOpt converts the queue settings into asynq connection options.
func RedisOpt(cfg config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Client enqueues execution jobs. It implements task.Dispatcher.
type Client struct {
	client *asynq.Client
	queue  string
	logger *slog.Logger
}

// NewClient creates a Client publishing to the configured queue.
func NewClient(cfg config.QueueConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	q := cfg.Name
	if q == "" {
		q = "default"
	}
	return &Client{
		client: asynq.NewClient(RedisOpt(cfg)),
		queue:  q,
		logger: logger.With(slog.String("component", "queue_client")),
	}
}

// Ensure Client implements task.Dispatcher interface
var _ task.Dispatcher = (*Client)(nil)

// Submit implements task.Dispatcher. The job is delivered at most once.
func (c *Client) Submit(ctx context.Context, job task.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(TypeExecuteTask, payload),
		asynq.Queue(c.queue),
		asynq.TaskID(job.TaskID.String()),
		asynq.MaxRetry(0),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.TaskID)
	}
	if err != nil {
		return err
	}

	c.logger.Debug("job enqueued",
		slog.String("task_id", job.TaskID.String()),
		slog.String("queue", info.Queue))
	return nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
