package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	config "postqueue/configs"
	"postqueue/internal/models"
	"postqueue/internal/telemetry"
)

// Client wraps the asynq client as the durable queue side of the pipeline.
// When Redis is unreachable at startup the client degrades: Available reports
// false, nothing is enqueued, and the poll scheduler carries all execution.
type Client struct {
	cfg       config.Config
	client    *asynq.Client
	inspector *asynq.Inspector
	available bool
}

func NewClient(cfg config.Config) *Client {
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	c := &Client{
		cfg:       cfg,
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
	}

	if err := c.client.Ping(); err != nil {
		slog.Warn(fmt.Sprintf("job queue unreachable, running in poll-only mode: %v", err))
		telemetry.QueueDegraded.Set(1)
		return c
	}
	c.available = true
	telemetry.QueueDegraded.Set(0)
	return c
}

func (c *Client) Available() bool {
	return c.available
}

// EnqueueEntry schedules a delayed job for one entry. An ID conflict means a
// job for this slot already exists, which is the desired state.
func (c *Client) EnqueueEntry(ctx context.Context, due *models.DueEntry) (string, error) {
	task, err := NewPublishEntryTask(due)
	if err != nil {
		return "", err
	}

	taskID := jobRef(due)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.ProcessAt(due.ScheduledAt),
		asynq.MaxRetry(c.cfg.QueueMaxRetry),
		asynq.Retention(c.cfg.QueueRetention),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return taskID, nil
		}
		return "", err
	}

	telemetry.QueueEnqueued.Inc()
	return info.ID, nil
}

// CancelJob removes a not-yet-running job. A job that already fired or was
// never enqueued is not an error; the store-level claim is what actually
// prevents a cancelled entry from publishing.
func (c *Client) CancelJob(jobID string) error {
	err := c.inspector.DeleteTask("default", jobID)
	if err == nil ||
		errors.Is(err, asynq.ErrTaskNotFound) ||
		errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
