package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/hibiken/asynq"

	"github.com/relaybase/relaybase/internal/config"
	"github.com/relaybase/relaybase/internal/log"
)

// resultRetention keeps completed task results queryable for a while
// after they finish, matching how the status endpoint is used by
// polling frontends.
const resultRetention = 24 * time.Hour

// RedisOpt builds the asynq Redis connection options from config.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Client enqueues tasks and reports their status. Safe for concurrent use.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    log.Logger
}

// NewClient creates a task queue client.
func NewClient(opt asynq.RedisClientOpt, logger log.Logger) *Client {
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		logger:    logger,
	}
}

// Close releases the underlying Redis connections.
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("closing task client: %w", err)
	}
	if err := c.inspector.Close(); err != nil {
		return fmt.Errorf("closing task inspector: %w", err)
	}
	return nil
}

// enqueue submits a task and returns its ID.
func (c *Client) enqueue(ctx context.Context, typename string, payload any, opts ...asynq.Option) (string, error) {
	task, err := newTask(typename, payload)
	if err != nil {
		return "", err
	}

	opts = append(opts,
		asynq.Queue(QueueDefault),
		asynq.Retention(resultRetention),
	)

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", typename, err)
	}

	c.logger.Debug("enqueued task", "id", info.ID, "type", typename)
	return info.ID, nil
}

// SubmitGeneric enqueues the demo long-running task.
func (c *Client) SubmitGeneric(ctx context.Context, p GenericPayload) (string, error) {
	if p.DurationSeconds <= 0 || p.DurationSeconds > 300 {
		p.DurationSeconds = 10
	}
	return c.enqueue(ctx, TypeGeneric, p,
		asynq.MaxRetry(0),
		asynq.Timeout(time.Duration(p.DurationSeconds+30)*time.Second),
	)
}

// SubmitDocument enqueues document fetch/extract/ingest work.
func (c *Client) SubmitDocument(ctx context.Context, p DocumentPayload) (string, error) {
	u, err := url.Parse(p.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: invalid document url %q", ErrInvalidPayload, p.URL)
	}
	return c.enqueue(ctx, TypeDocument, p,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	)
}

// SubmitChat enqueues a background completion.
func (c *Client) SubmitChat(ctx context.Context, p ChatPayload) (string, error) {
	if err := p.Request.Validate(); err != nil {
		return "", err
	}
	return c.enqueue(ctx, TypeChat, p,
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
	)
}

// Status reports the current state of a task.
func (c *Client) Status(_ context.Context, id string) (*Status, error) {
	info, err := c.inspector.GetTaskInfo(QueueDefault, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("task info: %w", err)
	}

	return &Status{
		ID:     info.ID,
		Type:   info.Type,
		State:  info.State.String(),
		Result: info.Result,
		Error:  info.LastErr,
	}, nil
}

// QueueHealth reports queue depth. An unreachable Redis surfaces as an
// error, which the health endpoint maps to an unhealthy report.
func (c *Client) QueueHealth(_ context.Context) (*Health, error) {
	qi, err := c.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			// No task has ever been enqueued; the queue is healthy and empty.
			return &Health{Queue: QueueDefault}, nil
		}
		return nil, fmt.Errorf("queue info: %w", err)
	}

	return &Health{
		Queue:     qi.Queue,
		Active:    qi.Active,
		Pending:   qi.Pending,
		Retry:     qi.Retry,
		Archived:  qi.Archived,
		Completed: qi.Completed,
	}, nil
}
