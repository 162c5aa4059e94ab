package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"agent_workbench/platform/config"
	"agent_workbench/platform/metrics"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// duplicateWindow is how long an identical prospectus request is ignored.
const duplicateWindow = 10 * time.Minute

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type Client struct {
	client enqueuer
	queue  string
}

// Receipt describes an accepted prospectus request.
type Receipt struct {
	TaskID    string `json:"taskId,omitempty"`
	Queue     string `json:"queue"`
	Duplicate bool   `json:"duplicate"`
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// RequestProspectus queues one document request. The task is never retried:
// a failed generation is visible to the agent in the lead's prospectus list
// and is requested again by hand.
func (c *Client) RequestProspectus(ctx context.Context, payload ProspectusRequestPayload) (Receipt, error) {
	if c == nil || c.client == nil {
		return Receipt{}, errors.New("prospectus queue not configured")
	}

	task, err := NewProspectusRequestTask(payload)
	if err != nil {
		return Receipt{}, err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(0),
		asynq.Unique(duplicateWindow),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		metrics.ProspectusProcessed("duplicate")
		return Receipt{Queue: c.queue, Duplicate: true}, nil
	}
	if err != nil {
		return Receipt{}, err
	}
	metrics.ProspectusProcessed("queued")
	return Receipt{TaskID: info.ID, Queue: info.Queue}, nil
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return "default"
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		tlsConfig = opt.TLSConfig.Clone()
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
