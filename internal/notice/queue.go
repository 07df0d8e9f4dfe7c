package notice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
)

// TypeDeliver is the asynq task type of a queued notice.
const TypeDeliver = "notice:deliver"

const (
	maxRetry    = 5
	taskTimeout = time.Minute
)

// Payload is the JSON body of a notice:deliver task.
type Payload struct {
	UserUID  string `json:"userUid"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	LinkPath string `json:"linkPath"`
}

// NewDeliverTask builds the task for p.
func NewDeliverTask(p Payload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notice: marshal payload: %w", err)
	}
	return asynq.NewTask(TypeDeliver, data), nil
}

// Queue hands notices to asynq so that delivery survives restarts and
// is retried.
type Queue struct {
	client *asynq.Client
	queue  string
	logger *log.Logger
}

// NewQueue connects an asynq client to the redis at redisURL.
func NewQueue(redisURL, queue string, logger *log.Logger) (*Queue, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	return &Queue{
		client: asynq.NewClient(opt),
		queue:  queue,
		logger: logger.With("component", "notice-queue"),
	}, nil
}

// Send enqueues a notice for the worker to store.
func (q *Queue) Send(ctx context.Context, uid, title, body, linkPath string) error {
	task, err := NewDeliverTask(Payload{UserUID: uid, Title: title, Body: body, LinkPath: linkPath})
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.queue),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(taskTimeout),
	)
	if err != nil {
		return fmt.Errorf("notice: enqueue: %w", err)
	}
	q.logger.Debug("notice enqueued", "uid", uid, "task", info.ID)
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
