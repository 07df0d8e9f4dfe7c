package notice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
)

// Sender is where the worker puts dequeued notices.
type Sender interface {
	Send(ctx context.Context, uid, title, body, linkPath string) error
}

// Worker consumes notice:deliver tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sink   Sender
	logger *log.Logger
}

// NewWorker builds an asynq server on queue that hands every notice to
// sink.
func NewWorker(redisURL, queue string, concurrency int, sink Sender, logger *log.Logger) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	logger = logger.With("component", "notice-worker")

	w := &Worker{sink: sink, logger: logger, mux: asynq.NewServeMux()}
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      asynqLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn("notice task failed", "type", task.Type(), "err", err)
		}),
	})
	w.mux.HandleFunc(TypeDeliver, w.HandleDeliver)
	return w, nil
}

// HandleDeliver processes one notice:deliver task. A payload that cannot
// be decoded is dropped without retry.
func (w *Worker) HandleDeliver(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("notice: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.UserUID == "" {
		return fmt.Errorf("notice: payload without user: %w", asynq.SkipRetry)
	}
	return w.sink.Send(ctx, p.UserUID, p.Title, p.Body, p.LinkPath)
}

// Run starts the server and blocks until ctx is canceled, then shuts
// down gracefully.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

// asynqLogger adapts a charmbracelet logger to asynq.Logger.
type asynqLogger struct {
	l *log.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal(fmt.Sprint(args...)) }
