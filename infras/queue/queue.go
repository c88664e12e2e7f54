// Package queue schedules delayed background tasks on redis through asynq.
package queue

//go:generate go run go.uber.org/mock/mockgen -source=./queue.go -destination=./mocks/queue_mock.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"roomkey/config"
	"roomkey/infras/redis"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const (
	TypeCredentialResync = "credential:resync"

	queueDefault = "default"
)

var ErrDisabled = errors.New("task queue is disabled")

type Client interface {
	Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error
	Close() error
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     redis.Addr(cfg),
		Password: cfg.Cache.Redis.Primary.Password,
		DB:       cfg.Queue.RedisDB,
	}
}

type asynqClient struct {
	client *asynq.Client
}

func NewClient(cfg *config.Config) Client {
	if !cfg.Queue.Enable {
		log.Warn().Msg("Task queue disabled, delayed credential retries fall back to the daily resync")

		return disabledClient{}
	}

	return &asynqClient{client: asynq.NewClient(redisOpt(cfg))}
}

// Enqueue ignores duplicates when the caller pins a TaskID.
func (c *asynqClient) Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode task payload: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, body), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		log.Debug().Str("type", taskType).Msg("Task already queued")

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", taskType, err)
	}

	log.Info().Str("type", taskType).Str("task_id", info.ID).Time("process_at", info.NextProcessAt).Msg("Task enqueued")

	return nil
}

func (c *asynqClient) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close queue client: %w", err)
	}

	return nil
}

type disabledClient struct{}

func (disabledClient) Enqueue(context.Context, string, any, ...asynq.Option) error {
	return ErrDisabled
}

func (disabledClient) Close() error {
	return nil
}

// Decode reads a JSON task payload.
func Decode[T any](task *asynq.Task) (T, error) {
	var payload T

	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("%w: decoding %s payload: %w", asynq.SkipRetry, task.Type(), err)
	}

	return payload, nil
}

// Worker processes queued tasks until Shutdown.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(cfg *config.Config) *Worker {
	if !cfg.Queue.Enable {
		return &Worker{}
	}

	concurrency := cfg.Queue.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueDefault: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("type", task.Type()).Msg("Task failed")
		}),
	})

	return &Worker{server: server, mux: asynq.NewServeMux()}
}

func (w *Worker) Enabled() bool {
	return w.server != nil
}

func (w *Worker) HandleFunc(taskType string, handler func(ctx context.Context, task *asynq.Task) error) {
	if !w.Enabled() {
		return
	}

	w.mux.HandleFunc(taskType, handler)
}

func (w *Worker) Start() error {
	if !w.Enabled() {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start queue worker: %w", err)
	}

	log.Info().Msg("Queue worker started")

	return nil
}

func (w *Worker) Shutdown() {
	if !w.Enabled() {
		return
	}

	w.server.Shutdown()
	log.Info().Msg("Queue worker stopped")
}
