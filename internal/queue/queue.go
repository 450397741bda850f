// Package queue hands generation jobs from the bot and scheduler to the
// worker loop, through Redis when REDIS_URL is set and in memory otherwise.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"shorts-gen/internal/logging"
)

// QueueTopics is the list generation jobs are pushed to.
const QueueTopics = "q_topics"

// ErrFull is returned by the in-memory queue when its buffer is full.
var ErrFull = errors.New("queue is full")

// Job asks for one video about Topic. ChatID is where progress is reported;
// zero means nobody is waiting for it.
type Job struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	ChatID     int64     `json:"chat_id,omitempty"`
	Source     string    `json:"source"` // "bot", "schedule", "cli"
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewJob(topic string, chatID int64, source string) Job {
	return Job{ID: uuid.NewString(), Topic: topic, ChatID: chatID, Source: source, EnqueuedAt: time.Now()}
}

// Handler processes one job. Errors are logged; the job is not retried.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Listen blocks, handing jobs to h one at a time until ctx is done.
	Listen(ctx context.Context, h Handler) error
	Len(ctx context.Context) (int64, error)
}

// Open returns a Redis queue when redisURL is set and an in-memory one otherwise.
func Open(redisURL string, log *logging.Logger) (Queue, error) {
	if redisURL == "" {
		log.Infof("queue: REDIS_URL not set, using in-memory queue")
		return NewMemory(64, log), nil
	}
	return NewRedis(redisURL, log)
}

type Redis struct {
	rdb  *redis.Client
	name string
	log  *logging.Logger
	// PollTimeout bounds each BRPOP so cancellation is noticed.
	PollTimeout time.Duration
}

// NewRedis accepts a redis:// URL or a bare host:port.
func NewRedis(redisURL string, log *logging.Logger) (*Redis, error) {
	opts := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	}
	log.Infof("queue: redis client initialized (%s)", opts.Addr)
	return &Redis{rdb: redis.NewClient(opts), name: QueueTopics, log: log, PollTimeout: 5 * time.Second}, nil
}

func (q *Redis) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.name, payload).Err()
}

func (q *Redis) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

func (q *Redis) Listen(ctx context.Context, h Handler) error {
	q.log.Infof("queue: listening on %s", q.name)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := q.rdb.BRPop(ctx, q.PollTimeout, q.name).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.log.Errorf("queue: error popping from %s: %v", q.name, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		// result[0] is the list name, result[1] the payload
		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			q.log.Errorf("queue: dropping malformed job: %v", err)
			continue
		}
		runJob(ctx, q.log, h, job)
	}
}

func (q *Redis) Close() error {
	return q.rdb.Close()
}

// Memory is a process-local queue backed by a buffered channel.
type Memory struct {
	ch  chan Job
	log *logging.Logger
}

func NewMemory(size int, log *logging.Logger) *Memory {
	return &Memory{ch: make(chan Job, size), log: log}
}

func (q *Memory) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFull
	}
}

func (q *Memory) Len(ctx context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

func (q *Memory) Listen(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-q.ch:
			runJob(ctx, q.log, h, job)
		}
	}
}

func runJob(ctx context.Context, log *logging.Logger, h Handler, job Job) {
	started := time.Now()
	log.Infof("queue: job %s started (topic %q, from %s)", job.ID, job.Topic, job.Source)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("queue: job %s panicked: %v", job.ID, r)
		}
	}()
	if err := h(ctx, job); err != nil {
		log.Errorf("queue: job %s failed after %s: %v", job.ID, time.Since(started).Round(time.Second), err)
		return
	}
	log.Infof("queue: job %s done in %s", job.ID, time.Since(started).Round(time.Second))
}
