// Package queue moves execution jobs between the API and the sandbox runners
// over a Redis list. The API enqueues a job carrying a unique reply key and
// blocks on it; a runner pops the job, executes it and pushes the verdict
// back on the reply key.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/models"
)

// ErrReplyTimeout indicates no runner produced a verdict within the window.
var ErrReplyTimeout = errors.New("timed out waiting for a runner verdict")

// replyTTL bounds how long an unclaimed verdict lives in Redis.
const replyTTL = time.Minute

// Job is one execution request as serialized onto the queue. Only visible
// test cases are included for candidate-triggered runs; final scoring jobs
// may carry the full set.
type Job struct {
	ID            string            `json:"id"`
	QuestionID    uint              `json:"questionId"`
	Code          string            `json:"code"`
	Language      string            `json:"language"`
	TestCases     []models.TestCase `json:"testCases"`
	TimeoutMs     int64             `json:"timeoutMs"`
	MemoryLimitMB int               `json:"memoryLimitMb"`
	CPUShares     int               `json:"cpuShares"`
	ReplyTo       string            `json:"replyTo"`
}

// RunQueue dispatches execution jobs and collects their verdicts.
type RunQueue struct {
	client *redis.Client
	name   string
	logger zerolog.Logger
}

// New constructs a RunQueue on the given Redis list name.
func New(client *redis.Client, name string, logger zerolog.Logger) *RunQueue {
	return &RunQueue{
		client: client,
		name:   name,
		logger: logger.With().Str("component", "run_queue").Logger(),
	}
}

// Dispatch enqueues the job and blocks until a runner replies or the wait
// window elapses.
func (q *RunQueue) Dispatch(ctx context.Context, job Job, wait time.Duration) (dto.ExecutionResult, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.ReplyTo = fmt.Sprintf("%s:reply:%s", q.name, job.ID)

	payload, err := json.Marshal(job)
	if err != nil {
		return dto.ExecutionResult{}, fmt.Errorf("encode job: %w", err)
	}

	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return dto.ExecutionResult{}, fmt.Errorf("enqueue job: %w", err)
	}

	q.logger.Debug().Str("job_id", job.ID).Uint("question_id", job.QuestionID).Msg("job dispatched")

	reply, err := q.client.BRPop(ctx, wait, job.ReplyTo).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return dto.ExecutionResult{}, ErrReplyTimeout
		}
		return dto.ExecutionResult{}, fmt.Errorf("await verdict: %w", err)
	}

	// BRPop returns [key, value].
	var result dto.ExecutionResult
	if err := json.Unmarshal([]byte(reply[1]), &result); err != nil {
		return dto.ExecutionResult{}, fmt.Errorf("decode verdict: %w", err)
	}
	return result, nil
}

// Handler executes one job and produces its verdict.
type Handler func(ctx context.Context, job Job) dto.ExecutionResult

// Consume pops and handles jobs until the context is cancelled. Each verdict
// is pushed to the job's reply key with a TTL so abandoned replies age out.
func (q *RunQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		reply, err := q.client.BRPop(ctx, time.Second, q.name).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pop job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(reply[1]), &job); err != nil {
			q.logger.Error().Err(err).Msg("discarding malformed job")
			continue
		}

		result := handler(ctx, job)

		payload, err := json.Marshal(result)
		if err != nil {
			q.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to encode verdict")
			continue
		}

		pipe := q.client.TxPipeline()
		pipe.LPush(ctx, job.ReplyTo, payload)
		pipe.Expire(ctx, job.ReplyTo, replyTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			q.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to publish verdict")
		}
	}
}
