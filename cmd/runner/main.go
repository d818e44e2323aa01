package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/config"
	"github.com/hirecraft/assess-go/internal/database"
	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/queue"
	"github.com/hirecraft/assess-go/pkg/judge"
	"github.com/hirecraft/assess-go/pkg/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "runner").Logger()

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	executor, err := sandbox.NewDockerExecutor(sandbox.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create sandbox executor: %v", err)
	}

	runQueue := queue.New(redisClient, cfg.RunQueue, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("queue", cfg.RunQueue).Msg("runner started")

	err = runQueue.Consume(ctx, func(jobCtx context.Context, job queue.Job) dto.ExecutionResult {
		timeout := time.Duration(job.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = cfg.ExecutionTimeout
		}

		j := judge.New(judge.Config{
			Executor:      executor,
			Timeout:       timeout,
			MemoryLimitMB: job.MemoryLimitMB,
			CPUShares:     job.CPUShares,
			Logger:        logger,
		})

		logger.Info().
			Str("job_id", job.ID).
			Uint("question_id", job.QuestionID).
			Str("language", job.Language).
			Int("cases", len(job.TestCases)).
			Msg("job received")

		return j.Evaluate(jobCtx, job.Code, job.Language, job.TestCases)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runner stopped: %v", err)
	}

	logger.Info().Msg("runner stopped")
}
