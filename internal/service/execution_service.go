package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hirecraft/assess-go/internal/config"
	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/queue"
	"github.com/hirecraft/assess-go/internal/repository"
)

// ErrExecutionTimeout indicates no runner verdict arrived in the wait window.
var ErrExecutionTimeout = errors.New("execution timed out waiting for a verdict")

// ExecutionService runs candidate code against a question's visible tests.
type ExecutionService interface {
	Execute(ctx context.Context, questionID uint, req dto.ExecuteRequest) (dto.ExecutionResult, error)
}

// Dispatcher is the queue surface the execution service depends on, kept as
// an interface so handler tests can stub the runner side.
type Dispatcher interface {
	Dispatch(ctx context.Context, job queue.Job, wait time.Duration) (dto.ExecutionResult, error)
}

type executionService struct {
	questions repository.QuestionRepository
	queue     Dispatcher
	cfg       *config.Config
	validate  *validator.Validate
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewExecutionService builds an execution service.
func NewExecutionService(questions repository.QuestionRepository, dispatcher Dispatcher, cfg *config.Config, logger zerolog.Logger) ExecutionService {
	return &executionService{
		questions: questions,
		queue:     dispatcher,
		cfg:       cfg,
		validate:  validator.New(),
		tracer:    otel.Tracer("github.com/hirecraft/assess-go/internal/service"),
		logger:    logger.With().Str("component", "execution_service").Logger(),
	}
}

// Execute dispatches the code to a sandbox runner with the question's visible
// test cases and waits for the verdict. Hidden cases are reserved for final
// scoring and never run here.
func (s *executionService) Execute(ctx context.Context, questionID uint, req dto.ExecuteRequest) (dto.ExecutionResult, error) {
	ctx, span := s.tracer.Start(ctx, "execution.run", trace.WithAttributes(
		attribute.Int("question.id", int(questionID)),
		attribute.String("language", req.Language),
	))
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return dto.ExecutionResult{}, err
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExecutionResult{}, ErrQuestionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "question lookup failed")
		return dto.ExecutionResult{}, err
	}
	if !question.SupportsLanguage(req.Language) {
		return dto.ExecutionResult{}, ErrUnsupportedLanguage
	}

	result, err := s.queue.Dispatch(ctx, queue.Job{
		QuestionID:    questionID,
		Code:          req.Code,
		Language:      req.Language,
		TestCases:     question.VisibleTestCases(),
		TimeoutMs:     s.cfg.ExecutionTimeout.Milliseconds(),
		MemoryLimitMB: s.cfg.CodeRunMemoryMB,
		CPUShares:     s.cfg.CodeRunCPUShares,
	}, s.cfg.RunReplyTimeout)
	if err != nil {
		if errors.Is(err, queue.ErrReplyTimeout) {
			s.logger.Warn().Uint("question_id", questionID).Msg("no runner verdict before deadline")
			return dto.ExecutionResult{}, ErrExecutionTimeout
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return dto.ExecutionResult{}, err
	}

	span.SetAttributes(attribute.String("verdict", string(result.Verdict)))
	return result, nil
}
