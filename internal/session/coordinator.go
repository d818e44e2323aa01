package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/dto"
)

// Backend is the remote assessment service as seen by the session runtime.
type Backend interface {
	FetchQuestion(ctx context.Context, questionID uint) (dto.QuestionResponse, error)
	SaveDraft(ctx context.Context, questionID uint, req dto.AutosaveRequest) error
	Execute(ctx context.Context, questionID uint, req dto.ExecuteRequest) (dto.ExecutionResult, error)
	Submit(ctx context.Context, questionID uint, req dto.SubmitRequest) error
}

// SubmissionState tracks the at-most-once submission gate.
type SubmissionState int

// Submission states. Submitted is terminal: once reached, no further submit
// calls are issued regardless of trigger source.
const (
	NotSubmitted SubmissionState = iota
	Submitting
	Submitted
	SubmitFailed
)

func (s SubmissionState) String() string {
	switch s {
	case NotSubmitted:
		return "not_submitted"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	case SubmitFailed:
		return "submit_failed"
	default:
		return "unknown"
	}
}

// SubmitTrigger identifies what initiated a submission attempt.
type SubmitTrigger int

// Submission triggers.
const (
	TriggerManual SubmitTrigger = iota
	TriggerExpiry
)

func (t SubmitTrigger) String() string {
	if t == TriggerExpiry {
		return "expiry"
	}
	return "manual"
}

// Coordinator errors surfaced to callers as no-op rejections.
var (
	ErrRunInFlight        = errors.New("a run is already in progress")
	ErrSubmitInFlight     = errors.New("a submission is already in progress")
	ErrAlreadySubmitted   = errors.New("the session has already been submitted")
	ErrSubmitWindowClosed = errors.New("the submission window has closed")
	ErrEmptyCode          = errors.New("code must not be empty")
	ErrSessionClosed      = errors.New("the session has been closed")
)

// ExecutionCoordinator owns the single-flight run gate and the at-most-once
// submission gate. Every submission trigger, whether a manual click or clock
// expiry, must pass through Submit; the gate is never duplicated at call
// sites. Results are delivered through callbacks; callbacks racing a Close
// are discarded rather than applied to a torn-down session.
type ExecutionCoordinator struct {
	mu         sync.Mutex
	backend    Backend
	questionID uint
	timeout    time.Duration
	logger     zerolog.Logger

	running    bool
	submission SubmissionState
	closed     bool

	onRunResult    func(dto.ExecutionResult, error)
	onSubmitResult func(trigger SubmitTrigger, err error)
}

// CoordinatorConfig groups ExecutionCoordinator construction options.
type CoordinatorConfig struct {
	Backend    Backend
	QuestionID uint
	// Timeout bounds each remote call so a request that never resolves is
	// treated as a failure instead of leaving the gate stuck in flight.
	// Defaults to 30 seconds.
	Timeout time.Duration
	Logger  zerolog.Logger
	// OnRunResult receives the outcome of each run. On transport failure the
	// result carries the ERROR verdict and the error is non-nil.
	OnRunResult func(dto.ExecutionResult, error)
	// OnSubmitResult receives the outcome of each submission attempt.
	OnSubmitResult func(trigger SubmitTrigger, err error)
}

const defaultCoordinatorTimeout = 30 * time.Second

// NewExecutionCoordinator constructs a coordinator with both gates open.
func NewExecutionCoordinator(cfg CoordinatorConfig) *ExecutionCoordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCoordinatorTimeout
	}

	return &ExecutionCoordinator{
		backend:        cfg.Backend,
		questionID:     cfg.QuestionID,
		timeout:        cfg.Timeout,
		logger:         cfg.Logger.With().Str("component", "execution_coordinator").Logger(),
		submission:     NotSubmitted,
		onRunResult:    cfg.OnRunResult,
		onSubmitResult: cfg.OnSubmitResult,
	}
}

// Run starts a single-flight execution of the given code against the visible
// test cases. While a run is outstanding, further calls are rejected with
// ErrRunInFlight rather than queued.
func (c *ExecutionCoordinator) Run(code, language string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if strings.TrimSpace(code) == "" {
		c.mu.Unlock()
		return ErrEmptyCode
	}
	if c.running {
		c.mu.Unlock()
		return ErrRunInFlight
	}
	c.running = true
	c.mu.Unlock()

	go c.execute(code, language)
	return nil
}

func (c *ExecutionCoordinator) execute(code, language string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result, err := c.backend.Execute(ctx, c.questionID, dto.ExecuteRequest{
		Code:     code,
		Language: language,
	})
	if err != nil {
		// Transport failures degrade to a result with an error verdict;
		// the candidate may retry once the gate reopens.
		result = dto.ExecutionResult{Verdict: dto.VerdictError}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.running = false
	callback := c.onRunResult
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("run failed")
	}
	if callback != nil {
		callback(result, err)
	}
}

// Submit attempts the final, at-most-once submission. The first caller to
// move the gate from NotSubmitted to Submitting wins; racing callers observe
// Submitting or Submitted and are rejected as no-ops. A manual retry after a
// failure re-enters the gate; an expiry-triggered retry does not, because the
// exam window has closed. Empty code blocks a manual submit but not an
// expiry-triggered one, so expiry always records exactly one submission.
func (c *ExecutionCoordinator) Submit(code, language string, violationCount int, trigger SubmitTrigger) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	// An expiry-triggered submission always goes out with whatever code the
	// candidate has, even none; only manual clicks reject empty code.
	if trigger == TriggerManual && strings.TrimSpace(code) == "" {
		c.mu.Unlock()
		return ErrEmptyCode
	}

	switch c.submission {
	case Submitted:
		c.mu.Unlock()
		return ErrAlreadySubmitted
	case Submitting:
		c.mu.Unlock()
		return ErrSubmitInFlight
	case SubmitFailed:
		if trigger == TriggerExpiry {
			c.mu.Unlock()
			return ErrSubmitWindowClosed
		}
	}

	c.submission = Submitting
	c.mu.Unlock()

	c.logger.Info().Str("trigger", trigger.String()).Int("violations", violationCount).Msg("submitting")

	go c.submit(code, language, violationCount, trigger)
	return nil
}

func (c *ExecutionCoordinator) submit(code, language string, violationCount int, trigger SubmitTrigger) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.backend.Submit(ctx, c.questionID, dto.SubmitRequest{
		Code:           code,
		Language:       language,
		ViolationCount: violationCount,
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.submission = SubmitFailed
	} else {
		c.submission = Submitted
	}
	callback := c.onSubmitResult
	c.mu.Unlock()

	if err != nil {
		c.logger.Error().Err(err).Str("trigger", trigger.String()).Msg("submission failed")
	} else {
		c.logger.Info().Str("trigger", trigger.String()).Msg("submission accepted")
	}
	if callback != nil {
		callback(trigger, err)
	}
}

// Running reports whether a run is outstanding.
func (c *ExecutionCoordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SubmissionState returns the current gate state.
func (c *ExecutionCoordinator) SubmissionState() SubmissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submission
}

// Close discards the results of any in-flight operations; after Close no
// callback fires and no further operation is accepted.
func (c *ExecutionCoordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
