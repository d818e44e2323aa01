package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/dto"
)

// Status enumerates the lifecycle states of a session.
type Status int

// Session lifecycle states.
const (
	StatusIdle Status = iota
	StatusStarting
	StatusActive
	StatusExpired
	StatusClosed
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	case StatusClosed:
		return "closed"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ErrSessionStarted indicates Start was called twice; initialization happens
// exactly once per session, so a re-fetch never resets candidate code.
var ErrSessionStarted = errors.New("session has already been started")

// Session is the authoritative, observable state of one candidate's attempt
// at one question. Snapshots are value copies; mutating one has no effect on
// the controller.
type Session struct {
	QuestionID    uint
	Question      dto.QuestionResponse
	Language      string
	Code          string
	TimeRemaining int
	Status        Status
	Violations    []Violation
	Submission    SubmissionState
	LastRun       *dto.ExecutionResult
	Autosave      AutosaveState
	// FatalSubmitFailure is set when the expiry-triggered submission fails:
	// the exam window has closed and no retry window exists.
	FatalSubmitFailure bool
}

// ViolationReporter streams recorded violations to the backend in real time.
// Reporting is best effort; failures never affect the local violation log.
type ViolationReporter interface {
	Report(v Violation) error
	Close() error
}

// ControllerConfig groups Controller construction options.
type ControllerConfig struct {
	Backend Backend
	// Source delivers raw environment signals for proctoring. May be nil in
	// embeddings without an environment to monitor.
	Source SignalSource
	// Reporter, when set, receives every violation for live streaming.
	Reporter ViolationReporter
	Logger   zerolog.Logger
	Now      func() time.Time
	// AutosaveInterval overrides the 30 second default.
	AutosaveInterval time.Duration
	// RequestTimeout bounds run and submit calls.
	RequestTimeout time.Duration
	// TickInterval overrides the clock's one second default.
	TickInterval time.Duration
	// OnChange observes every state transition with a fresh snapshot.
	OnChange func(Session)
}

// Controller composes the clock, the violation monitor, the autosave
// pipeline and the execution coordinator into one authoritative session
// state machine. All mutations of session state happen under a single lock,
// so interleaving timer and network callbacks never observe partial updates.
type Controller struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	backend  Backend
	reporter ViolationReporter
	onChange func(Session)
	now      func() time.Time

	clock       *SessionClock
	monitor     *ViolationMonitor
	autosave    *AutosavePipeline
	coordinator *ExecutionCoordinator

	questionID uint
	question   dto.QuestionResponse
	language   string
	code       string
	remaining  int
	status     Status
	violations []Violation
	lastRun    *dto.ExecutionResult
	fatal      bool

	autosaveInterval time.Duration
	requestTimeout   time.Duration
	tickInterval     time.Duration
	source           SignalSource
}

// NewController constructs an idle controller; Start begins the session.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{
		logger:           cfg.Logger.With().Str("component", "session_controller").Logger(),
		backend:          cfg.Backend,
		reporter:         cfg.Reporter,
		onChange:         cfg.OnChange,
		now:              cfg.Now,
		status:           StatusIdle,
		autosaveInterval: cfg.AutosaveInterval,
		requestTimeout:   cfg.RequestTimeout,
		tickInterval:     cfg.TickInterval,
		source:           cfg.Source,
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Start fetches the question, initialises code from its starter code and
// begins the countdown and proctoring. A fetch failure is fatal to session
// start: no timer starts and the session becomes unavailable. Start may be
// called at most once per controller.
func (c *Controller) Start(ctx context.Context, questionID uint) error {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return ErrSessionStarted
	}
	// Edits and language switches arriving before the fetch resolves are
	// dropped by the status guards; the pipelines do not exist yet.
	c.status = StatusStarting
	c.mu.Unlock()

	question, err := c.backend.FetchQuestion(ctx, questionID)
	if err != nil {
		c.mu.Lock()
		if c.status == StatusStarting {
			c.status = StatusUnavailable
		}
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("fetch question %d: %w", questionID, err)
	}

	language := "python"
	if len(question.Languages) > 0 {
		language = question.Languages[0]
	}

	c.mu.Lock()
	if c.status != StatusStarting {
		// Closed while the fetch was in flight.
		c.mu.Unlock()
		return ErrSessionClosed
	}
	c.questionID = questionID
	c.question = question
	c.language = language
	c.code = question.StarterCodeFor(language)
	c.remaining = question.TimeLimit * 60

	c.clock = NewSessionClock(ClockConfig{
		Now:          c.now,
		TickInterval: c.tickInterval,
		Logger:       c.logger,
	})
	c.monitor = NewViolationMonitor(MonitorConfig{
		Source: c.source,
		Sink:   c.recordViolation,
		Now:    c.now,
		Logger: c.logger,
	})
	c.autosave = NewAutosavePipeline(AutosaveConfig{
		Saver:    draftSaverFunc(c.saveDraft),
		Interval: c.autosaveInterval,
		Timeout:  c.requestTimeout,
		Now:      c.now,
		Logger:   c.logger,
		OnError:  c.handleAutosaveError,
	})
	c.coordinator = NewExecutionCoordinator(CoordinatorConfig{
		Backend:        c.backend,
		QuestionID:     questionID,
		Timeout:        c.requestTimeout,
		Logger:         c.logger,
		OnRunResult:    c.handleRunResult,
		OnSubmitResult: c.handleSubmitResult,
	})

	c.status = StatusActive
	clock := c.clock
	monitor := c.monitor
	duration := time.Duration(question.TimeLimit) * time.Minute
	c.mu.Unlock()

	monitor.Activate()
	if err := clock.Start(duration, c.handleTick, c.handleExpiry); err != nil {
		return err
	}

	c.logger.Info().Uint("question_id", questionID).Str("language", language).Msg("session started")
	c.notify()
	return nil
}

// OnCodeChanged records an edit and feeds it into the autosave pipeline.
func (c *Controller) OnCodeChanged(code string) {
	c.mu.Lock()
	if c.status != StatusActive && c.status != StatusExpired {
		c.mu.Unlock()
		return
	}
	c.code = code
	language := c.language
	autosave := c.autosave
	c.mu.Unlock()

	autosave.OnCodeChanged(code, language)
	c.notify()
}

// SetLanguage switches the editing language. If the candidate has not
// diverged from the previous language's starter code, the code field is
// replaced with the new language's starter code; edits are never discarded.
func (c *Controller) SetLanguage(language string) {
	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		return
	}

	undiverged := c.code == c.question.StarterCodeFor(c.language)
	c.language = language
	if undiverged {
		if starter, ok := c.question.StarterCode[language]; ok {
			c.code = starter
		}
	}
	code := c.code
	autosave := c.autosave
	c.mu.Unlock()

	autosave.OnCodeChanged(code, language)
	c.notify()
}

// Run requests a single-flight execution of the current code.
func (c *Controller) Run() error {
	c.mu.Lock()
	coordinator := c.coordinator
	code := c.code
	language := c.language
	status := c.status
	c.mu.Unlock()

	if coordinator == nil || status == StatusClosed || status == StatusUnavailable {
		return ErrSessionClosed
	}
	return coordinator.Run(code, language)
}

// Submit routes a manual submission through the at-most-once gate.
func (c *Controller) Submit() error {
	return c.submit(TriggerManual)
}

func (c *Controller) submit(trigger SubmitTrigger) error {
	c.mu.Lock()
	coordinator := c.coordinator
	code := c.code
	language := c.language
	count := len(c.violations)
	status := c.status
	c.mu.Unlock()

	if coordinator == nil || status == StatusClosed || status == StatusUnavailable {
		return ErrSessionClosed
	}

	err := coordinator.Submit(code, language, count, trigger)
	if err == nil {
		c.notify()
	}
	return err
}

// Close tears the session down: the clock stops, proctoring listeners are
// removed and results of in-flight network operations are discarded. Close
// is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.status = StatusClosed
	clock := c.clock
	monitor := c.monitor
	autosave := c.autosave
	coordinator := c.coordinator
	reporter := c.reporter
	c.mu.Unlock()

	if clock != nil {
		clock.Stop()
	}
	if monitor != nil {
		monitor.Deactivate()
	}
	if autosave != nil {
		autosave.Stop()
	}
	if coordinator != nil {
		coordinator.Close()
	}
	if reporter != nil {
		if err := reporter.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("failed to close violation reporter")
		}
	}

	c.logger.Info().Msg("session closed")
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Session {
	violations := make([]Violation, len(c.violations))
	copy(violations, c.violations)

	var lastRun *dto.ExecutionResult
	if c.lastRun != nil {
		result := *c.lastRun
		lastRun = &result
	}

	submission := NotSubmitted
	if c.coordinator != nil {
		submission = c.coordinator.SubmissionState()
	}
	autosave := AutosaveState{}
	if c.autosave != nil {
		autosave = c.autosave.State()
	}

	return Session{
		QuestionID:         c.questionID,
		Question:           c.question,
		Language:           c.language,
		Code:               c.code,
		TimeRemaining:      c.remaining,
		Status:             c.status,
		Violations:         violations,
		Submission:         submission,
		LastRun:            lastRun,
		Autosave:           autosave,
		FatalSubmitFailure: c.fatal,
	}
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.mu.Lock()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.onChange(snapshot)
}

// recordViolation appends to the session's append-only violation log in
// arrival order and forwards the record to the live reporter, best effort.
func (c *Controller) recordViolation(v Violation) {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.violations = append(c.violations, v)
	reporter := c.reporter
	count := len(c.violations)
	c.mu.Unlock()

	c.logger.Warn().Str("kind", string(v.Kind)).Int("total", count).Msg("violation recorded")
	if reporter != nil {
		if err := reporter.Report(v); err != nil {
			c.logger.Debug().Err(err).Msg("live violation report failed")
		}
	}
	c.notify()
}

func (c *Controller) handleTick(remaining int) {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.remaining = remaining
	c.mu.Unlock()
	c.notify()
}

// handleExpiry is just another caller of the submission gate: the first
// trigger to reach it wins and every later one is a no-op.
func (c *Controller) handleExpiry() {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.status = StatusExpired
	c.remaining = 0
	c.mu.Unlock()

	c.logger.Info().Msg("time expired; auto-submitting")
	if err := c.submit(TriggerExpiry); err != nil {
		switch {
		case errors.Is(err, ErrSubmitInFlight), errors.Is(err, ErrAlreadySubmitted):
			// A manual submission already won the race.
		default:
			c.logger.Error().Err(err).Msg("auto-submit rejected")
		}
	}
	c.notify()
}

func (c *Controller) handleRunResult(result dto.ExecutionResult, err error) {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.lastRun = &result
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("run completed with transport error")
	}
	c.notify()
}

func (c *Controller) handleSubmitResult(trigger SubmitTrigger, err error) {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	if err != nil && trigger == TriggerExpiry {
		// The exam window has closed; there is no retry window left.
		c.fatal = true
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error().Err(err).Str("trigger", trigger.String()).Msg("submission failed")
	}
	c.notify()
}

// handleAutosaveError surfaces a failed save to the session observer. The
// failure is non-fatal: unsaved code stays local and the pipeline retries on
// the next interval.
func (c *Controller) handleAutosaveError(err error) {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Warn().Err(err).Msg("autosave failed; unsaved code kept locally")
	c.notify()
}

func (c *Controller) saveDraft(ctx context.Context, code, language string) error {
	c.mu.Lock()
	questionID := c.questionID
	c.mu.Unlock()

	return c.backend.SaveDraft(ctx, questionID, dto.AutosaveRequest{
		Code:     code,
		Language: language,
	})
}

// draftSaverFunc adapts a function to the DraftSaver interface.
type draftSaverFunc func(ctx context.Context, code, language string) error

func (f draftSaverFunc) SaveDraft(ctx context.Context, code, language string) error {
	return f(ctx, code, language)
}
