package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DraftSaver persists an in-progress code snapshot to the remote store.
type DraftSaver interface {
	SaveDraft(ctx context.Context, code, language string) error
}

// AutosaveState is a snapshot of the pipeline's bookkeeping, exposed for
// display ("Saving..." indicators) and tests.
type AutosaveState struct {
	LastSavedCode string
	LastSavedAt   time.Time
	InFlight      bool
	Pending       bool
	// LastError is the most recent save failure; cleared by the next
	// successful save.
	LastError error
}

// AutosavePipeline debounces code edits into periodic, single-flight saves.
// A save is scheduled a fixed interval after the most recent edit. If edits
// arrive while a save is in flight, exactly one follow-up save is issued once
// the in-flight save completes, carrying the latest code at that moment. A
// failed save is reported as a non-fatal condition and never blocks the next
// attempt.
type AutosavePipeline struct {
	mu       sync.Mutex
	saver    DraftSaver
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger
	onError  func(error)

	code     string
	language string
	dirty    bool
	inFlight bool
	pending  bool
	timer    *time.Timer
	stopped  bool

	lastSavedCode string
	lastSavedAt   time.Time
	lastErr       error
}

// AutosaveConfig groups AutosavePipeline construction options.
type AutosaveConfig struct {
	Saver DraftSaver
	// Interval is the debounce window counted from the last change.
	// Defaults to 30 seconds.
	Interval time.Duration
	// Timeout bounds each save request. Defaults to 10 seconds.
	Timeout time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
	// OnError receives save failures as non-fatal notifications.
	OnError func(error)
}

const (
	defaultAutosaveInterval = 30 * time.Second
	defaultRequestTimeout   = 10 * time.Second
)

// NewAutosavePipeline constructs an idle pipeline.
func NewAutosavePipeline(cfg AutosaveConfig) *AutosavePipeline {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultAutosaveInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &AutosavePipeline{
		saver:    cfg.Saver,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		logger:   cfg.Logger.With().Str("component", "autosave").Logger(),
		onError:  cfg.OnError,
	}
}

// OnCodeChanged records the latest code and (re)schedules a save one interval
// from now.
func (p *AutosavePipeline) OnCodeChanged(code, language string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	p.code = code
	p.language = language
	p.dirty = true

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.interval, p.Flush)
}

// Flush attempts to start a save of the latest unsaved code. If a save is
// already in flight it marks a pending follow-up instead of starting a second
// concurrent request.
func (p *AutosavePipeline) Flush() {
	p.mu.Lock()
	if p.stopped || !p.dirty {
		p.mu.Unlock()
		return
	}
	if p.inFlight {
		p.pending = true
		p.mu.Unlock()
		return
	}

	p.inFlight = true
	p.dirty = false
	code := p.code
	language := p.language
	p.mu.Unlock()

	go p.save(code, language)
}

func (p *AutosavePipeline) save(code, language string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := p.saver.SaveDraft(ctx, code, language)

	p.mu.Lock()
	if p.stopped {
		// The session was torn down while the request was in flight;
		// the result is discarded.
		p.mu.Unlock()
		return
	}
	p.inFlight = false
	followUp := p.pending
	p.pending = false
	p.lastErr = err
	if err == nil {
		p.lastSavedCode = code
		p.lastSavedAt = p.now()
	}
	onError := p.onError
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn().Err(err).Msg("autosave failed; will retry on next interval")
		if onError != nil {
			onError(err)
		}
	}
	if followUp {
		p.Flush()
	}
}

// Stop cancels any scheduled save and suppresses the result of an in-flight
// one. Unsent code is not discarded locally, but no further saves are issued.
func (p *AutosavePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// State returns a snapshot of the pipeline's bookkeeping.
func (p *AutosavePipeline) State() AutosaveState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return AutosaveState{
		LastSavedCode: p.lastSavedCode,
		LastSavedAt:   p.lastSavedAt,
		InFlight:      p.inFlight,
		Pending:       p.pending,
		LastError:     p.lastErr,
	}
}
