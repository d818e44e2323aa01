package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hirecraft/assess-go/internal/dto"
)

type stubReporter struct {
	mu       sync.Mutex
	reported []Violation
	closed   bool
}

func (r *stubReporter) Report(v Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, v)
	return nil
}

func (r *stubReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *stubReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reported)
}

func testQuestion() dto.QuestionResponse {
	return dto.QuestionResponse{
		ID:        7,
		Title:     "Two Sum",
		TimeLimit: 1,
		Languages: []string{"python", "java"},
		StarterCode: map[string]string{
			"python": "def solve():\n    pass\n",
			"java":   "class Solution {}\n",
		},
	}
}

type controllerFixture struct {
	clock      *fakeClock
	backend    *stubBackend
	source     *stubSignalSource
	reporter   *stubReporter
	controller *Controller
}

func newControllerFixture(t *testing.T, backend *stubBackend) *controllerFixture {
	t.Helper()

	clock := newFakeClock()
	source := &stubSignalSource{}
	reporter := &stubReporter{}

	controller := NewController(ControllerConfig{
		Backend:  backend,
		Source:   source,
		Reporter: reporter,
		Logger:   zerolog.Nop(),
		Now:      clock.Now,
		// Keep timers inert so tests drive ticks and flushes directly.
		AutosaveInterval: time.Hour,
		TickInterval:     time.Hour,
	})
	t.Cleanup(controller.Close)

	return &controllerFixture{
		clock:      clock,
		backend:    backend,
		source:     source,
		reporter:   reporter,
		controller: controller,
	}
}

func TestControllerStartInitializesFromStarterCode(t *testing.T) {
	f := newControllerFixture(t, &stubBackend{question: testQuestion()})

	require.NoError(t, f.controller.Start(context.Background(), 7))

	snap := f.controller.Snapshot()
	require.Equal(t, StatusActive, snap.Status)
	require.Equal(t, uint(7), snap.QuestionID)
	require.Equal(t, "python", snap.Language)
	require.Equal(t, "def solve():\n    pass\n", snap.Code)
	require.Equal(t, 60, snap.TimeRemaining)
	require.Equal(t, NotSubmitted, snap.Submission)

	// Initialization happens exactly once; a second Start never re-fetches
	// and never resets the candidate's code.
	f.controller.OnCodeChanged("print(42)")
	require.ErrorIs(t, f.controller.Start(context.Background(), 7), ErrSessionStarted)
	require.Equal(t, "print(42)", f.controller.Snapshot().Code)
}

func TestControllerStartFetchFailureIsFatal(t *testing.T) {
	f := newControllerFixture(t, &stubBackend{fetchErr: errors.New("503 service unavailable")})

	err := f.controller.Start(context.Background(), 7)
	require.Error(t, err)

	snap := f.controller.Snapshot()
	require.Equal(t, StatusUnavailable, snap.Status)

	// No timer started and no operations are accepted.
	require.ErrorIs(t, f.controller.Run(), ErrSessionClosed)
	require.ErrorIs(t, f.controller.Submit(), ErrSessionClosed)
}

func TestControllerDropsEditsWhileFetchInFlight(t *testing.T) {
	release := make(chan struct{})
	backend := &stubBackend{question: testQuestion(), fetchRelease: release}
	f := newControllerFixture(t, backend)

	started := make(chan error, 1)
	go func() { started <- f.controller.Start(context.Background(), 7) }()

	require.Eventually(t, func() bool {
		return f.controller.Snapshot().Status == StatusStarting
	}, time.Second, time.Millisecond)

	// Edits and language switches arriving before the question resolves are
	// dropped; nothing exists yet to receive them.
	f.controller.OnCodeChanged("print('hi')")
	f.controller.SetLanguage("java")

	close(release)
	require.NoError(t, <-started)

	snap := f.controller.Snapshot()
	require.Equal(t, StatusActive, snap.Status)
	require.Equal(t, "python", snap.Language)
	require.Equal(t, "def solve():\n    pass\n", snap.Code)

	// Once active, edits flow normally.
	f.controller.OnCodeChanged("print('now')")
	require.Equal(t, "print('now')", f.controller.Snapshot().Code)
}

func TestControllerAutosaveFailureSurfacesInSnapshot(t *testing.T) {
	backend := &stubBackend{question: testQuestion(), draftErr: errors.New("store unavailable")}
	f := newControllerFixture(t, backend)
	require.NoError(t, f.controller.Start(context.Background(), 7))

	f.controller.OnCodeChanged("print(1)")
	f.controller.autosave.Flush()

	require.Eventually(t, func() bool {
		return f.controller.Snapshot().Autosave.LastError != nil
	}, time.Second, time.Millisecond)
	require.Empty(t, f.controller.Snapshot().Autosave.LastSavedCode)

	// The next successful save clears the condition.
	f.backend.mu.Lock()
	f.backend.draftErr = nil
	f.backend.mu.Unlock()
	f.controller.OnCodeChanged("print(2)")
	f.controller.autosave.Flush()

	require.Eventually(t, func() bool {
		state := f.controller.Snapshot().Autosave
		return state.LastError == nil && state.LastSavedCode == "print(2)"
	}, time.Second, time.Millisecond)
}

func TestControllerExpirySubmitsWithEmptyCode(t *testing.T) {
	question := testQuestion()
	question.StarterCode = nil
	f := newControllerFixture(t, &stubBackend{question: question})
	require.NoError(t, f.controller.Start(context.Background(), 7))
	require.Empty(t, f.controller.Snapshot().Code)

	f.clock.Advance(61 * time.Second)
	f.controller.clock.evaluate()

	// Expiry still issues exactly one submission, carrying no code.
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().Submission == Submitted
	}, time.Second, time.Millisecond)
	require.Equal(t, 1, f.backend.submitCount())
	require.Empty(t, f.backend.submitted().Code)
}

func TestControllerExpiryAutoSubmits(t *testing.T) {
	f := newControllerFixture(t, &stubBackend{question: testQuestion()})
	require.NoError(t, f.controller.Start(context.Background(), 7))

	f.controller.OnCodeChanged("print('almost done')")
	f.source.emit(Signal{Kind: SignalVisibilityHidden})
	f.source.emit(Signal{Kind: SignalWindowBlur})

	f.clock.Advance(61 * time.Second)
	f.controller.clock.evaluate()

	require.Eventually(t, func() bool {
		return f.controller.Snapshot().Submission == Submitted
	}, time.Second, time.Millisecond)

	snap := f.controller.Snapshot()
	require.Equal(t, StatusExpired, snap.Status)
	require.Zero(t, snap.TimeRemaining)
	require.False(t, snap.FatalSubmitFailure)

	require.Equal(t, 1, f.backend.submitCount())
	submitted := f.backend.submitted()
	require.Equal(t, "print('almost done')", submitted.Code)
	require.Equal(t, 2, submitted.ViolationCount)
}

func TestControllerManualSubmitWinsRaceWithExpiry(t *testing.T) {
	release := make(chan struct{})
	backend := &stubBackend{question: testQuestion(), submitRelease: release}
	f := newControllerFixture(t, backend)
	require.NoError(t, f.controller.Start(context.Background(), 7))

	f.controller.OnCodeChanged("print('manual')")
	require.NoError(t, f.controller.Submit())

	// Expiry fires while the manual submission is still on the wire; it must
	// lose the race at the gate, not queue a second network call.
	f.clock.Advance(61 * time.Second)
	f.controller.clock.evaluate()

	close(release)
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().Submission == Submitted
	}, time.Second, time.Millisecond)

	require.Equal(t, 1, backend.submitCount())
	require.Equal(t, "print('manual')", backend.submitted().Code)
	require.Equal(t, StatusExpired, f.controller.Snapshot().Status)
}

func TestControllerExpirySubmitFailureIsFatal(t *testing.T) {
	backend := &stubBackend{question: testQuestion(), submitErr: errors.New("gateway timeout")}
	f := newControllerFixture(t, backend)
	require.NoError(t, f.controller.Start(context.Background(), 7))

	f.controller.OnCodeChanged("print('too late')")
	f.clock.Advance(61 * time.Second)
	f.controller.clock.evaluate()

	require.Eventually(t, func() bool {
		return f.controller.Snapshot().FatalSubmitFailure
	}, time.Second, time.Millisecond)
	require.Equal(t, SubmitFailed, f.controller.Snapshot().Submission)
}

func TestControllerLanguageSwap(t *testing.T) {
	f := newControllerFixture(t, &stubBackend{question: testQuestion()})
	require.NoError(t, f.controller.Start(context.Background(), 7))

	// Undiverged from the starter: swapping languages swaps the starter too.
	f.controller.SetLanguage("java")
	require.Equal(t, "class Solution {}\n", f.controller.Snapshot().Code)

	// Once the candidate has typed, their edits survive a language switch.
	f.controller.OnCodeChanged("class Solution { int x; }\n")
	f.controller.SetLanguage("python")
	snap := f.controller.Snapshot()
	require.Equal(t, "python", snap.Language)
	require.Equal(t, "class Solution { int x; }\n", snap.Code)
}

func TestControllerViolationLogAppendsInOrder(t *testing.T) {
	f := newControllerFixture(t, &stubBackend{question: testQuestion()})
	require.NoError(t, f.controller.Start(context.Background(), 7))

	f.source.emit(Signal{Kind: SignalVisibilityHidden})
	f.source.emit(Signal{Kind: SignalVisibilityHidden})
	f.source.emit(Signal{Kind: SignalContextMenu})
	f.source.emit(Signal{Kind: SignalKeyDown, Key: "F12"})

	snap := f.controller.Snapshot()
	require.Len(t, snap.Violations, 4)
	require.Equal(t, []ViolationKind{
		ViolationTabSwitch,
		ViolationTabSwitch,
		ViolationContextMenu,
		ViolationDevtools,
	}, []ViolationKind{
		snap.Violations[0].Kind,
		snap.Violations[1].Kind,
		snap.Violations[2].Kind,
		snap.Violations[3].Kind,
	})

	// Each one was also streamed to the live reporter.
	require.Equal(t, 4, f.reporter.count())

	// Snapshots are copies; appending through the monitor never mutates them.
	f.source.emit(Signal{Kind: SignalWindowBlur})
	require.Len(t, snap.Violations, 4)
	require.Len(t, f.controller.Snapshot().Violations, 5)
}

func TestControllerCodeChangesFeedAutosave(t *testing.T) {
	f := newControllerFixture(t, &stubBackend{question: testQuestion()})
	require.NoError(t, f.controller.Start(context.Background(), 7))

	f.controller.OnCodeChanged("print(1)")
	f.controller.autosave.Flush()

	require.Eventually(t, func() bool {
		f.backend.mu.Lock()
		defer f.backend.mu.Unlock()
		return len(f.backend.draftCalls) == 1
	}, time.Second, time.Millisecond)

	f.backend.mu.Lock()
	saved := f.backend.draftCalls[0]
	f.backend.mu.Unlock()
	require.Equal(t, "print(1)", saved.Code)
	require.Equal(t, "python", saved.Language)
}

func TestControllerRunRecordsLastResult(t *testing.T) {
	backend := &stubBackend{
		question: testQuestion(),
		executeResult: dto.ExecutionResult{
			Verdict:     dto.VerdictWrongAnswer,
			TestResults: []dto.TestResult{{Passed: false}},
		},
	}
	f := newControllerFixture(t, backend)
	require.NoError(t, f.controller.Start(context.Background(), 7))

	require.NoError(t, f.controller.Run())
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().LastRun != nil
	}, time.Second, time.Millisecond)
	require.Equal(t, dto.VerdictWrongAnswer, f.controller.Snapshot().LastRun.Verdict)
}

func TestControllerCloseTearsDown(t *testing.T) {
	f := newControllerFixture(t, &stubBackend{question: testQuestion()})
	require.NoError(t, f.controller.Start(context.Background(), 7))

	f.controller.Close()

	require.Equal(t, StatusClosed, f.controller.Snapshot().Status)
	require.False(t, f.controller.monitor.Active())
	require.Equal(t, ClockStopped, f.controller.clock.State())
	require.True(t, f.reporter.closed)

	// Signals after teardown are ignored and nothing else is accepted.
	f.source.emit(Signal{Kind: SignalVisibilityHidden})
	require.Empty(t, f.controller.Snapshot().Violations)
	require.ErrorIs(t, f.controller.Run(), ErrSessionClosed)
	require.ErrorIs(t, f.controller.Submit(), ErrSessionClosed)

	// Idempotent.
	f.controller.Close()
}
