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

type stubBackend struct {
	mu sync.Mutex

	question     dto.QuestionResponse
	fetchErr     error
	fetchRelease chan struct{} // when non-nil, FetchQuestion blocks until closed

	draftCalls []dto.AutosaveRequest
	draftErr   error

	executeCalls   int
	executeRelease chan struct{}
	executeResult  dto.ExecutionResult
	executeErr     error

	submitCalls   int
	submitRelease chan struct{}
	submitErr     error
	lastSubmit    dto.SubmitRequest
}

func (b *stubBackend) FetchQuestion(context.Context, uint) (dto.QuestionResponse, error) {
	b.mu.Lock()
	release := b.fetchRelease
	question := b.question
	err := b.fetchErr
	b.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	return question, nil
}

func (b *stubBackend) SaveDraft(_ context.Context, _ uint, req dto.AutosaveRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.draftCalls = append(b.draftCalls, req)
	return b.draftErr
}

func (b *stubBackend) Execute(_ context.Context, _ uint, _ dto.ExecuteRequest) (dto.ExecutionResult, error) {
	b.mu.Lock()
	b.executeCalls++
	release := b.executeRelease
	result := b.executeResult
	err := b.executeErr
	b.mu.Unlock()

	if release != nil {
		<-release
	}
	return result, err
}

func (b *stubBackend) Submit(_ context.Context, _ uint, req dto.SubmitRequest) error {
	b.mu.Lock()
	b.submitCalls++
	b.lastSubmit = req
	release := b.submitRelease
	err := b.submitErr
	b.mu.Unlock()

	if release != nil {
		<-release
	}
	return err
}

func (b *stubBackend) executeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executeCalls
}

func (b *stubBackend) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitCalls
}

func (b *stubBackend) submitted() dto.SubmitRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSubmit
}

type coordinatorRecorder struct {
	mu      sync.Mutex
	runs    []dto.ExecutionResult
	submits []error
}

func (r *coordinatorRecorder) onRun(result dto.ExecutionResult, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, result)
}

func (r *coordinatorRecorder) onSubmit(_ SubmitTrigger, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submits = append(r.submits, err)
}

func (r *coordinatorRecorder) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *coordinatorRecorder) submitResults() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.submits...)
}

func newTestCoordinator(backend *stubBackend, rec *coordinatorRecorder) *ExecutionCoordinator {
	return NewExecutionCoordinator(CoordinatorConfig{
		Backend:        backend,
		QuestionID:     7,
		Logger:         zerolog.Nop(),
		OnRunResult:    rec.onRun,
		OnSubmitResult: rec.onSubmit,
	})
}

func TestRunIsSingleFlight(t *testing.T) {
	release := make(chan struct{})
	backend := &stubBackend{executeRelease: release}
	rec := &coordinatorRecorder{}
	coordinator := newTestCoordinator(backend, rec)

	require.NoError(t, coordinator.Run("print(1)", "python"))
	require.Eventually(t, func() bool { return backend.executeCount() == 1 }, time.Second, time.Millisecond)

	// A second click while the first run is outstanding is a no-op.
	require.ErrorIs(t, coordinator.Run("print(1)", "python"), ErrRunInFlight)
	require.Equal(t, 1, backend.executeCount())

	close(release)
	require.Eventually(t, func() bool { return rec.runCount() == 1 }, time.Second, time.Millisecond)

	// The gate reopens once the run completes.
	require.NoError(t, coordinator.Run("print(2)", "python"))
	require.Eventually(t, func() bool { return backend.executeCount() == 2 }, time.Second, time.Millisecond)
}

func TestRunRejectsEmptyCode(t *testing.T) {
	backend := &stubBackend{}
	coordinator := newTestCoordinator(backend, &coordinatorRecorder{})

	require.ErrorIs(t, coordinator.Run("   \n", "python"), ErrEmptyCode)
	require.Zero(t, backend.executeCount())
}

func TestRunFailureDegradesToErrorVerdict(t *testing.T) {
	backend := &stubBackend{executeErr: errors.New("connection reset")}
	rec := &coordinatorRecorder{}
	coordinator := newTestCoordinator(backend, rec)

	require.NoError(t, coordinator.Run("print(1)", "python"))
	require.Eventually(t, func() bool { return rec.runCount() == 1 }, time.Second, time.Millisecond)

	rec.mu.Lock()
	verdict := rec.runs[0].Verdict
	rec.mu.Unlock()
	require.Equal(t, dto.VerdictError, verdict)
	require.False(t, coordinator.Running())
}

func TestSubmitIsAtMostOnce(t *testing.T) {
	release := make(chan struct{})
	backend := &stubBackend{submitRelease: release}
	rec := &coordinatorRecorder{}
	coordinator := newTestCoordinator(backend, rec)

	// Race many triggers against the gate; exactly one wins.
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		trigger := TriggerManual
		if i%2 == 1 {
			trigger = TriggerExpiry
		}
		wg.Add(1)
		go func(trigger SubmitTrigger) {
			defer wg.Done()
			if err := coordinator.Submit("solution", "python", 3, trigger); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(trigger)
	}
	wg.Wait()
	require.Equal(t, 1, accepted)

	close(release)
	require.Eventually(t, func() bool {
		return coordinator.SubmissionState() == Submitted
	}, time.Second, time.Millisecond)

	require.Equal(t, 1, backend.submitCount())
	require.Equal(t, 3, backend.submitted().ViolationCount)

	// Submitted is terminal for every trigger source.
	require.ErrorIs(t, coordinator.Submit("solution", "python", 9, TriggerManual), ErrAlreadySubmitted)
	require.ErrorIs(t, coordinator.Submit("solution", "python", 9, TriggerExpiry), ErrAlreadySubmitted)
	require.Equal(t, 1, backend.submitCount())
}

func TestSubmitEmptyCodeByTrigger(t *testing.T) {
	backend := &stubBackend{}
	rec := &coordinatorRecorder{}
	coordinator := newTestCoordinator(backend, rec)

	// A manual click with nothing typed is rejected locally.
	require.ErrorIs(t, coordinator.Submit("   \n", "python", 0, TriggerManual), ErrEmptyCode)
	require.Zero(t, backend.submitCount())

	// Clock expiry submits the then-current code, even none.
	require.NoError(t, coordinator.Submit("", "python", 3, TriggerExpiry))
	require.Eventually(t, func() bool { return len(rec.submitResults()) == 1 }, time.Second, time.Millisecond)

	require.Equal(t, 1, backend.submitCount())
	submitted := backend.submitted()
	require.Empty(t, submitted.Code)
	require.Equal(t, 3, submitted.ViolationCount)
	require.Equal(t, Submitted, coordinator.SubmissionState())
}

func TestSubmitManualRetryAfterFailure(t *testing.T) {
	backend := &stubBackend{submitErr: errors.New("gateway timeout")}
	rec := &coordinatorRecorder{}
	coordinator := newTestCoordinator(backend, rec)

	require.NoError(t, coordinator.Submit("solution", "python", 0, TriggerManual))
	require.Eventually(t, func() bool {
		return coordinator.SubmissionState() == SubmitFailed
	}, time.Second, time.Millisecond)
	require.Len(t, rec.submitResults(), 1)
	require.Error(t, rec.submitResults()[0])

	backend.mu.Lock()
	backend.submitErr = nil
	backend.mu.Unlock()

	require.NoError(t, coordinator.Submit("solution", "python", 0, TriggerManual))
	require.Eventually(t, func() bool {
		return coordinator.SubmissionState() == Submitted
	}, time.Second, time.Millisecond)
	require.Equal(t, 2, backend.submitCount())
}

func TestSubmitExpiryRetryIsRejectedAfterFailure(t *testing.T) {
	backend := &stubBackend{submitErr: errors.New("gateway timeout")}
	coordinator := newTestCoordinator(backend, &coordinatorRecorder{})

	require.NoError(t, coordinator.Submit("solution", "python", 0, TriggerExpiry))
	require.Eventually(t, func() bool {
		return coordinator.SubmissionState() == SubmitFailed
	}, time.Second, time.Millisecond)

	// The exam window has closed; an automatic retry is not attempted.
	require.ErrorIs(t, coordinator.Submit("solution", "python", 0, TriggerExpiry), ErrSubmitWindowClosed)
	require.Equal(t, 1, backend.submitCount())
}

func TestCoordinatorCloseDiscardsResults(t *testing.T) {
	release := make(chan struct{})
	backend := &stubBackend{executeRelease: release}
	rec := &coordinatorRecorder{}
	coordinator := newTestCoordinator(backend, rec)

	require.NoError(t, coordinator.Run("print(1)", "python"))
	require.Eventually(t, func() bool { return backend.executeCount() == 1 }, time.Second, time.Millisecond)

	coordinator.Close()
	close(release)

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, rec.runCount(), "results must not be applied after teardown")
	require.ErrorIs(t, coordinator.Run("print(1)", "python"), ErrSessionClosed)
	require.ErrorIs(t, coordinator.Submit("s", "python", 0, TriggerManual), ErrSessionClosed)
}
