package session

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubSignalSource struct {
	handler          func(Signal) bool
	subscriptions    int
	unsubscriptions  int
	selectionBlocked bool
}

func (s *stubSignalSource) Subscribe(handler func(Signal) bool) func() {
	s.handler = handler
	s.subscriptions++
	return func() {
		s.unsubscriptions++
		s.handler = nil
	}
}

func (s *stubSignalSource) BlockSelection() func() {
	s.selectionBlocked = true
	return func() { s.selectionBlocked = false }
}

func (s *stubSignalSource) emit(sig Signal) bool {
	if s.handler == nil {
		return false
	}
	return s.handler(sig)
}

func newTestMonitor(t *testing.T) (*ViolationMonitor, *stubSignalSource, *[]Violation) {
	t.Helper()
	source := &stubSignalSource{}
	violations := &[]Violation{}
	monitor := NewViolationMonitor(MonitorConfig{
		Source: source,
		Sink:   func(v Violation) { *violations = append(*violations, v) },
		Logger: zerolog.Nop(),
	})
	return monitor, source, violations
}

func TestMonitorRecordsEveryOccurrence(t *testing.T) {
	monitor, source, violations := newTestMonitor(t)
	monitor.Activate()

	// Five rapid visibility changes are five violations, not one.
	for i := 0; i < 5; i++ {
		source.emit(Signal{Kind: SignalVisibilityHidden})
	}

	require.Len(t, *violations, 5)
	for _, v := range *violations {
		require.Equal(t, ViolationTabSwitch, v.Kind)
	}
}

func TestMonitorClassification(t *testing.T) {
	cases := []struct {
		name     string
		signal   Signal
		kind     ViolationKind
		recorded bool
		suppress bool
	}{
		{"visibility hidden", Signal{Kind: SignalVisibilityHidden}, ViolationTabSwitch, true, false},
		{"window blur", Signal{Kind: SignalWindowBlur}, ViolationWindowBlur, true, false},
		{"context menu", Signal{Kind: SignalContextMenu}, ViolationContextMenu, true, true},
		{"f12", Signal{Kind: SignalKeyDown, Key: "F12"}, ViolationDevtools, true, true},
		{"ctrl shift i", Signal{Kind: SignalKeyDown, Key: "I", Ctrl: true, Shift: true}, ViolationDevtools, true, true},
		{"ctrl shift j", Signal{Kind: SignalKeyDown, Key: "J", Ctrl: true, Shift: true}, ViolationDevtools, true, true},
		{"ctrl shift c", Signal{Kind: SignalKeyDown, Key: "C", Ctrl: true, Shift: true}, ViolationDevtools, true, true},
		{"view source", Signal{Kind: SignalKeyDown, Key: "u", Ctrl: true}, ViolationDevtools, true, true},
		{"large copy", Signal{Kind: SignalKeyDown, Key: "c", Ctrl: true, SelectionLen: 42}, ViolationLargeClipboard, true, false},
		{"large paste", Signal{Kind: SignalKeyDown, Key: "v", Ctrl: true, SelectionLen: 11}, ViolationLargeClipboard, true, false},
		{"small copy", Signal{Kind: SignalKeyDown, Key: "c", Ctrl: true, SelectionLen: 10}, "", false, false},
		{"plain keypress", Signal{Kind: SignalKeyDown, Key: "a"}, "", false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			monitor, source, violations := newTestMonitor(t)
			monitor.Activate()

			suppress := source.emit(tc.signal)
			require.Equal(t, tc.suppress, suppress)
			if tc.recorded {
				require.Len(t, *violations, 1)
				require.Equal(t, tc.kind, (*violations)[0].Kind)
			} else {
				require.Empty(t, *violations)
			}
		})
	}
}

func TestMonitorScopedAcquisitionRelease(t *testing.T) {
	monitor, source, violations := newTestMonitor(t)

	monitor.Activate()
	require.True(t, monitor.Active())
	require.Equal(t, 1, source.subscriptions)
	require.True(t, source.selectionBlocked)

	// Activating twice must not double-register.
	monitor.Activate()
	require.Equal(t, 1, source.subscriptions)

	monitor.Deactivate()
	require.False(t, monitor.Active())
	require.Equal(t, 1, source.unsubscriptions)
	require.False(t, source.selectionBlocked, "selection affordances must be restored")

	// No registration remains, so no violations can arrive.
	source.emit(Signal{Kind: SignalVisibilityHidden})
	require.Empty(t, *violations)

	monitor.Deactivate()
	require.Equal(t, 1, source.unsubscriptions)
}

func TestMonitorViolationsCarryUTCTimestamps(t *testing.T) {
	fc := newFakeClock()
	source := &stubSignalSource{}
	var violations []Violation
	monitor := NewViolationMonitor(MonitorConfig{
		Source: source,
		Sink:   func(v Violation) { violations = append(violations, v) },
		Now:    fc.Now,
		Logger: zerolog.Nop(),
	})
	monitor.Activate()

	source.emit(Signal{Kind: SignalWindowBlur})
	require.Len(t, violations, 1)
	require.Equal(t, fc.Now().UTC(), violations[0].OccurredAt)
}
