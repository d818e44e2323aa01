package session

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ViolationKind classifies a recorded integrity violation.
type ViolationKind string

// Violation kinds produced by the monitor.
const (
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationWindowBlur     ViolationKind = "window_blur"
	ViolationContextMenu    ViolationKind = "context_menu"
	ViolationDevtools       ViolationKind = "devtools_shortcut"
	ViolationLargeClipboard ViolationKind = "large_clipboard_copy"
)

// Violation is one discrete occurrence of a monitored integrity signal.
// Violations are immutable and appended to the session log in arrival order.
type Violation struct {
	Kind       ViolationKind `json:"kind"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// SignalKind identifies the raw environment signal delivered by the
// presentation layer.
type SignalKind string

// Raw environment signals the monitor can classify.
const (
	SignalVisibilityHidden SignalKind = "visibility_hidden"
	SignalWindowBlur       SignalKind = "window_blur"
	SignalContextMenu      SignalKind = "context_menu"
	SignalKeyDown          SignalKind = "key_down"
)

// Signal is a raw environment event. Key, modifier and selection fields are
// meaningful for key_down signals only.
type Signal struct {
	Kind         SignalKind
	Key          string
	Ctrl         bool
	Shift        bool
	SelectionLen int
}

// SignalSource delivers raw environment signals to a registered handler. The
// handler's return value tells the source to cancel the signal's default
// action (suppress the context menu, swallow the key chord). The returned
// function removes the registration; every registration made on activation
// must have a matching deregistration on deactivation.
type SignalSource interface {
	Subscribe(handler func(Signal) bool) (unsubscribe func())
}

// SelectionGuard is an optional SignalSource capability: sources that control
// text-selection affordances disable them while proctoring is active and
// restore the prior state via the returned function.
type SelectionGuard interface {
	BlockSelection() (restore func())
}

// Selections longer than this trigger a clipboard violation.
const clipboardSelectionThreshold = 10

// ViolationMonitor classifies environment signals into violations and reports
// each qualifying occurrence to its sink. It performs no deduplication: five
// visibility changes in one second yield five violations. The monitor is
// purely observational; it never gates submission or execution.
type ViolationMonitor struct {
	mu               sync.Mutex
	source           SignalSource
	sink             func(Violation)
	now              func() time.Time
	logger           zerolog.Logger
	active           bool
	unsubscribe      func()
	restoreSelection func()
}

// MonitorConfig groups ViolationMonitor construction options.
type MonitorConfig struct {
	Source SignalSource
	// Sink receives every recorded violation in arrival order.
	Sink   func(Violation)
	Now    func() time.Time
	Logger zerolog.Logger
}

// NewViolationMonitor constructs an inactive monitor.
func NewViolationMonitor(cfg MonitorConfig) *ViolationMonitor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &ViolationMonitor{
		source: cfg.Source,
		sink:   cfg.Sink,
		now:    cfg.Now,
		logger: cfg.Logger.With().Str("component", "violation_monitor").Logger(),
	}
}

// Activate registers the monitor with its signal source and applies side
// effects such as blocking text selection. Activating an active monitor is a
// no-op.
func (m *ViolationMonitor) Activate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active || m.source == nil {
		return
	}

	m.active = true
	m.unsubscribe = m.source.Subscribe(m.handle)
	if guard, ok := m.source.(SelectionGuard); ok {
		m.restoreSelection = guard.BlockSelection()
	}

	m.logger.Info().Msg("proctoring activated")
}

// Deactivate removes every registration made on activation and restores the
// prior environment state. Deactivating an inactive monitor is a no-op.
func (m *ViolationMonitor) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}

	m.active = false
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if m.restoreSelection != nil {
		m.restoreSelection()
		m.restoreSelection = nil
	}

	m.logger.Info().Msg("proctoring deactivated")
}

// Active reports whether the monitor is currently registered.
func (m *ViolationMonitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// handle classifies a raw signal and reports whether its default action
// should be cancelled.
func (m *ViolationMonitor) handle(sig Signal) bool {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return false
	}
	sink := m.sink
	occurredAt := m.now().UTC()
	m.mu.Unlock()

	kind, recorded, suppress := classify(sig)
	if !recorded {
		return suppress
	}

	m.logger.Debug().Str("kind", string(kind)).Msg("violation recorded")
	if sink != nil {
		sink(Violation{Kind: kind, OccurredAt: occurredAt})
	}
	return suppress
}

func classify(sig Signal) (kind ViolationKind, recorded bool, suppress bool) {
	switch sig.Kind {
	case SignalVisibilityHidden:
		return ViolationTabSwitch, true, false
	case SignalWindowBlur:
		return ViolationWindowBlur, true, false
	case SignalContextMenu:
		return ViolationContextMenu, true, true
	case SignalKeyDown:
		if isDevtoolsChord(sig) {
			return ViolationDevtools, true, true
		}
		if isLargeClipboardCopy(sig) {
			return ViolationLargeClipboard, true, false
		}
	}
	return "", false, false
}

// isDevtoolsChord matches the keyboard shortcuts that open developer tools:
// Ctrl+Shift+I/J/C, F12 and Ctrl+U (view source).
func isDevtoolsChord(sig Signal) bool {
	if sig.Key == "F12" {
		return true
	}
	upper := strings.ToUpper(sig.Key)
	if sig.Ctrl && sig.Shift && (upper == "I" || upper == "J" || upper == "C") {
		return true
	}
	return sig.Ctrl && !sig.Shift && upper == "U"
}

func isLargeClipboardCopy(sig Signal) bool {
	if !sig.Ctrl || sig.Shift {
		return false
	}
	lower := strings.ToLower(sig.Key)
	if lower != "c" && lower != "v" {
		return false
	}
	return sig.SelectionLen > clipboardSelectionThreshold
}
