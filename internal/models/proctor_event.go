package models

import "time"

// Violation kinds recorded by the proctoring pipeline. These mirror the
// signals the candidate runtime monitors; the server stores whatever kind the
// runtime reports without reinterpretation.
const (
	ViolationTabSwitch      = "tab_switch"
	ViolationWindowBlur     = "window_blur"
	ViolationContextMenu    = "context_menu"
	ViolationDevtools       = "devtools_shortcut"
	ViolationLargeClipboard = "large_clipboard_copy"
)

// ProctorEvent is one recorded integrity violation, streamed live from the
// candidate runtime. Events are append-only; they are never updated, removed
// or reordered once stored.
type ProctorEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	QuestionID  uint      `gorm:"not null;index" json:"question_id"`
	CandidateID string    `gorm:"size:128;not null;index" json:"candidate_id"`
	Kind        string    `gorm:"size:64;not null" json:"kind"`
	OccurredAt  time.Time `gorm:"not null" json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}
