package models

import "time"

// CodeDraft stores the latest autosaved code for a candidate on a question.
// There is at most one draft per (question, candidate) pair; autosaves
// overwrite it in place.
type CodeDraft struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	QuestionID  uint      `gorm:"not null;uniqueIndex:idx_draft_question_candidate" json:"question_id"`
	CandidateID string    `gorm:"size:128;not null;uniqueIndex:idx_draft_question_candidate" json:"candidate_id"`
	Language    string    `gorm:"size:32;not null" json:"language"`
	Code        string    `gorm:"type:text" json:"code"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
