package models

import "time"

// ReviewStatus enumerates AI review states for a submission.
const (
	ReviewStatusNone      = "none"
	ReviewStatusPending   = "pending"
	ReviewStatusCompleted = "completed"
	ReviewStatusFailed    = "failed"
)

// Submission is a candidate's final answer for a question. The intake
// endpoint accepts at most one submission per (question, candidate) pair;
// later attempts are acknowledged without overwriting the first.
type Submission struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	QuestionID     uint      `gorm:"not null;uniqueIndex:idx_submission_question_candidate" json:"question_id"`
	CandidateID    string    `gorm:"size:128;not null;uniqueIndex:idx_submission_question_candidate" json:"candidate_id"`
	Language       string    `gorm:"size:32;not null" json:"language"`
	Code           string    `gorm:"type:text" json:"code"`
	ViolationCount int       `gorm:"default:0" json:"violation_count"`
	ReviewStatus   string    `gorm:"size:32;not null;default:none" json:"review_status"`
	Review         string    `gorm:"type:text" json:"review"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasReview reports whether an AI review has been produced for the submission.
func (s Submission) HasReview() bool {
	return s.ReviewStatus == ReviewStatusCompleted && s.Review != ""
}
