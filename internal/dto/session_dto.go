package dto

import "time"

// AutosaveRequest carries an in-progress code snapshot.
type AutosaveRequest struct {
	Code     string `json:"code" validate:"required"`
	Language string `json:"language" validate:"required"`
}

// AutosaveResponse acknowledges a stored draft. The content is not
// semantically used by the runtime.
type AutosaveResponse struct {
	SavedAt time.Time `json:"savedAt"`
}

// SubmitRequest is the final, scoring submission payload. The violation count
// is the runtime's snapshot at the moment the winning submit call was made.
// Code may be empty: an expiry-triggered submission records whatever the
// candidate had, including nothing.
type SubmitRequest struct {
	Code           string `json:"code"`
	Language       string `json:"language" validate:"required"`
	ViolationCount int    `json:"violationCount" validate:"gte=0"`
}

// SubmitResponse acknowledges a stored submission.
type SubmitResponse struct {
	SubmissionID uint      `json:"submissionId"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// ProctorEventMessage is one violation streamed over the proctoring feed.
type ProctorEventMessage struct {
	Kind       string    `json:"kind" validate:"required"`
	OccurredAt time.Time `json:"occurredAt" validate:"required"`
}
