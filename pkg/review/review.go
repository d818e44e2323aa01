// Package review produces automated code reviews of final submissions using
// an LLM. Reviews are advisory for hiring staff and never affect verdicts.
package review

import "context"

// Input contains the artefacts needed to review a submission.
type Input struct {
	QuestionTitle  string
	Description    string
	Language       string
	Code           string
	Verdict        string
	ViolationCount int
}

// Result is the structured review returned by a reviewer.
type Result struct {
	Score    float64                `json:"score"`
	Summary  string                 `json:"summary"`
	Feedback string                 `json:"feedback"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Reviewer describes a model capable of reviewing code submissions.
type Reviewer interface {
	Review(ctx context.Context, input Input) (Result, error)
}
