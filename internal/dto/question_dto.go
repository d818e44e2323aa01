package dto

import (
	"time"

	"github.com/hirecraft/assess-go/internal/models"
)

// TestCaseResponse is a visible test case as served to candidates.
type TestCaseResponse struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
	Weight         int    `json:"weight"`
}

// QuestionResponse is the question payload returned by the API. Hidden test
// cases are stripped before the payload leaves the server.
type QuestionResponse struct {
	ID          uint               `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Difficulty  string             `json:"difficulty"`
	TimeLimit   int                `json:"timeLimit"`
	Languages   []string           `json:"languages"`
	TestCases   []TestCaseResponse `json:"testCases"`
	StarterCode map[string]string  `json:"starterCode"`
}

// NewQuestionResponse builds the candidate-facing payload from the model.
func NewQuestionResponse(q models.Question) QuestionResponse {
	visible := q.VisibleTestCases()
	testCases := make([]TestCaseResponse, 0, len(visible))
	for _, tc := range visible {
		testCases = append(testCases, TestCaseResponse{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			IsHidden:       tc.IsHidden,
			Weight:         tc.Weight,
		})
	}

	starter := q.StarterCode.Data()
	if starter == nil {
		starter = map[string]string{}
	}

	return QuestionResponse{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Difficulty:  q.Difficulty,
		TimeLimit:   q.TimeLimitMinutes,
		Languages:   append([]string(nil), q.Languages...),
		TestCases:   testCases,
		StarterCode: starter,
	}
}

// StarterCodeFor returns the starter code for a language, falling back to the
// empty string when none is declared.
func (q QuestionResponse) StarterCodeFor(language string) string {
	return q.StarterCode[language]
}

// QuestionFilter narrows and paginates catalog listings.
type QuestionFilter struct {
	Difficulty string
	Language   string
	Search     string
	Page       int
	PageSize   int
}

// QuestionSummary is one catalog row; it omits test cases and starter code.
type QuestionSummary struct {
	ID         uint     `json:"id"`
	Title      string   `json:"title"`
	Difficulty string   `json:"difficulty"`
	TimeLimit  int      `json:"timeLimit"`
	Languages  []string `json:"languages"`
}

// Pagination carries paging metadata on list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalItems int `json:"totalItems"`
}

// QuestionListResponse is the catalog listing payload.
type QuestionListResponse struct {
	Items      []QuestionSummary `json:"items"`
	Pagination Pagination        `json:"pagination"`
}

// NewQuestionSummary builds a catalog row from the model.
func NewQuestionSummary(q models.Question) QuestionSummary {
	return QuestionSummary{
		ID:         q.ID,
		Title:      q.Title,
		Difficulty: q.Difficulty,
		TimeLimit:  q.TimeLimitMinutes,
		Languages:  append([]string(nil), q.Languages...),
	}
}

// DraftResponse is a stored autosave snapshot as returned to staff tooling.
type DraftResponse struct {
	QuestionID  uint      `json:"questionId"`
	CandidateID string    `json:"candidateId"`
	Language    string    `json:"language"`
	Code        string    `json:"code"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
