package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Difficulty levels assignable to a question.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// TestCase is a single input/expected-output pair attached to a question.
// Hidden test cases are evaluated during final scoring only and are never
// included in run results sent to candidates.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
	Weight         int    `json:"weight"`
}

// Question represents one coding problem in the assessment catalog.
type Question struct {
	ID               uint                                  `gorm:"primaryKey" json:"id"`
	Title            string                                `gorm:"size:255;not null" json:"title"`
	Description      string                                `gorm:"type:text;not null" json:"description"`
	Difficulty       string                                `gorm:"size:32;not null" json:"difficulty"`
	TimeLimitMinutes int                                   `gorm:"not null" json:"time_limit_minutes"`
	Languages        datatypes.JSONSlice[string]           `json:"languages"`
	TestCases        datatypes.JSONSlice[TestCase]         `json:"test_cases"`
	StarterCode      datatypes.JSONType[map[string]string] `json:"starter_code"`
	CreatedAt        time.Time                             `json:"created_at"`
	UpdatedAt        time.Time                             `json:"updated_at"`
}

// VisibleTestCases returns the test cases candidates may see during a run.
func (q Question) VisibleTestCases() []TestCase {
	visible := make([]TestCase, 0, len(q.TestCases))
	for _, tc := range q.TestCases {
		if !tc.IsHidden {
			visible = append(visible, tc)
		}
	}
	return visible
}

// StarterCodeFor returns the starter code for a language, if declared.
func (q Question) StarterCodeFor(language string) (string, bool) {
	starters := q.StarterCode.Data()
	if starters == nil {
		return "", false
	}
	code, ok := starters[strings.ToLower(language)]
	return code, ok
}

// SupportsLanguage reports whether the question declares the given language.
func (q Question) SupportsLanguage(language string) bool {
	for _, lang := range q.Languages {
		if strings.EqualFold(lang, language) {
			return true
		}
	}
	return false
}
