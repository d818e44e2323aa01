package dto

// Verdict classifies the outcome of running candidate code.
type Verdict string

// Verdict values reported by the execution service.
const (
	VerdictOK                Verdict = "OK"
	VerdictWrongAnswer       Verdict = "WRONG_ANSWER"
	VerdictRuntimeError      Verdict = "RUNTIME_ERROR"
	VerdictTimeLimitExceeded Verdict = "TIME_LIMIT_EXCEEDED"
	VerdictError             Verdict = "ERROR"
)

// ExecuteRequest asks the backend to run code against the visible test cases.
type ExecuteRequest struct {
	Code     string `json:"code" validate:"required"`
	Language string `json:"language" validate:"required"`
}

// TestResult is the outcome of running one visible test case, in the
// question's declared test-case order.
type TestResult struct {
	Passed          bool   `json:"passed"`
	Input           string `json:"input"`
	Expected        string `json:"expected"`
	Actual          string `json:"actual"`
	ExecutionTimeMs int64  `json:"executionTime"`
}

// ExecutionResult aggregates the per-test breakdown into an overall verdict.
// The breakdown is preserved regardless of the verdict.
type ExecutionResult struct {
	Verdict         Verdict      `json:"verdict"`
	ExecutionTimeMs int64        `json:"executionTime,omitempty"`
	MemoryUsedMB    float64      `json:"memoryUsed,omitempty"`
	TestResults     []TestResult `json:"testResults"`
}

// Passed reports whether every test in the result passed.
func (r ExecutionResult) Passed() bool {
	if len(r.TestResults) == 0 {
		return false
	}
	for _, tr := range r.TestResults {
		if !tr.Passed {
			return false
		}
	}
	return true
}
