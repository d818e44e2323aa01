// Package judge turns one execution job into a verdict: it runs candidate
// code against each test case in order inside the sandbox and classifies the
// aggregate outcome.
package judge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/models"
	"github.com/hirecraft/assess-go/pkg/sandbox"
)

// LanguageSpec describes how to materialise and run code for one language.
type LanguageSpec struct {
	Image    string
	FileName string
	Command  []string
}

// DefaultLanguages maps the supported language identifiers to their specs.
func DefaultLanguages() map[string]LanguageSpec {
	return map[string]LanguageSpec{
		"python": {
			Image:    "python:3.11-alpine",
			FileName: "main.py",
			Command:  []string{"python", "main.py"},
		},
		"javascript": {
			Image:    "node:20-alpine",
			FileName: "main.js",
			Command:  []string{"node", "main.js"},
		},
		"java": {
			Image:    "eclipse-temurin:21-alpine",
			FileName: "Main.java",
			Command:  []string{"sh", "-c", "javac Main.java && java Main"},
		},
		"go": {
			Image:    "golang:1.24-alpine",
			FileName: "main.go",
			Command:  []string{"sh", "-c", "go run main.go"},
		},
	}
}

// Config groups judge construction options.
type Config struct {
	Executor      sandbox.Executor
	Languages     map[string]LanguageSpec
	WorkspaceRoot string
	Timeout       time.Duration
	MemoryLimitMB int
	CPUShares     int
	Logger        zerolog.Logger
}

// Judge evaluates code against test cases and produces verdicts.
type Judge struct {
	executor      sandbox.Executor
	languages     map[string]LanguageSpec
	workspaceRoot string
	timeout       time.Duration
	memoryLimitMB int
	cpuShares     int
	logger        zerolog.Logger
}

// New constructs a Judge.
func New(cfg Config) *Judge {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.Languages == nil {
		cfg.Languages = DefaultLanguages()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Judge{
		executor:      cfg.Executor,
		languages:     cfg.Languages,
		workspaceRoot: cfg.WorkspaceRoot,
		timeout:       cfg.Timeout,
		memoryLimitMB: cfg.MemoryLimitMB,
		cpuShares:     cfg.CPUShares,
		logger:        cfg.Logger.With().Str("component", "judge").Logger(),
	}
}

// Evaluate runs the code against every test case in declared order and
// returns the aggregate verdict. Infrastructure failures never surface as
// candidate mistakes: they yield the ERROR verdict.
func (j *Judge) Evaluate(ctx context.Context, code, language string, cases []models.TestCase) dto.ExecutionResult {
	spec, ok := j.languages[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		j.logger.Warn().Str("language", language).Msg("no language spec")
		return dto.ExecutionResult{Verdict: dto.VerdictError}
	}

	workspace, err := os.MkdirTemp(j.workspaceRoot, "judge-")
	if err != nil {
		j.logger.Error().Err(err).Msg("failed to create workspace")
		return dto.ExecutionResult{Verdict: dto.VerdictError}
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, spec.FileName), []byte(code), 0600); err != nil {
		j.logger.Error().Err(err).Msg("failed to write source")
		return dto.ExecutionResult{Verdict: dto.VerdictError}
	}

	result := dto.ExecutionResult{Verdict: dto.VerdictOK}

	for _, tc := range cases {
		run, execErr := j.executor.Run(ctx, sandbox.ExecutionRequest{
			Image:         spec.Image,
			Cmd:           spec.Command,
			Stdin:         tc.Input,
			Timeout:       j.timeout,
			Workspace:     workspace,
			MemoryLimitMB: int64(j.memoryLimitMB),
			CPUShares:     int64(j.cpuShares),
		})

		test := dto.TestResult{
			Input:           tc.Input,
			Expected:        tc.ExpectedOutput,
			Actual:          strings.TrimSpace(run.Stdout),
			ExecutionTimeMs: run.Duration.Milliseconds(),
		}
		result.ExecutionTimeMs += run.Duration.Milliseconds()
		if mb := float64(run.MemoryUsageBytes) / (1024 * 1024); mb > result.MemoryUsedMB {
			result.MemoryUsedMB = mb
		}

		switch {
		case run.TimedOut:
			result.Verdict = dto.VerdictTimeLimitExceeded
			result.TestResults = append(result.TestResults, test)
			// Further cases would only burn the same wall clock again.
			return result

		case execErr != nil:
			j.logger.Error().Err(execErr).Str("image", spec.Image).Msg("sandbox failure")
			result.Verdict = dto.VerdictError
			result.TestResults = append(result.TestResults, test)
			return result

		case run.ExitCode != 0:
			test.Actual = firstLines(strings.TrimSpace(run.Stderr), 20)
			result.TestResults = append(result.TestResults, test)
			result.Verdict = dto.VerdictRuntimeError
			return result

		default:
			test.Passed = outputsMatch(tc.ExpectedOutput, run.Stdout)
			result.TestResults = append(result.TestResults, test)
			if !test.Passed && result.Verdict == dto.VerdictOK {
				result.Verdict = dto.VerdictWrongAnswer
			}
		}
	}

	return result
}

// outputsMatch compares expected and actual output ignoring trailing
// whitespace on each line and trailing blank lines.
func outputsMatch(expected, actual string) bool {
	return normalise(expected) == normalise(actual)
}

func normalise(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	joined := strings.Join(lines, "\n")
	return strings.TrimRight(joined, "\n")
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return fmt.Sprintf("%s\n... (%d more lines)", strings.Join(lines[:n], "\n"), len(lines)-n)
}
