// Command candidate is a terminal harness for one assessment session. It
// drives the session runtime against a running API server: editing feeds the
// autosave pipeline, run and submit go through the execution coordinator, and
// simulated environment signals exercise the violation monitor.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/client"
	"github.com/hirecraft/assess-go/internal/config"
	"github.com/hirecraft/assess-go/internal/session"
)

// terminalSignalSource adapts REPL commands into proctoring signals.
type terminalSignalSource struct {
	mu       sync.Mutex
	handlers map[int]func(session.Signal) bool
	nextID   int
}

func newTerminalSignalSource() *terminalSignalSource {
	return &terminalSignalSource{handlers: make(map[int]func(session.Signal) bool)}
}

func (s *terminalSignalSource) Subscribe(handler func(session.Signal) bool) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

func (s *terminalSignalSource) Emit(signal session.Signal) {
	s.mu.Lock()
	handlers := make([]func(session.Signal) bool, 0, len(s.handlers))
	for _, handler := range s.handlers {
		handlers = append(handlers, handler)
	}
	s.mu.Unlock()
	for _, handler := range handlers {
		handler(signal)
	}
}

func main() {
	questionID := flag.Uint("question", 0, "question id to attempt")
	flag.Parse()
	if *questionID == 0 {
		log.Fatal("a --question id is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.CandidateToken == "" {
		log.Fatal("ASSESS_CANDIDATE_TOKEN must be set")
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	backend := client.New(client.Config{
		BaseURL:        cfg.ServerURL,
		CandidateToken: cfg.CandidateToken,
		Logger:         logger,
	})

	reporter, err := client.NewProctorReporter(cfg.ServerURL, *questionID, cfg.CandidateToken, logger)
	if err != nil {
		log.Fatalf("failed to create proctor reporter: %v", err)
	}

	source := newTerminalSignalSource()

	controller := session.NewController(session.ControllerConfig{
		Backend:          backend,
		Source:           source,
		Reporter:         reporter,
		Logger:           logger,
		AutosaveInterval: cfg.AutosaveInterval,
		OnChange:         printTransitions(),
	})
	defer controller.Close()

	if err := controller.Start(context.Background(), *questionID); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	snapshot := controller.Snapshot()
	fmt.Printf("=== %s (%s, %d minutes) ===\n", snapshot.Question.Title, snapshot.Question.Difficulty, snapshot.Question.TimeLimit)
	fmt.Println(snapshot.Question.Description)
	fmt.Println("commands: code | lang <name> | run | submit | status | blur | tab | menu | devtools | copy <n> | quit")

	repl(controller, source)
}

// printTransitions reports session lifecycle changes without spamming every
// clock tick.
func printTransitions() func(session.Session) {
	var lastStatus session.Status
	var lastSubmission session.SubmissionState
	var warned bool
	return func(s session.Session) {
		if s.Status != lastStatus {
			lastStatus = s.Status
			fmt.Printf("\n[session] %s\n", s.Status)
		}
		if s.Submission != lastSubmission {
			lastSubmission = s.Submission
			fmt.Printf("\n[submission] %v\n", s.Submission)
		}
		if !warned && s.Status == session.StatusActive && s.TimeRemaining > 0 && s.TimeRemaining <= 60 {
			warned = true
			fmt.Printf("\n[clock] one minute remaining\n")
		}
	}
}

func repl(controller *session.Controller, source *terminalSignalSource) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "code":
			fmt.Println("enter code, end with a single '.' line:")
			var lines []string
			for scanner.Scan() {
				text := scanner.Text()
				if text == "." {
					break
				}
				lines = append(lines, text)
			}
			controller.OnCodeChanged(strings.Join(lines, "\n"))
		case "lang":
			if len(fields) < 2 {
				fmt.Println("usage: lang <name>")
				continue
			}
			controller.SetLanguage(fields[1])
		case "run":
			if err := controller.Run(); err != nil {
				fmt.Printf("run: %v\n", err)
			}
		case "submit":
			if err := controller.Submit(); err != nil {
				fmt.Printf("submit: %v\n", err)
			}
		case "status":
			printStatus(controller.Snapshot())
		case "blur":
			source.Emit(session.Signal{Kind: session.SignalWindowBlur})
		case "tab":
			source.Emit(session.Signal{Kind: session.SignalVisibilityHidden})
		case "menu":
			source.Emit(session.Signal{Kind: session.SignalContextMenu})
		case "devtools":
			source.Emit(session.Signal{Kind: session.SignalKeyDown, Key: "F12"})
		case "copy":
			n := 0
			if len(fields) > 1 {
				n, _ = strconv.Atoi(fields[1])
			}
			source.Emit(session.Signal{Kind: session.SignalKeyDown, Key: "c", Ctrl: true, SelectionLen: n})
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func printStatus(s session.Session) {
	fmt.Printf("status: %s  language: %s  remaining: %ds  violations: %d\n",
		s.Status, s.Language, s.TimeRemaining, len(s.Violations))
	if s.LastRun != nil {
		fmt.Printf("last run: %s (%d ms)\n", s.LastRun.Verdict, s.LastRun.ExecutionTimeMs)
		for i, tr := range s.LastRun.TestResults {
			mark := "FAIL"
			if tr.Passed {
				mark = "PASS"
			}
			fmt.Printf("  case %d: %s\n", i+1, mark)
		}
	}
}
