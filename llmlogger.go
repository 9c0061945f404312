package quizengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LLMLogger writes a per-session transcript of collaborator calls and verdicts
type LLMLogger struct {
	file      *os.File
	mu        sync.Mutex
	sessionID string
}

// NewLLMLogger creates the transcript file <dir>/<sessionID>.log
func NewLLMLogger(dir, sessionID string) (*LLMLogger, error) {
	if dir == "" {
		dir = "log"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", sessionID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &LLMLogger{
		file:      file,
		sessionID: sessionID,
	}

	logger.Logf("=== Quiz Session Log ===\n")
	logger.Logf("Session ID: %s\n", sessionID)
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("========================\n\n")

	return logger, nil
}

// Logf writes a formatted log entry with timestamp
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.writef(format, args...)
}

func (ll *LLMLogger) writef(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	message := fmt.Sprintf(format, args...)

	fmt.Fprintf(ll.file, "[%s] %s", timestamp, message)
	ll.file.Sync()
}

// LogSetup records the parameters of a generation request
func (ll *LLMLogger) LogSetup(deck string, count, minutes int) {
	ll.Logf("Setup: deck=%q questions=%d minutes=%d\n", deck, count, minutes)
}

// LogLLMRequest logs an LLM request
func (ll *LLMLogger) LogLLMRequest(module, prompt string) {
	ll.Logf("=== LLM REQUEST (%s) ===\n", module)
	ll.Logf("Prompt:\n%s\n", prompt)
	ll.Logf("=====================\n\n")
}

// LogLLMResponse logs an LLM response
func (ll *LLMLogger) LogLLMResponse(module, response string) {
	ll.Logf("=== LLM RESPONSE (%s) ===\n", module)
	ll.Logf("Response:\n%s\n", response)
	ll.Logf("======================\n\n")
}

// LogQuestionResult logs the grading outcome of one question
func (ll *LLMLogger) LogQuestionResult(question, status, answer string) {
	if answer == "" {
		ll.Logf("Question %s: %s\n", question, status)
		return
	}
	ll.Logf("Question %s: %s (answer: %q)\n", question, status, answer)
}

// Close closes the log file
func (ll *LLMLogger) Close() error {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file != nil {
		ll.writef("=== Quiz Session Complete ===\n")
		ll.writef("Completed: %s\n", time.Now().Format(time.RFC3339))
		ll.writef("=============================\n")
		err := ll.file.Close()
		ll.file = nil
		return err
	}
	return nil
}
