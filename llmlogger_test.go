package quizengine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLLMLoggerWritesTranscript(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLLMLogger(dir, "session-1")
	if err != nil {
		t.Fatalf("NewLLMLogger: %v", err)
	}

	logger.LogSetup("Geography", 5, 10)
	logger.LogLLMRequest("Judge", "is CO2 carbon dioxide?")
	logger.LogLLMResponse("Judge", `{"correct":true}`)
	logger.LogQuestionResult("1", StatusCorrect, "CO2")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Logging after close is a no-op.
	logger.Logf("ignored\n")

	data, err := os.ReadFile(filepath.Join(dir, "session-1.log"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	text := string(data)
	for _, want := range []string{"Session ID: session-1", `deck="Geography"`, "LLM REQUEST (Judge)", `(answer: "CO2")`, "Quiz Session Complete"} {
		if !strings.Contains(text, want) {
			t.Errorf("transcript missing %q", want)
		}
	}
	if strings.Contains(text, "ignored") {
		t.Error("write after close reached the transcript")
	}
}
