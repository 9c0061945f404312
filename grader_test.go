package quizengine

import (
	"context"
	"errors"
	"testing"
)

func choiceQuestion() ProcessedQuestion {
	return ProcessedQuestion{
		Question:         "Capital of France?",
		IsMultipleChoice: true,
		Options: []ParsedOption{
			{Label: "A", Text: "London"},
			{Label: "B", Text: "Paris", IsCorrect: true},
		},
		CorrectLabel: "B",
	}
}

func TestGradeStatuses(t *testing.T) {
	questions := []ProcessedQuestion{
		choiceQuestion(),
		choiceQuestion(),
		{Question: "Broken", IsMultipleChoice: true},
		{Question: "Gas plants absorb?", PlainAnswer: "Carbon dioxide"},
		{Question: "Largest planet?", PlainAnswer: "Jupiter"},
		{Question: "Author of Hamlet?", PlainAnswer: "Shakespeare"},
		{Question: "Boiling point of water?", PlainAnswer: "100 C"},
		{Question: "Unanswered", PlainAnswer: "anything"},
	}
	saved := map[int]string{
		0: "B",
		1: "A",
		2: "whatever",
		3: "CO2",
		4: "saturn",
		5: "shakespeare.",
		6: "a hundred degrees",
	}
	judge := &fakeJudge{
		verdicts: map[string]bool{"CO2": true},
		errs:     map[string]error{"a hundred degrees": errors.New("timeout")},
	}
	metrics := NewMetrics()

	result := NewGrader(judge, WithGraderMetrics(metrics)).Grade(context.Background(), questions, saved)

	want := []string{
		StatusCorrect,
		"Incorrect. The correct answer is B) Paris",
		StatusUnparseable,
		StatusCorrect,
		"Incorrect. Expected: Jupiter",
		StatusCorrect,
		StatusCheckingError,
		StatusNoAnswer,
	}
	for i, status := range want {
		if result.PerQuestionStatus[i] != status {
			t.Errorf("question %d: status %q, want %q", i, result.PerQuestionStatus[i], status)
		}
	}
	if result.CorrectCount != 3 || result.IncorrectCount != 5 || result.Total != 8 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if result.GradeString() != "37.5" {
		t.Fatalf("grade = %s, want 37.5", result.GradeString())
	}

	// The normalized exact match never reaches the judge.
	if judge.callCount() != 3 {
		t.Fatalf("judge called %d times, want 3", judge.callCount())
	}
	snap := metrics.GetSnapshot()
	if snap.JudgeCallsTotal != 3 || snap.JudgeCallsFailed != 1 {
		t.Fatalf("unexpected judge metrics %+v", snap)
	}
}

func TestGradeRunsComparisonsConcurrently(t *testing.T) {
	const n = 5
	questions := make([]ProcessedQuestion, n)
	saved := make(map[int]string, n)
	for i := range questions {
		questions[i] = ProcessedQuestion{Question: "q", PlainAnswer: "expected"}
		saved[i] = "paraphrase"
	}

	result := NewGrader(newBarrierJudge(n)).Grade(context.Background(), questions, saved)
	if result.CorrectCount != n {
		t.Fatalf("expected all %d comparisons to succeed together, got %+v", n, result.PerQuestionStatus)
	}
}

func TestGradeNumericAnswersGoToJudge(t *testing.T) {
	questions := []ProcessedQuestion{
		{Question: "Where Celsius meets Fahrenheit?", PlainAnswer: "-40"},
		{Question: "Pi to two decimals?", PlainAnswer: "3.14"},
	}
	saved := map[int]string{0: "40", 1: "314"}
	judge := &fakeJudge{}

	result := NewGrader(judge).Grade(context.Background(), questions, saved)
	if result.CorrectCount != 0 || result.IncorrectCount != 2 {
		t.Fatalf("dropped sign or decimal point graded correct: %v", result.PerQuestionStatus)
	}
	if judge.callCount() != 2 {
		t.Fatalf("judge called %d times, want 2", judge.callCount())
	}
}

func TestGradeEmptySubmission(t *testing.T) {
	questions := []ProcessedQuestion{choiceQuestion(), {Question: "q", PlainAnswer: "a"}}
	result := NewGrader(&fakeJudge{}).Grade(context.Background(), questions, nil)

	if result.CorrectCount != 0 || result.IncorrectCount != 2 || result.Grade != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, status := range result.PerQuestionStatus {
		if status != StatusNoAnswer {
			t.Fatalf("status %q, want %q", status, StatusNoAnswer)
		}
	}
}

func TestComputeGrade(t *testing.T) {
	tests := []struct {
		correct, total int
		want           float64
	}{
		{7, 10, 70},
		{2, 3, 66.7},
		{1, 3, 33.3},
		{0, 0, 0},
		{5, 5, 100},
	}
	for _, tt := range tests {
		if got := computeGrade(tt.correct, tt.total); got != tt.want {
			t.Errorf("computeGrade(%d, %d) = %v, want %v", tt.correct, tt.total, got, tt.want)
		}
	}
}

func TestSameAnswer(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Shakespeare.", "shakespeare", true},
		{"  New   York ", "new york", true},
		{"Paris!", "paris", true},
		{"New-York", "newyork", false},
		{"New-York", "new-york", true},
		{"40", "-40", false},
		{"314", "3.14", false},
		{"1000", "1,000", false},
		{"12", "1/2", false},
		{"3.14.", "3.14", true},
		{"Paris", "London", false},
		{"", "", false},
		{"!!!", "...", false},
	}
	for _, tt := range tests {
		if got := sameAnswer(tt.a, tt.b); got != tt.want {
			t.Errorf("sameAnswer(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
