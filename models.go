package quizengine

import (
	"errors"
	"fmt"
	"time"
)

// RawQuestionRecord is one question as returned by the generation collaborator
type RawQuestionRecord struct {
	Question         string `json:"question"`
	RelevantText     string `json:"relevantText"`
	IsMultipleChoice bool   `json:"isMultipleChoice"`
}

// SourceRecord is a flashcard as supplied by the deck store
type SourceRecord struct {
	Front string `json:"front" yaml:"front"`
	Back  string `json:"back" yaml:"back"`
	Type  string `json:"type" yaml:"type"`
}

// Flashcard types understood by ToRawRecord
const (
	CardTypeMultipleChoice = "multiple_choice"
	CardTypeShortResponse  = "short_response"
)

// ToRawRecord maps a flashcard onto the shape the generator expects
func (s SourceRecord) ToRawRecord() RawQuestionRecord {
	return RawQuestionRecord{
		Question:         s.Front,
		RelevantText:     s.Back,
		IsMultipleChoice: isMultipleChoiceType(s.Type),
	}
}

func isMultipleChoiceType(t string) bool {
	switch t {
	case CardTypeMultipleChoice, "mc", "multiple-choice", "multipleChoice", "MC":
		return true
	}
	return false
}

// ParsedOption is a single labeled answer option
type ParsedOption struct {
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// ProcessedQuestion is a question ready to be shown and graded.
// For multiple choice questions Options is populated and CorrectLabel is set
// once parsing and randomization succeeded. Otherwise the question is
// unparseable. Short response questions carry the expected answer in
// PlainAnswer.
type ProcessedQuestion struct {
	Question         string         `json:"question"`
	Options          []ParsedOption `json:"options,omitempty"`
	PlainAnswer      string         `json:"plain_answer,omitempty"`
	IsMultipleChoice bool           `json:"is_multiple_choice"`
	CorrectLabel     string         `json:"correct_label,omitempty"`
}

// Unparseable reports whether a multiple choice question lost its options
func (q ProcessedQuestion) Unparseable() bool {
	return q.IsMultipleChoice && q.CorrectLabel == ""
}

// HasOptions reports whether the question is answered by picking a label
func (q ProcessedQuestion) HasOptions() bool {
	return q.IsMultipleChoice && !q.Unparseable()
}

// Option returns the option carrying label, if any
func (q ProcessedQuestion) Option(label string) (ParsedOption, bool) {
	for _, opt := range q.Options {
		if opt.Label == label {
			return opt, true
		}
	}
	return ParsedOption{}, false
}

// Per-question grading statuses
const (
	StatusCorrect       = "Correct"
	StatusNoAnswer      = "No answer given"
	StatusUnparseable   = "Incorrect (question could not be parsed)"
	StatusCheckingError = "Incorrect (error checking answer)"
)

// QuizResult is the graded outcome of one submission
type QuizResult struct {
	PerQuestionStatus []string  `json:"per_question_status"`
	CorrectCount      int       `json:"correct_count"`
	IncorrectCount    int       `json:"incorrect_count"`
	Total             int       `json:"total"`
	Grade             float64   `json:"grade"`
	TimedOut          bool      `json:"timed_out"`
	GradedAt          time.Time `json:"graded_at"`
}

// GradeString renders the grade with one decimal place
func (r QuizResult) GradeString() string {
	return fmt.Sprintf("%.1f", r.Grade)
}

// Errors returned for rejected actions. The session state is left untouched.
var (
	ErrGenerationInFlight = errors.New("a generation request is already in flight")
	ErrNothingSaved       = errors.New("no saved answers to submit")
	ErrInvalidPhase       = errors.New("action not allowed in current phase")
	ErrInvalidSetup       = errors.New("question count and minutes must be positive, minutes at most 1440")
	ErrQuestionIndex      = errors.New("question index out of range")
	ErrNotMultipleChoice  = errors.New("question has no options to select")
	ErrNotShortResponse   = errors.New("question is answered by selecting an option")
	ErrUnknownLabel       = errors.New("unknown option label")
)

// GenerationError wraps any failure of the generation collaborator
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate questions: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
