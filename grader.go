package quizengine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// Judge decides whether a free-text answer is equivalent to the expected one
type Judge interface {
	Compare(ctx context.Context, userAnswer, correctAnswer string) (bool, error)
}

// Grader scores saved answers against the processed questions
type Grader struct {
	judge   Judge
	timeout time.Duration
	metrics *Metrics
	logger  *LLMLogger
}

// GraderOption configures a Grader
type GraderOption func(*Grader)

// WithJudgeTimeout bounds every individual judge call
func WithJudgeTimeout(d time.Duration) GraderOption {
	return func(g *Grader) { g.timeout = d }
}

// WithGraderMetrics records judge calls in m
func WithGraderMetrics(m *Metrics) GraderOption {
	return func(g *Grader) { g.metrics = m }
}

// WithGraderLogger writes per-question verdicts to a transcript
func WithGraderLogger(l *LLMLogger) GraderOption {
	return func(g *Grader) { g.logger = l }
}

// NewGrader creates a grader delegating short responses to judge
func NewGrader(judge Judge, opts ...GraderOption) *Grader {
	g := &Grader{judge: judge, timeout: 30 * time.Second}
	for _, o := range opts {
		o(g)
	}
	return g
}

type verdict struct {
	correct bool
	status  string
}

// Grade produces the result for one submission. Short response comparisons
// run concurrently and the result is only assembled once all of them have
// returned. A failed comparison marks that question incorrect and does not
// affect the others.
func (g *Grader) Grade(ctx context.Context, questions []ProcessedQuestion, saved map[int]string) QuizResult {
	verdicts := make([]verdict, len(questions))

	var wg sync.WaitGroup
	for i, q := range questions {
		answer, answered := saved[i]
		switch {
		case !answered:
			verdicts[i] = verdict{status: StatusNoAnswer}
		case q.Unparseable():
			verdicts[i] = verdict{status: StatusUnparseable}
		case q.IsMultipleChoice:
			verdicts[i] = gradeChoice(q, answer)
		case sameAnswer(answer, q.PlainAnswer):
			verdicts[i] = verdict{correct: true, status: StatusCorrect}
		default:
			wg.Add(1)
			go func(i int, answer, expected string) {
				defer wg.Done()
				verdicts[i] = g.compare(ctx, i, answer, expected)
			}(i, answer, q.PlainAnswer)
		}
	}
	wg.Wait()

	result := QuizResult{
		PerQuestionStatus: make([]string, len(questions)),
		Total:             len(questions),
		GradedAt:          time.Now(),
	}
	for i, v := range verdicts {
		result.PerQuestionStatus[i] = v.status
		if v.correct {
			result.CorrectCount++
		} else {
			result.IncorrectCount++
		}
		if g.logger != nil {
			g.logger.LogQuestionResult(fmt.Sprintf("%d", i+1), v.status, saved[i])
		}
	}
	result.Grade = computeGrade(result.CorrectCount, result.Total)

	log.Printf("Graded %d questions: %d correct, %d incorrect (%s%%)",
		result.Total, result.CorrectCount, result.IncorrectCount, result.GradeString())
	return result
}

func gradeChoice(q ProcessedQuestion, answer string) verdict {
	if answer == q.CorrectLabel {
		return verdict{correct: true, status: StatusCorrect}
	}
	correct, _ := q.Option(q.CorrectLabel)
	return verdict{status: fmt.Sprintf("Incorrect. The correct answer is %s) %s", correct.Label, correct.Text)}
}

func (g *Grader) compare(ctx context.Context, i int, answer, expected string) verdict {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	correct, err := g.judge.Compare(callCtx, answer, expected)
	if g.metrics != nil {
		g.metrics.IncrementJudgeCall(err == nil)
	}
	if err != nil {
		log.Printf("Error checking answer for question %d: %v", i+1, err)
		return verdict{status: StatusCheckingError}
	}

	VerboseLog("Question %d judged correct=%v", i+1, correct)
	if correct {
		return verdict{correct: true, status: StatusCorrect}
	}
	return verdict{status: fmt.Sprintf("Incorrect. Expected: %s", expected)}
}

// computeGrade returns the percentage correct rounded to one decimal place
func computeGrade(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*1000) / 10
}
