package quizengine

import (
	"fmt"
	"strings"
)

// Phase is the coarse lifecycle stage of a session
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseGenerating Phase = "generating"
	PhaseActive     Phase = "active"
	PhaseSubmitted  Phase = "submitted"
)

// DefaultWarningThresholds are the countdown marks, in seconds, that trigger a
// one-time notification.
var DefaultWarningThresholds = []int{300, 60}

// MaxSessionMinutes bounds the countdown a setup may ask for
const MaxSessionMinutes = 24 * 60

// State is an immutable snapshot of a session. Machine.Apply never modifies
// the State it receives.
type State struct {
	Phase           Phase
	Index           int
	TimeLeftSeconds int
	TimerRunning    bool
	WarningsFired   []int

	// GenerationID increases with every generation request; responses
	// carrying an older id are discarded.
	GenerationID int64
	// TimerEpoch increases every time a countdown starts; ticks from an
	// older countdown are discarded.
	TimerEpoch int64
	// Attempt increases every time the active phase is entered; grading
	// results from an older attempt are discarded.
	Attempt int

	QuestionCount int
	Minutes       int

	Questions []ProcessedQuestion
	Answers   AnswerStore
	Result    *QuizResult
	Grading   bool
	TimedOut  bool
	LastError string
}

// NewState returns the initial setup state
func NewState() State {
	return State{Phase: PhaseSetup, Answers: NewAnswerStore()}
}

// WarningFired reports whether the threshold notification already went out
func (s State) WarningFired(threshold int) bool {
	for _, t := range s.WarningsFired {
		if t == threshold {
			return true
		}
	}
	return false
}

// Action is a discrete input to the session machine
type Action interface {
	actionName() string
}

type (
	// ConfirmSetup requests count questions for a session lasting minutes
	ConfirmSetup struct {
		Count   int
		Minutes int
	}
	// GenerationSucceeded delivers the collaborator's records
	GenerationSucceeded struct {
		GenerationID int64
		Records      []RawQuestionRecord
	}
	// GenerationFailed reports a failed generation request
	GenerationFailed struct {
		GenerationID int64
		Err          error
	}
	SelectOption struct {
		Index int
		Label string
	}
	EditShortResponse struct {
		Index int
		Text  string
	}
	SaveAnswer struct {
		Index int
	}
	Navigate struct {
		Index int
	}
	Submit struct{}
	// Tick is one second of countdown from the timer with the given epoch
	Tick struct {
		Epoch int64
	}
	// GradingFinished delivers the grader's output for an attempt
	GradingFinished struct {
		Attempt int
		Result  QuizResult
	}
	Retry      struct{}
	Regenerate struct{}
)

func (ConfirmSetup) actionName() string        { return "confirm_setup" }
func (GenerationSucceeded) actionName() string { return "generation_succeeded" }
func (GenerationFailed) actionName() string    { return "generation_failed" }
func (SelectOption) actionName() string        { return "select_option" }
func (EditShortResponse) actionName() string   { return "edit_short_response" }
func (SaveAnswer) actionName() string          { return "save_answer" }
func (Navigate) actionName() string            { return "navigate" }
func (Submit) actionName() string              { return "submit" }
func (Tick) actionName() string                { return "tick" }
func (GradingFinished) actionName() string     { return "grading_finished" }
func (Retry) actionName() string               { return "retry" }
func (Regenerate) actionName() string          { return "regenerate" }

// Effect is work the runtime must perform after a transition
type Effect interface {
	effectName() string
}

type (
	RequestGeneration struct {
		GenerationID int64
		Count        int
	}
	CancelGeneration struct{}
	StartTimer       struct {
		Epoch   int64
		Seconds int
	}
	StopTimer struct{}
	// Warning announces that SecondsLeft remain on the clock
	Warning struct {
		SecondsLeft int
	}
	// QuestionsReady reports how the generated records were processed
	QuestionsReady struct {
		Total       int
		Unparseable int
	}
	// GradeAnswers asks the runtime to grade a submitted attempt
	GradeAnswers struct {
		Attempt   int
		Questions []ProcessedQuestion
		Saved     map[int]string
		TimedOut  bool
	}
	// RecordResult hands an accepted grading result to the history store
	RecordResult struct {
		Attempt int
		Result  QuizResult
	}
)

func (RequestGeneration) effectName() string { return "request_generation" }
func (CancelGeneration) effectName() string  { return "cancel_generation" }
func (StartTimer) effectName() string        { return "start_timer" }
func (StopTimer) effectName() string         { return "stop_timer" }
func (Warning) effectName() string           { return "warning" }
func (QuestionsReady) effectName() string    { return "questions_ready" }
func (GradeAnswers) effectName() string      { return "grade_answers" }
func (RecordResult) effectName() string      { return "record_result" }

// Machine is the pure transition function of a quiz session
type Machine struct {
	randomizer *OptionRandomizer
	thresholds []int
}

// MachineOption configures a Machine
type MachineOption func(*Machine)

// WithWarningThresholds replaces the default countdown warnings
func WithWarningThresholds(seconds ...int) MachineOption {
	return func(m *Machine) { m.thresholds = append([]int(nil), seconds...) }
}

// NewMachine creates a machine using r for option shuffling
func NewMachine(r *OptionRandomizer, opts ...MachineOption) *Machine {
	m := &Machine{
		randomizer: r,
		thresholds: DefaultWarningThresholds,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Apply computes the next state. On error the returned state is s unchanged
// and no effects are produced. Stale generation responses, ticks and grading
// results are dropped silently.
func (m *Machine) Apply(s State, a Action) (State, []Effect, error) {
	next, effects, err := m.apply(s, a)
	if err != nil {
		VerboseLog("Rejected %s in phase %s: %v", a.actionName(), s.Phase, err)
		return s, nil, err
	}
	return next, effects, nil
}

func (m *Machine) apply(s State, a Action) (State, []Effect, error) {
	switch a := a.(type) {
	case ConfirmSetup:
		return m.confirmSetup(s, a)
	case GenerationSucceeded:
		return m.generationSucceeded(s, a)
	case GenerationFailed:
		if s.Phase != PhaseGenerating || a.GenerationID != s.GenerationID {
			return s, nil, nil
		}
		next := resetToSetup(s)
		if a.Err != nil {
			next.LastError = a.Err.Error()
		} else {
			next.LastError = "generation failed"
		}
		return next, nil, nil
	case SelectOption:
		return m.selectOption(s, a)
	case EditShortResponse:
		return m.editShortResponse(s, a)
	case SaveAnswer:
		if err := requireQuestion(s, a.Index); err != nil {
			return s, nil, err
		}
		next := s
		next.Answers = s.Answers.Clone()
		next.Answers.Save(a.Index, s.Questions[a.Index].HasOptions())
		return next, nil, nil
	case Navigate:
		if s.Phase != PhaseActive && s.Phase != PhaseSubmitted {
			return s, nil, ErrInvalidPhase
		}
		if a.Index < 0 || a.Index >= len(s.Questions) {
			return s, nil, ErrQuestionIndex
		}
		next := s
		next.Index = a.Index
		return next, nil, nil
	case Submit:
		if s.Phase != PhaseActive {
			return s, nil, ErrInvalidPhase
		}
		if s.Answers.SavedCount() == 0 {
			return s, nil, ErrNothingSaved
		}
		return m.finish(s, s.Answers, false), []Effect{StopTimer{}, m.gradeEffect(s, s.Answers, false)}, nil
	case Tick:
		return m.tick(s, a)
	case GradingFinished:
		if s.Phase != PhaseSubmitted || a.Attempt != s.Attempt || !s.Grading {
			return s, nil, nil
		}
		next := s
		result := a.Result
		next.Result = &result
		next.Grading = false
		return next, []Effect{RecordResult{Attempt: a.Attempt, Result: result}}, nil
	case Retry:
		if s.Phase != PhaseSubmitted {
			return s, nil, ErrInvalidPhase
		}
		next := m.activate(s)
		return next, []Effect{StartTimer{Epoch: next.TimerEpoch, Seconds: next.TimeLeftSeconds}}, nil
	case Regenerate:
		var effects []Effect
		switch s.Phase {
		case PhaseSetup:
			return s, nil, ErrInvalidPhase
		case PhaseGenerating:
			effects = append(effects, CancelGeneration{})
		case PhaseActive:
			effects = append(effects, StopTimer{})
		}
		return resetToSetup(s), effects, nil
	default:
		return s, nil, fmt.Errorf("unknown action %T", a)
	}
}

func (m *Machine) confirmSetup(s State, a ConfirmSetup) (State, []Effect, error) {
	switch s.Phase {
	case PhaseGenerating:
		return s, nil, ErrGenerationInFlight
	case PhaseSetup:
	default:
		return s, nil, ErrInvalidPhase
	}
	if a.Count <= 0 || a.Minutes <= 0 || a.Minutes > MaxSessionMinutes {
		return s, nil, ErrInvalidSetup
	}

	next := s
	next.Phase = PhaseGenerating
	next.GenerationID = s.GenerationID + 1
	next.QuestionCount = a.Count
	next.Minutes = a.Minutes
	next.LastError = ""
	return next, []Effect{RequestGeneration{GenerationID: next.GenerationID, Count: a.Count}}, nil
}

func (m *Machine) generationSucceeded(s State, a GenerationSucceeded) (State, []Effect, error) {
	if s.Phase != PhaseGenerating || a.GenerationID != s.GenerationID {
		return s, nil, nil
	}
	if len(a.Records) == 0 {
		next := resetToSetup(s)
		next.LastError = (&GenerationError{Err: fmt.Errorf("no questions returned")}).Error()
		return next, nil, nil
	}

	questions, unparseable := m.processRecords(a.Records)
	next := s
	next.Questions = questions
	next = m.activate(next)
	return next, []Effect{
		QuestionsReady{Total: len(questions), Unparseable: unparseable},
		StartTimer{Epoch: next.TimerEpoch, Seconds: next.TimeLeftSeconds},
	}, nil
}

// processRecords runs the parser and randomizer over multiple choice records
func (m *Machine) processRecords(records []RawQuestionRecord) ([]ProcessedQuestion, int) {
	questions := make([]ProcessedQuestion, 0, len(records))
	unparseable := 0
	for i, rec := range records {
		q := ProcessedQuestion{
			Question:         strings.TrimSpace(rec.Question),
			IsMultipleChoice: rec.IsMultipleChoice,
		}
		if !rec.IsMultipleChoice {
			q.PlainAnswer = strings.TrimSpace(rec.RelevantText)
			questions = append(questions, q)
			continue
		}

		randomized := m.randomizer.Randomize(ParseOptions(rec.RelevantText))
		if randomized.CorrectLabel == "" {
			VerboseLog("Question %d marked unparseable", i)
			unparseable++
			questions = append(questions, q)
			continue
		}
		q.Options = randomized.Options
		q.CorrectLabel = randomized.CorrectLabel
		questions = append(questions, q)
	}
	return questions, unparseable
}

func (m *Machine) selectOption(s State, a SelectOption) (State, []Effect, error) {
	if err := requireQuestion(s, a.Index); err != nil {
		return s, nil, err
	}
	q := s.Questions[a.Index]
	if !q.HasOptions() {
		return s, nil, ErrNotMultipleChoice
	}
	label := strings.ToUpper(strings.TrimSpace(a.Label))
	if _, ok := q.Option(label); !ok {
		return s, nil, ErrUnknownLabel
	}
	next := s
	next.Answers = s.Answers.Clone()
	next.Answers.Select(a.Index, label)
	return next, nil, nil
}

func (m *Machine) editShortResponse(s State, a EditShortResponse) (State, []Effect, error) {
	if err := requireQuestion(s, a.Index); err != nil {
		return s, nil, err
	}
	if s.Questions[a.Index].HasOptions() {
		return s, nil, ErrNotShortResponse
	}
	next := s
	next.Answers = s.Answers.Clone()
	next.Answers.EditDraft(a.Index, a.Text)
	return next, nil, nil
}

func (m *Machine) tick(s State, a Tick) (State, []Effect, error) {
	if s.Phase != PhaseActive || !s.TimerRunning || a.Epoch != s.TimerEpoch {
		return s, nil, nil
	}

	next := s
	prev := s.TimeLeftSeconds
	next.TimeLeftSeconds = prev - 1

	var effects []Effect
	for _, th := range m.thresholds {
		if prev > th && next.TimeLeftSeconds <= th && !s.WarningFired(th) {
			next.WarningsFired = append(append([]int(nil), next.WarningsFired...), th)
			effects = append(effects, Warning{SecondsLeft: th})
		}
	}

	if next.TimeLeftSeconds > 0 {
		return next, effects, nil
	}

	// Out of time: every filled draft counts as saved.
	next.TimeLeftSeconds = 0
	answers := s.Answers.Clone()
	answers.SaveAllFilled(len(s.Questions), func(i int) bool {
		return s.Questions[i].HasOptions()
	})
	next = m.finish(next, answers, true)
	effects = append(effects, StopTimer{}, m.gradeEffect(next, answers, true))
	return next, effects, nil
}

// finish moves the session into the submitted phase with the given answers
func (m *Machine) finish(s State, answers AnswerStore, timedOut bool) State {
	next := s
	next.Phase = PhaseSubmitted
	next.Answers = answers
	next.TimerRunning = false
	next.Grading = true
	next.TimedOut = timedOut
	next.Result = nil
	return next
}

func (m *Machine) gradeEffect(s State, answers AnswerStore, timedOut bool) GradeAnswers {
	return GradeAnswers{
		Attempt:   s.Attempt,
		Questions: s.Questions,
		Saved:     answers.Saved(),
		TimedOut:  timedOut,
	}
}

// activate starts a fresh attempt over the current questions
func (m *Machine) activate(s State) State {
	next := s
	next.Phase = PhaseActive
	next.Index = 0
	next.Answers = NewAnswerStore()
	next.TimeLeftSeconds = s.Minutes * 60
	next.TimerRunning = true
	next.WarningsFired = nil
	next.TimerEpoch = s.TimerEpoch + 1
	next.Attempt = s.Attempt + 1
	next.Result = nil
	next.Grading = false
	next.TimedOut = false
	next.LastError = ""
	return next
}

// resetToSetup drops everything tied to the previous questions but keeps the
// counters so that late responses stay recognisable as stale.
func resetToSetup(s State) State {
	return State{
		Phase:         PhaseSetup,
		GenerationID:  s.GenerationID,
		TimerEpoch:    s.TimerEpoch,
		Attempt:       s.Attempt,
		QuestionCount: s.QuestionCount,
		Minutes:       s.Minutes,
		Answers:       NewAnswerStore(),
	}
}

func requireQuestion(s State, i int) error {
	if s.Phase != PhaseActive {
		return ErrInvalidPhase
	}
	if i < 0 || i >= len(s.Questions) {
		return ErrQuestionIndex
	}
	return nil
}
