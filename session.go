package quizengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionClosed is returned by Dispatch once Close has been called
var ErrSessionClosed = errors.New("session closed")

// OptionView is an answer option as shown to the user
type OptionView struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// QuestionView is the user-facing part of one question. It never reveals
// which option is correct.
type QuestionView struct {
	Index            int          `json:"index"`
	Question         string       `json:"question"`
	IsMultipleChoice bool         `json:"is_multiple_choice"`
	Unparseable      bool         `json:"unparseable"`
	Options          []OptionView `json:"options,omitempty"`
	Draft            string       `json:"draft,omitempty"`
	Selected         string       `json:"selected,omitempty"`
	Saved            bool         `json:"saved"`
}

// Snapshot is the read-only view published after every transition
type Snapshot struct {
	SessionID       string        `json:"session_id"`
	Phase           Phase         `json:"phase"`
	Index           int           `json:"index"`
	Total           int           `json:"total"`
	TimeLeftSeconds *int          `json:"time_left_seconds"`
	TimerRunning    bool          `json:"timer_running"`
	SavedFlags      []bool        `json:"per_question_saved_flags"`
	Current         *QuestionView `json:"current,omitempty"`
	Grading         bool          `json:"grading"`
	Result          *QuizResult   `json:"result,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
}

// Event is delivered to the session listener after every transition.
// Warning is non-zero when a countdown threshold was crossed.
type Event struct {
	Snapshot Snapshot
	Warning  int
}

// SessionConfig wires a session to its collaborators
type SessionConfig struct {
	// ID defaults to a random UUID
	ID        string
	DeckID    int64
	Source    SourceStore
	Generator Generator
	Grader    *Grader
	Machine   *Machine

	// Optional
	Timer             *TimerController
	Results           ResultStore
	Metrics           *Metrics
	Sampler           *OptionRandomizer
	Logger            *LLMLogger
	GenerationTimeout time.Duration
	// OnEvent runs while the session is locked and must not call Dispatch.
	OnEvent func(Event)
}

// Session runs one user's quiz: it applies actions to the machine under a
// lock and performs the resulting effects.
type Session struct {
	id  string
	cfg SessionConfig

	mu        sync.Mutex
	state     State
	closed    bool
	cancelGen context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession creates a session in the setup phase
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Source == nil || cfg.Generator == nil || cfg.Grader == nil || cfg.Machine == nil {
		return nil, fmt.Errorf("session requires source, generator, grader and machine")
	}
	if cfg.Timer == nil {
		cfg.Timer = NewTimerController()
	}
	if cfg.Sampler == nil {
		cfg.Sampler = NewOptionRandomizer()
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 2 * time.Minute
	}

	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     cfg.ID,
		cfg:    cfg,
		state:  NewState(),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.Metrics != nil {
		cfg.Metrics.IncrementSessionsStarted()
	}
	log.Printf("Session %s created for deck %d", s.id, cfg.DeckID)
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// DeckID returns the deck the session draws from
func (s *Session) DeckID() int64 { return s.cfg.DeckID }

// Dispatch applies one action. A rejected action leaves the session unchanged.
func (s *Session) Dispatch(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	next, effects, err := s.cfg.Machine.Apply(s.state, a)
	if err != nil {
		return err
	}
	if _, isTick := a.(Tick); !isTick {
		VerboseLog("Session %s: %s -> phase %s", s.id, a.actionName(), next.Phase)
	}
	s.state = next

	warning := 0
	for _, e := range effects {
		if w, ok := e.(Warning); ok {
			warning = w.SecondsLeft
			continue
		}
		s.perform(e)
	}

	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(Event{Snapshot: s.snapshotLocked(), Warning: warning})
	}
	return nil
}

func (s *Session) perform(e Effect) {
	switch e := e.(type) {
	case RequestGeneration:
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.GenerationTimeout)
		s.cancelGen = cancel
		if s.cfg.Logger != nil {
			s.cfg.Logger.LogSetup(fmt.Sprintf("%d", s.cfg.DeckID), e.Count, s.state.Minutes)
		}
		s.wg.Add(1)
		go s.generate(ctx, cancel, e)
	case CancelGeneration:
		if s.cancelGen != nil {
			s.cancelGen()
			s.cancelGen = nil
		}
	case StartTimer:
		s.cfg.Timer.Start(e.Epoch, func(t Tick) {
			// Ticks after close or from a stale epoch are dropped.
			_ = s.Dispatch(t)
		})
	case StopTimer:
		s.cfg.Timer.Stop()
	case QuestionsReady:
		s.cancelGen = nil
		log.Printf("Session %s active with %d questions (%d unparseable)", s.id, e.Total, e.Unparseable)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.AddQuestions(e.Total, e.Unparseable)
		}
	case GradeAnswers:
		if e.TimedOut {
			log.Printf("Session %s timed out, grading %d saved answers", s.id, len(e.Saved))
		} else {
			log.Printf("Session %s submitted with %d saved answers", s.id, len(e.Saved))
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncrementSubmissions(e.TimedOut)
		}
		s.wg.Add(1)
		go s.grade(e)
	case RecordResult:
		s.recordResult(e)
	}
}

func (s *Session) generate(ctx context.Context, cancel context.CancelFunc, req RequestGeneration) {
	defer s.wg.Done()
	defer cancel()

	records, err := s.requestQuestions(ctx, req.Count)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			VerboseLog("Session %s generation %d cancelled", s.id, req.GenerationID)
		} else {
			log.Printf("Session %s generation %d failed: %v", s.id, req.GenerationID, err)
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.IncrementGenerationsFailed()
			}
		}
		_ = s.Dispatch(GenerationFailed{GenerationID: req.GenerationID, Err: err})
		return
	}
	_ = s.Dispatch(GenerationSucceeded{GenerationID: req.GenerationID, Records: records})
}

// requestQuestions samples count flashcards and asks the generator for questions
func (s *Session) requestQuestions(ctx context.Context, count int) ([]RawQuestionRecord, error) {
	cards, err := s.cfg.Source.Flashcards(ctx, s.cfg.DeckID)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	if len(cards) == 0 {
		return nil, &GenerationError{Err: fmt.Errorf("deck %d has no flashcards", s.cfg.DeckID)}
	}

	s.cfg.Sampler.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	if count < len(cards) {
		cards = cards[:count]
	}

	flashcards := make([]RawQuestionRecord, len(cards))
	for i, card := range cards {
		flashcards[i] = card.ToRawRecord()
	}

	records, err := s.cfg.Generator.Generate(ctx, flashcards)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	return records, nil
}

func (s *Session) grade(req GradeAnswers) {
	defer s.wg.Done()

	result := s.cfg.Grader.Grade(s.ctx, req.Questions, req.Saved)
	result.TimedOut = req.TimedOut
	_ = s.Dispatch(GradingFinished{Attempt: req.Attempt, Result: result})
}

// recordResult stores an accepted result. It runs under the session lock so
// that the history never holds an attempt the session discarded.
func (s *Session) recordResult(e RecordResult) {
	if s.cfg.Results == nil {
		return
	}
	rec := &ResultRecord{
		ID:        uuid.New().String(),
		SessionID: s.id,
		DeckID:    s.cfg.DeckID,
		Attempt:   e.Attempt,
		Result:    e.Result,
		CreatedAt: e.Result.GradedAt,
	}
	if err := s.cfg.Results.SaveResult(s.ctx, rec); err != nil {
		log.Printf("Session %s failed to store result: %v", s.id, err)
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current read-only view
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	st := s.state
	snap := Snapshot{
		SessionID:    s.id,
		Phase:        st.Phase,
		Index:        st.Index,
		Total:        len(st.Questions),
		TimerRunning: st.TimerRunning,
		SavedFlags:   st.Answers.SavedFlags(len(st.Questions)),
		Grading:      st.Grading,
		Result:       st.Result,
		LastError:    st.LastError,
	}
	if st.Phase == PhaseActive || st.Phase == PhaseSubmitted {
		left := st.TimeLeftSeconds
		snap.TimeLeftSeconds = &left
	}
	if st.Index >= 0 && st.Index < len(st.Questions) {
		view := questionView(st, st.Index)
		snap.Current = &view
	}
	return snap
}

func questionView(st State, i int) QuestionView {
	q := st.Questions[i]
	view := QuestionView{
		Index:            i,
		Question:         q.Question,
		IsMultipleChoice: q.IsMultipleChoice,
		Unparseable:      q.Unparseable(),
		Draft:            st.Answers.Draft(i),
		Selected:         st.Answers.Selected(i),
		Saved:            st.Answers.IsSaved(i),
	}
	for _, opt := range q.Options {
		view.Options = append(view.Options, OptionView{Label: opt.Label, Text: opt.Text})
	}
	return view
}

// Close stops the timer, abandons in-flight work and closes the transcript
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cfg.Timer.Stop()
	if s.cancelGen != nil {
		s.cancelGen()
	}
	s.cancel()
	if s.cfg.Logger != nil {
		if err := s.cfg.Logger.Close(); err != nil {
			log.Printf("Session %s failed to close transcript: %v", s.id, err)
		}
	}
	log.Printf("Session %s closed", s.id)
}

// Wait blocks until background generation and grading have finished
func (s *Session) Wait() {
	s.wg.Wait()
}
