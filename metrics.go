package quizengine

import (
	"sync"
	"time"
)

// Metrics holds process-wide session counters
type Metrics struct {
	mu                  sync.RWMutex
	SessionsStarted     int64
	GenerationsFailed   int64
	QuestionsProcessed  int64
	UnparseableQuestion int64
	Submissions         int64
	Timeouts            int64
	JudgeCallsTotal     int64
	JudgeCallsFailed    int64
	LastUpdateTime      time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		LastUpdateTime: time.Now(),
	}
}

func (m *Metrics) IncrementSessionsStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionsStarted++
	m.LastUpdateTime = time.Now()
}

func (m *Metrics) IncrementGenerationsFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerationsFailed++
	m.LastUpdateTime = time.Now()
}

func (m *Metrics) AddQuestions(total, unparseable int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuestionsProcessed += int64(total)
	m.UnparseableQuestion += int64(unparseable)
	m.LastUpdateTime = time.Now()
}

func (m *Metrics) IncrementSubmissions(timedOut bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Submissions++
	if timedOut {
		m.Timeouts++
	}
	m.LastUpdateTime = time.Now()
}

func (m *Metrics) IncrementJudgeCall(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.JudgeCallsTotal++
	if !success {
		m.JudgeCallsFailed++
	}
	m.LastUpdateTime = time.Now()
}

// MetricsSnapshot is a copy of the counters safe to serialize
type MetricsSnapshot struct {
	SessionsStarted     int64     `json:"sessions_started"`
	GenerationsFailed   int64     `json:"generations_failed"`
	QuestionsProcessed  int64     `json:"questions_processed"`
	UnparseableQuestion int64     `json:"unparseable_questions"`
	Submissions         int64     `json:"submissions"`
	Timeouts            int64     `json:"timeouts"`
	JudgeCallsTotal     int64     `json:"judge_calls_total"`
	JudgeCallsFailed    int64     `json:"judge_calls_failed"`
	LastUpdateTime      time.Time `json:"last_update_time"`
}

func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		SessionsStarted:     m.SessionsStarted,
		GenerationsFailed:   m.GenerationsFailed,
		QuestionsProcessed:  m.QuestionsProcessed,
		UnparseableQuestion: m.UnparseableQuestion,
		Submissions:         m.Submissions,
		Timeouts:            m.Timeouts,
		JudgeCallsTotal:     m.JudgeCallsTotal,
		JudgeCallsFailed:    m.JudgeCallsFailed,
		LastUpdateTime:      m.LastUpdateTime,
	}
}
