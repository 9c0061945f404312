package quizengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	cards []SourceRecord
	err   error
}

func (f *fakeSource) Flashcards(ctx context.Context, deckID int64) ([]SourceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]SourceRecord(nil), f.cards...), nil
}

// fakeGenerator returns records, or blocks until its context ends when block
// is set.
type fakeGenerator struct {
	mu       sync.Mutex
	records  []RawQuestionRecord
	err      error
	block    bool
	received [][]RawQuestionRecord
}

func (f *fakeGenerator) Generate(ctx context.Context, flashcards []RawQuestionRecord) ([]RawQuestionRecord, error) {
	f.mu.Lock()
	f.received = append(f.received, flashcards)
	block, records, err := f.block, f.records, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (f *fakeGenerator) calls() [][]RawQuestionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]RawQuestionRecord(nil), f.received...)
}

// fakeJudge answers from a table keyed by user answer
type fakeJudge struct {
	mu       sync.Mutex
	verdicts map[string]bool
	errs     map[string]error
	calls    int
}

func (f *fakeJudge) Compare(ctx context.Context, userAnswer, correctAnswer string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[userAnswer]; err != nil {
		return false, err
	}
	return f.verdicts[userAnswer], nil
}

func (f *fakeJudge) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// barrierJudge only answers once n calls are in flight at the same time
type barrierJudge struct {
	mu      sync.Mutex
	n       int
	arrived int
	release chan struct{}
}

func newBarrierJudge(n int) *barrierJudge {
	return &barrierJudge{n: n, release: make(chan struct{})}
}

func (b *barrierJudge) Compare(ctx context.Context, userAnswer, correctAnswer string) (bool, error) {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(2 * time.Second):
		return false, errors.New("judge calls were not concurrent")
	}
}

// gatedJudge holds every comparison until release is closed
type gatedJudge struct {
	started chan struct{}
	release chan struct{}
}

func newGatedJudge() *gatedJudge {
	return &gatedJudge{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedJudge) Compare(ctx context.Context, userAnswer, correctAnswer string) (bool, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type fakeResults struct {
	mu      sync.Mutex
	records []*ResultRecord
}

func (f *fakeResults) SaveResult(ctx context.Context, rec *ResultRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeResults) saved() []*ResultRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*ResultRecord(nil), f.records...)
}

type fakeTicker struct {
	ch      chan time.Time
	once    sync.Once
	stopped chan struct{}
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.once.Do(func() { close(f.stopped) }) }

// fakeClock hands out fake tickers and remembers them in creation order
type fakeClock struct {
	created chan *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{created: make(chan *fakeTicker, 16)}
}

func (c *fakeClock) factory(d time.Duration) Ticker {
	t := newFakeTicker()
	c.created <- t
	return t
}

func (c *fakeClock) next(t testing.TB) *fakeTicker {
	t.Helper()
	select {
	case ft := <-c.created:
		return ft
	case <-time.After(2 * time.Second):
		t.Fatalf("no ticker was started")
		return nil
	}
}

// tick delivers one tick, failing if the timer goroutine is gone
func (f *fakeTicker) tick(t testing.TB) {
	t.Helper()
	select {
	case f.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("tick was not consumed")
	}
}

func mcRecord(question, blob string) RawQuestionRecord {
	return RawQuestionRecord{Question: question, RelevantText: blob, IsMultipleChoice: true}
}

func srRecord(question, answer string) RawQuestionRecord {
	return RawQuestionRecord{Question: question, RelevantText: answer}
}
