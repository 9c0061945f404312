package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quizengine"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, flashcards []quizengine.RawQuestionRecord) ([]quizengine.RawQuestionRecord, error) {
	return []quizengine.RawQuestionRecord{
		{Question: "Capital of France?", RelevantText: "|||A|||Paris|||B|||London", IsMultipleChoice: true},
		{Question: "Largest planet?", RelevantText: "Jupiter"},
	}, nil
}

type stubJudge struct{}

func (stubJudge) Compare(ctx context.Context, userAnswer, correctAnswer string) (bool, error) {
	return false, nil
}

type testClient struct {
	t      *testing.T
	base   string
	http   *http.Client
	server *Server
}

func (c *testClient) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func newTestServer(t *testing.T) (*testClient, int64) {
	t.Helper()
	db, err := quizengine.OpenDB(filepath.Join(t.TempDir(), "quiz.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.CloseDB() })
	if err := db.CreateTables(); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}
	deckID, err := db.CreateDeck("Planets")
	if err != nil {
		t.Fatalf("CreateDeck: %v", err)
	}
	for _, c := range []quizengine.SourceRecord{
		{Front: "France", Back: "Paris", Type: quizengine.CardTypeMultipleChoice},
		{Front: "Largest planet", Back: "Jupiter"},
	} {
		if err := db.AddFlashcard(deckID, c); err != nil {
			t.Fatalf("AddFlashcard: %v", err)
		}
	}

	cfg := quizengine.DefaultConfig()
	metrics := quizengine.NewMetrics()
	machine := quizengine.NewMachine(quizengine.NewSeededRandomizer(1))
	factory := func(deckID int64, onEvent func(quizengine.Event)) (*quizengine.Session, error) {
		return quizengine.NewSession(quizengine.SessionConfig{
			DeckID:    deckID,
			Source:    db,
			Generator: stubGenerator{},
			Grader:    quizengine.NewGrader(stubJudge{}, quizengine.WithGraderMetrics(metrics)),
			Machine:   machine,
			Results:   db,
			Metrics:   metrics,
			OnEvent:   onEvent,
		})
	}

	server := NewServer(db, newCookieStore("test-secret", cfg.SecureCookies), metrics, factory, cfg)
	ts := httptest.NewServer(server.Routes())
	t.Cleanup(func() {
		ts.Close()
		server.Close()
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testClient{t: t, base: ts.URL, http: &http.Client{Jar: jar}, server: server}, deckID
}

func (c *testClient) waitFor(what string, cond func(map[string]any) bool) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		status, snap := c.do(http.MethodGet, "/session", nil)
		if status == http.StatusOK && cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			c.t.Fatalf("timed out waiting for %s, last %d %v", what, status, snap)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQuizRoundOverHTTP(t *testing.T) {
	c, deckID := newTestServer(t)

	if status, _ := c.do(http.MethodPost, "/session/submit", nil); status != http.StatusNotFound {
		t.Fatalf("submit without session: status %d", status)
	}

	status, snap := c.do(http.MethodPost, "/session", map[string]any{"deck_id": deckID, "count": 2, "minutes": 5})
	if status != http.StatusCreated {
		t.Fatalf("start session: status %d %v", status, snap)
	}

	snap = c.waitFor("active phase", func(s map[string]any) bool { return s["phase"] == "active" })
	current := snap["current"].(map[string]any)
	var parisLabel string
	for _, o := range current["options"].([]any) {
		opt := o.(map[string]any)
		if opt["text"] == "Paris" {
			parisLabel = opt["label"].(string)
		}
		if _, leaked := opt["is_correct"]; leaked {
			t.Fatal("correctness exposed before submission")
		}
	}
	if parisLabel == "" {
		t.Fatalf("Paris not among options %v", current["options"])
	}

	if status, body := c.do(http.MethodPost, "/session/submit", nil); status != http.StatusConflict {
		t.Fatalf("submit with nothing saved: status %d %v", status, body)
	}
	if status, _ := c.do(http.MethodPost, "/session/select", map[string]any{"index": 0, "label": "Z"}); status != http.StatusBadRequest {
		t.Fatalf("unknown label: status %d", status)
	}

	for _, step := range []struct {
		path string
		body map[string]any
	}{
		{"/session/select", map[string]any{"index": 0, "label": parisLabel}},
		{"/session/save", map[string]any{"index": 0}},
		{"/session/navigate", map[string]any{"index": 1}},
		{"/session/edit", map[string]any{"index": 1, "text": "Saturn"}},
		{"/session/save", map[string]any{"index": 1}},
		{"/session/submit", nil},
	} {
		if status, body := c.do(http.MethodPost, step.path, step.body); status != http.StatusOK {
			t.Fatalf("%s: status %d %v", step.path, status, body)
		}
	}

	snap = c.waitFor("result", func(s map[string]any) bool { return s["result"] != nil })
	result := snap["result"].(map[string]any)
	if result["grade"].(float64) != 50 {
		t.Fatalf("unexpected result %v", result)
	}

	status, _ = c.do(http.MethodGet, "/decks", nil)
	if status != http.StatusOK {
		t.Fatalf("list decks: status %d", status)
	}

	var results []quizengine.ResultRecord
	resp, err := c.http.Get(c.base + "/decks/" + jsonNumber(deckID) + "/results")
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results) != 1 || results[0].Result.Grade != 50 {
		t.Fatalf("unexpected stored results %+v", results)
	}

	if status, _ := c.do(http.MethodDelete, "/session", nil); status != http.StatusNoContent {
		t.Fatalf("end session: status %d", status)
	}
	if status, _ := c.do(http.MethodGet, "/session", nil); status != http.StatusNotFound {
		t.Fatalf("session still reachable after delete: status %d", status)
	}
}

func TestStartSessionValidation(t *testing.T) {
	c, deckID := newTestServer(t)

	if status, _ := c.do(http.MethodPost, "/session", map[string]any{"deck_id": deckID, "count": 0}); status != http.StatusBadRequest {
		t.Fatalf("zero count: status %d", status)
	}
	if status, _ := c.do(http.MethodGet, "/health", nil); status != http.StatusOK {
		t.Fatalf("health: status %d", status)
	}
	status, body := c.do(http.MethodGet, "/metrics", nil)
	if status != http.StatusOK || body["sessions_started"] == nil {
		t.Fatalf("metrics: status %d %v", status, body)
	}
}

func TestCookieStoreOptions(t *testing.T) {
	plain := newCookieStore("secret", false)
	if plain.Options.Secure || !plain.Options.HttpOnly || plain.Options.SameSite != http.SameSiteLaxMode || plain.Options.Path != "/" {
		t.Fatalf("unexpected plain HTTP cookie options %+v", plain.Options)
	}
	if !newCookieStore("secret", true).Options.Secure {
		t.Fatal("TLS cookie store must set Secure")
	}

	c, deckID := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"deck_id": deckID, "count": 1, "minutes": 1})
	resp, err := c.http.Post(c.base+"/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	resp.Body.Close()
	cookie := resp.Header.Get("Set-Cookie")
	if !strings.Contains(cookie, cookieName+"=") || strings.Contains(cookie, "; Secure") || !strings.Contains(cookie, "SameSite=Lax") {
		t.Fatalf("unexpected Set-Cookie %q", cookie)
	}
	if status, _ := c.do(http.MethodGet, "/session", nil); status != http.StatusOK {
		t.Fatalf("cookie not sent back over plain HTTP: status %d", status)
	}
}

func TestDeckEndpointAndSetupLimits(t *testing.T) {
	c, deckID := newTestServer(t)

	status, deck := c.do(http.MethodGet, "/decks/"+jsonNumber(deckID), nil)
	if status != http.StatusOK || deck["name"] != "Planets" || deck["card_count"].(float64) != 2 {
		t.Fatalf("get deck: status %d %v", status, deck)
	}
	if status, _ := c.do(http.MethodGet, "/decks/999", nil); status != http.StatusNotFound {
		t.Fatalf("unknown deck: status %d", status)
	}
	if status, _ := c.do(http.MethodPost, "/session", map[string]any{"deck_id": 999, "count": 1, "minutes": 1}); status != http.StatusNotFound {
		t.Fatalf("session on unknown deck: status %d", status)
	}

	status, body := c.do(http.MethodPost, "/session", map[string]any{"deck_id": deckID, "count": 2, "minutes": math.MaxInt64})
	if status != http.StatusCreated {
		t.Fatalf("oversized minutes: status %d %v", status, body)
	}
	snap := c.waitFor("active phase", func(s map[string]any) bool { return s["phase"] == "active" })
	want := float64(quizengine.DefaultConfig().MaxMinutes * 60)
	if snap["time_left_seconds"].(float64) != want {
		t.Fatalf("time left %v, want %v", snap["time_left_seconds"], want)
	}
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	c, deckID := newTestServer(t)
	srv := c.server

	if status, body := c.do(http.MethodPost, "/session", map[string]any{"deck_id": deckID, "count": 2, "minutes": 5}); status != http.StatusCreated {
		t.Fatalf("start session: status %d %v", status, body)
	}
	c.waitFor("active phase", func(s map[string]any) bool { return s["phase"] == "active" })

	later := time.Now().Add(2 * srv.cfg.SessionIdleTimeout)
	if n := srv.evictIdle(later); n != 0 {
		t.Fatalf("session with a running countdown evicted (%d)", n)
	}

	if status, body := c.do(http.MethodPost, "/session/regenerate", nil); status != http.StatusOK {
		t.Fatalf("regenerate: status %d %v", status, body)
	}
	if n := srv.evictIdle(time.Now()); n != 0 {
		t.Fatalf("recently used session evicted (%d)", n)
	}
	if n := srv.evictIdle(later); n != 1 {
		t.Fatalf("evicted %d sessions, want 1", n)
	}
	if status, _ := c.do(http.MethodGet, "/session", nil); status != http.StatusNotFound {
		t.Fatalf("evicted session still reachable: status %d", status)
	}
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
