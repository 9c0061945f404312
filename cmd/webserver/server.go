package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"quizengine"
)

const cookieName = "quiz-session"

// SessionFactory builds an engine session over a deck
type SessionFactory func(deckID int64, onEvent func(quizengine.Event)) (*quizengine.Session, error)

// Server exposes quiz sessions over a JSON API. The browser cookie only
// carries the engine session ID; the session itself lives in memory.
type Server struct {
	db         *quizengine.DB
	store      sessions.Store
	metrics    *quizengine.Metrics
	newSession SessionFactory
	cfg        *quizengine.Config

	mu     sync.Mutex
	active map[string]*liveSession
	now    func() time.Time
}

// liveSession pairs an engine session with the last warning it raised
type liveSession struct {
	session *quizengine.Session

	mu          sync.Mutex
	lastWarning int
	lastSeen    time.Time
}

func (ls *liveSession) touch(now time.Time) {
	ls.mu.Lock()
	ls.lastSeen = now
	ls.mu.Unlock()
}

func (ls *liveSession) idleSince() time.Time {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.lastSeen
}

func (ls *liveSession) onEvent(ev quizengine.Event) {
	if ev.Warning == 0 {
		return
	}
	ls.mu.Lock()
	ls.lastWarning = ev.Warning
	ls.mu.Unlock()
}

// takeWarning returns and clears the pending warning
func (ls *liveSession) takeWarning() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	w := ls.lastWarning
	ls.lastWarning = 0
	return w
}

func NewServer(db *quizengine.DB, store sessions.Store, metrics *quizengine.Metrics, factory SessionFactory, cfg *quizengine.Config) *Server {
	return &Server{
		db:         db,
		store:      store,
		metrics:    metrics,
		newSession: factory,
		cfg:        cfg,
		active:     make(map[string]*liveSession),
		now:        time.Now,
	}
}

// newCookieStore builds the store binding a browser to its engine session.
// Secure is only set when the host is served over TLS.
func newCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

func newSessionID() string { return uuid.New().String() }

// Routes builds the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, s.metrics.GetSnapshot())
	})

	r.Get("/decks", s.handleListDecks)
	r.Get("/decks/{deckID}", s.handleGetDeck)
	r.Get("/decks/{deckID}/results", s.handleListResults)

	r.Route("/session", func(r chi.Router) {
		r.Post("/", s.handleStartSession)
		r.Get("/", s.withSession(s.handleSnapshot))
		r.Delete("/", s.handleEndSession)

		r.Post("/setup", s.withSession(s.handleSetup))
		r.Post("/select", s.withSession(s.handleSelect))
		r.Post("/edit", s.withSession(s.handleEdit))
		r.Post("/save", s.withSession(s.handleSave))
		r.Post("/navigate", s.withSession(s.handleNavigate))
		r.Post("/submit", s.withSession(s.dispatchOnly(quizengine.Submit{})))
		r.Post("/retry", s.withSession(s.dispatchOnly(quizengine.Retry{})))
		r.Post("/regenerate", s.withSession(s.dispatchOnly(quizengine.Regenerate{})))
	})
	return r
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, ls *liveSession)

// withSession resolves the engine session bound to the request cookie
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, _ := s.store.Get(r, cookieName)
		id, _ := cookie.Values["id"].(string)

		s.mu.Lock()
		ls := s.active[id]
		s.mu.Unlock()

		if ls == nil {
			respondError(w, http.StatusNotFound, "no active quiz session")
			return
		}
		ls.touch(s.now())
		h(w, r, ls)
	}
}

type startRequest struct {
	DeckID  int64 `json:"deck_id"`
	Count   int   `json:"count"`
	Minutes int   `json:"minutes"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Minutes == 0 {
		req.Minutes = s.cfg.DefaultMinutes
	}
	s.clampSetup(&req.Count, &req.Minutes)

	if _, err := s.db.GetDeck(req.DeckID); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	ls := &liveSession{lastSeen: s.now()}
	session, err := s.newSession(req.DeckID, ls.onEvent)
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	ls.session = session

	if err := session.Dispatch(quizengine.ConfirmSetup{Count: req.Count, Minutes: req.Minutes}); err != nil {
		session.Close()
		respondActionError(w, err)
		return
	}

	cookie, _ := s.store.Get(r, cookieName)
	previous, _ := cookie.Values["id"].(string)
	cookie.Values["id"] = session.ID()
	if err := cookie.Save(r, w); err != nil {
		session.Close()
		log.Printf("Failed to save cookie: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	s.mu.Lock()
	if old := s.active[previous]; old != nil {
		old.session.Close()
		delete(s.active, previous)
	}
	s.active[session.ID()] = ls
	s.mu.Unlock()

	respondJSON(w, http.StatusCreated, s.view(ls))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	cookie, _ := s.store.Get(r, cookieName)
	id, _ := cookie.Values["id"].(string)

	s.mu.Lock()
	if ls := s.active[id]; ls != nil {
		ls.session.Close()
		delete(s.active, id)
	}
	s.mu.Unlock()

	delete(cookie.Values, "id")
	if err := cookie.Save(r, w); err != nil {
		log.Printf("Failed to save cookie: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionView struct {
	quizengine.Snapshot
	Warning int `json:"warning,omitempty"`
}

func (s *Server) view(ls *liveSession) sessionView {
	return sessionView{Snapshot: ls.session.Snapshot(), Warning: ls.takeWarning()}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, ls *liveSession) {
	respondJSON(w, http.StatusOK, s.view(ls))
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request, ls *liveSession) {
	var req struct {
		Count   int `json:"count"`
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.clampSetup(&req.Count, &req.Minutes)
	s.dispatch(w, ls, quizengine.ConfirmSetup{Count: req.Count, Minutes: req.Minutes})
}

// clampSetup caps the requested size of a quiz at the configured limits
func (s *Server) clampSetup(count, minutes *int) {
	if *count > s.cfg.MaxQuestions {
		*count = s.cfg.MaxQuestions
	}
	if *minutes > s.cfg.MaxMinutes {
		*minutes = s.cfg.MaxMinutes
	}
}

type indexRequest struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

func decodeIndex(w http.ResponseWriter, r *http.Request) (indexRequest, bool) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, ls *liveSession) {
	if req, ok := decodeIndex(w, r); ok {
		s.dispatch(w, ls, quizengine.SelectOption{Index: req.Index, Label: req.Label})
	}
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, ls *liveSession) {
	if req, ok := decodeIndex(w, r); ok {
		s.dispatch(w, ls, quizengine.EditShortResponse{Index: req.Index, Text: req.Text})
	}
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, ls *liveSession) {
	if req, ok := decodeIndex(w, r); ok {
		s.dispatch(w, ls, quizengine.SaveAnswer{Index: req.Index})
	}
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request, ls *liveSession) {
	if req, ok := decodeIndex(w, r); ok {
		s.dispatch(w, ls, quizengine.Navigate{Index: req.Index})
	}
}

func (s *Server) dispatchOnly(action quizengine.Action) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, ls *liveSession) {
		s.dispatch(w, ls, action)
	}
}

func (s *Server) dispatch(w http.ResponseWriter, ls *liveSession, action quizengine.Action) {
	if err := ls.session.Dispatch(action); err != nil {
		respondActionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(ls))
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := s.db.ListDecks()
	if err != nil {
		log.Printf("Failed to list decks: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list decks")
		return
	}
	if decks == nil {
		decks = []quizengine.Deck{}
	}
	respondJSON(w, http.StatusOK, decks)
}

func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	deckID, err := strconv.ParseInt(chi.URLParam(r, "deckID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid deck id")
		return
	}
	deck, err := s.db.GetDeck(deckID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, deck)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	deckID, err := strconv.ParseInt(chi.URLParam(r, "deckID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid deck id")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.db.ListResults(deckID, limit)
	if err != nil {
		log.Printf("Failed to list results: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	if results == nil {
		results = []quizengine.ResultRecord{}
	}
	respondJSON(w, http.StatusOK, results)
}

// evictIdle closes sessions nobody has touched for longer than the idle
// timeout. A session with a running countdown is kept; it will time out and
// grade on its own.
func (s *Server) evictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, ls := range s.active {
		if now.Sub(ls.idleSince()) < s.cfg.SessionIdleTimeout {
			continue
		}
		snap := ls.session.Snapshot()
		if snap.TimerRunning || snap.Grading || snap.Phase == quizengine.PhaseGenerating {
			continue
		}
		ls.session.Close()
		delete(s.active, id)
		evicted++
	}
	return evicted
}

// SweepIdle evicts idle sessions every interval until ctx ends
func (s *Server) SweepIdle(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.evictIdle(s.now()); n > 0 {
				log.Printf("Evicted %d idle quiz sessions", n)
			}
		}
	}
}

// Close ends every live session
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ls := range s.active {
		ls.session.Close()
		delete(s.active, id)
	}
}

func respondActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quizengine.ErrInvalidPhase),
		errors.Is(err, quizengine.ErrGenerationInFlight),
		errors.Is(err, quizengine.ErrNothingSaved),
		errors.Is(err, quizengine.ErrSessionClosed):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, quizengine.ErrInvalidSetup),
		errors.Is(err, quizengine.ErrQuestionIndex),
		errors.Is(err, quizengine.ErrUnknownLabel),
		errors.Is(err, quizengine.ErrNotMultipleChoice),
		errors.Is(err, quizengine.ErrNotShortResponse):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Action failed: %v", err)
		respondError(w, http.StatusInternalServerError, "action failed")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg, "time": time.Now().UTC().Format(time.RFC3339)})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
