package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizengine"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		transcript = flag.Bool("transcript", false, "Write an LLM transcript per session")
	)
	flag.Parse()

	cfg, err := quizengine.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	quizengine.SetVerbose(cfg.Verbose)

	// Initialize database
	db, err := quizengine.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	secret := cfg.SessionSecret
	if secret == "" {
		log.Printf("SESSION_SECRET not set, using a development key")
		secret = "quiz-engine-dev-secret"
	}
	store := newCookieStore(secret, cfg.SecureCookies)

	metrics := quizengine.NewMetrics()
	machine := quizengine.NewMachine(quizengine.NewOptionRandomizer(), quizengine.WithWarningThresholds(cfg.WarningThresholds...))

	factory := func(deckID int64, onEvent func(quizengine.Event)) (*quizengine.Session, error) {
		generator, judge := cfg.NewCollaborators()
		sc := quizengine.SessionConfig{
			DeckID:            deckID,
			Source:            db,
			Generator:         generator,
			Machine:           machine,
			Results:           db,
			Metrics:           metrics,
			GenerationTimeout: cfg.GenerationTimeout,
			OnEvent:           onEvent,
		}
		graderOpts := []quizengine.GraderOption{
			quizengine.WithJudgeTimeout(cfg.JudgeTimeout),
			quizengine.WithGraderMetrics(metrics),
		}

		if *transcript {
			sc.ID = newSessionID()
			logger, err := quizengine.NewLLMLogger(cfg.TranscriptDir, sc.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to create transcript: %w", err)
			}
			if g, ok := generator.(*quizengine.OpenAIGenerator); ok {
				g.SetLogger(logger)
			}
			if j, ok := judge.(*quizengine.OpenAIJudge); ok {
				j.SetLogger(logger)
			}
			sc.Logger = logger
			graderOpts = append(graderOpts, quizengine.WithGraderLogger(logger))
		}

		sc.Grader = quizengine.NewGrader(judge, graderOpts...)
		return quizengine.NewSession(sc)
	}

	server := NewServer(db, store, metrics, factory, cfg)
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go server.SweepIdle(ctx, time.Minute)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Starting server on port %d", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("Server stopped")
}
