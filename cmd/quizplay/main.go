package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"quizengine"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		dbPath     = flag.String("db", "", "Path to SQLite database (overrides config)")
		deckName   = flag.String("deck", "", "Deck to quiz on (required)")
		questions  = flag.Int("questions", 10, "Number of questions to generate")
		minutes    = flag.Int("minutes", 0, "Time limit in minutes (default from config)")
		transcript = flag.Bool("transcript", false, "Write an LLM transcript under the log directory")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)

	flag.Parse()

	if *deckName == "" {
		log.Fatal("Deck is required. Use -deck flag.")
	}

	cfg, err := quizengine.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *minutes <= 0 {
		*minutes = cfg.DefaultMinutes
	}
	if *minutes > cfg.MaxMinutes {
		log.Printf("Time limit capped at %d minutes", cfg.MaxMinutes)
		*minutes = cfg.MaxMinutes
	}
	quizengine.SetVerbose(*verbose || cfg.Verbose)

	db, err := quizengine.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()
	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	deck, err := db.GetDeckByName(*deckName)
	if err != nil {
		log.Fatalf("Failed to find deck: %v", err)
	}

	sessionID := uuid.New().String()
	generator, judge := cfg.NewCollaborators()

	graderOpts := []quizengine.GraderOption{quizengine.WithJudgeTimeout(cfg.JudgeTimeout)}
	var logger *quizengine.LLMLogger
	if *transcript {
		logger, err = quizengine.NewLLMLogger(cfg.TranscriptDir, sessionID)
		if err != nil {
			log.Fatalf("Failed to create transcript: %v", err)
		}
		if g, ok := generator.(*quizengine.OpenAIGenerator); ok {
			g.SetLogger(logger)
		}
		if j, ok := judge.(*quizengine.OpenAIJudge); ok {
			j.SetLogger(logger)
		}
		graderOpts = append(graderOpts, quizengine.WithGraderLogger(logger))
	}

	p := &player{}
	session, err := quizengine.NewSession(quizengine.SessionConfig{
		ID:                sessionID,
		DeckID:            deck.ID,
		Source:            db,
		Generator:         generator,
		Grader:            quizengine.NewGrader(judge, graderOpts...),
		Machine:           quizengine.NewMachine(quizengine.NewOptionRandomizer(), quizengine.WithWarningThresholds(cfg.WarningThresholds...)),
		Results:           db,
		Logger:            logger,
		GenerationTimeout: cfg.GenerationTimeout,
		OnEvent:           p.onEvent,
	})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	defer session.Close()

	fmt.Printf("🎯 Starting quiz on deck: %s (%d cards)\n", deck.Name, deck.CardCount)
	fmt.Printf("📝 Questions: %d, Time limit: %d minutes\n", *questions, *minutes)
	fmt.Println("⏳ Generating questions... (this may take a moment)")
	fmt.Println()

	p.count, p.minutes = *questions, *minutes
	if err := session.Dispatch(quizengine.ConfirmSetup{Count: p.count, Minutes: p.minutes}); err != nil {
		log.Fatalf("Failed to start quiz: %v", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "q" {
			break
		}
		if err := runCommand(session, p, line); err != nil {
			fmt.Printf("⚠️  %s\n", describeError(err))
			continue
		}
		printCurrent(session.Snapshot())
	}
}

// player prints session events as they happen
type player struct {
	count, minutes int
	lastPhase      quizengine.Phase
	resultShown    bool
}

// onEvent runs with the session locked; it must only print.
func (p *player) onEvent(ev quizengine.Event) {
	snap := ev.Snapshot
	if ev.Warning > 0 {
		fmt.Printf("\n⏰ %s remaining!\n", formatSeconds(ev.Warning))
	}

	if snap.Phase != p.lastPhase {
		switch snap.Phase {
		case quizengine.PhaseActive:
			fmt.Printf("✅ %d questions ready. Commands: n, p, g <i>, a <label>, t <text>, s, submit, retry, regen, quit\n\n", snap.Total)
			printCurrent(snap)
		case quizengine.PhaseSetup:
			if snap.LastError != "" {
				fmt.Printf("❌ %s\n", snap.LastError)
				fmt.Println("Type 'regen' to try again.")
			}
		case quizengine.PhaseSubmitted:
			fmt.Println("\n📨 Submitted. Grading...")
		}
		p.lastPhase = snap.Phase
		p.resultShown = false
	}

	if snap.Result != nil && !p.resultShown {
		p.resultShown = true
		printResult(snap.Result)
	}
}

func runCommand(session *quizengine.Session, p *player, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	snap := session.Snapshot()

	switch cmd {
	case "n":
		return session.Dispatch(quizengine.Navigate{Index: snap.Index + 1})
	case "p":
		return session.Dispatch(quizengine.Navigate{Index: snap.Index - 1})
	case "g":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("usage: g <question number>")
		}
		return session.Dispatch(quizengine.Navigate{Index: n - 1})
	case "a":
		return session.Dispatch(quizengine.SelectOption{Index: snap.Index, Label: arg})
	case "t":
		return session.Dispatch(quizengine.EditShortResponse{Index: snap.Index, Text: arg})
	case "s":
		return session.Dispatch(quizengine.SaveAnswer{Index: snap.Index})
	case "submit":
		return session.Dispatch(quizengine.Submit{})
	case "retry":
		return session.Dispatch(quizengine.Retry{})
	case "regen":
		if snap.Phase != quizengine.PhaseSetup {
			if err := session.Dispatch(quizengine.Regenerate{}); err != nil {
				return err
			}
		}
		fmt.Println("⏳ Generating questions...")
		return session.Dispatch(quizengine.ConfirmSetup{Count: p.count, Minutes: p.minutes})
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func describeError(err error) string {
	switch {
	case errors.Is(err, quizengine.ErrNothingSaved):
		return "Save at least one answer before submitting."
	case errors.Is(err, quizengine.ErrGenerationInFlight):
		return "Questions are still being generated."
	case errors.Is(err, quizengine.ErrQuestionIndex):
		return "No such question."
	case errors.Is(err, quizengine.ErrUnknownLabel):
		return "No such option."
	case errors.Is(err, quizengine.ErrNotMultipleChoice):
		return "This question needs a typed answer (t <text>)."
	case errors.Is(err, quizengine.ErrNotShortResponse):
		return "This question needs an option (a <label>)."
	case errors.Is(err, quizengine.ErrInvalidPhase):
		return "That is not possible right now."
	}
	return err.Error()
}

func printCurrent(snap quizengine.Snapshot) {
	if snap.Current == nil {
		return
	}
	q := snap.Current

	header := fmt.Sprintf("Question %d/%d", q.Index+1, snap.Total)
	if snap.TimeLeftSeconds != nil && snap.TimerRunning {
		header += fmt.Sprintf("  ⏱  %s", formatSeconds(*snap.TimeLeftSeconds))
	}
	fmt.Println(header)
	fmt.Printf("%s\n\n", q.Question)

	switch {
	case len(q.Options) > 0:
		for _, opt := range q.Options {
			marker := " "
			if opt.Label == q.Selected {
				marker = "*"
			}
			fmt.Printf("%s %s) %s\n", marker, opt.Label, opt.Text)
		}
	case q.Unparseable:
		fmt.Println("(options could not be read; type an answer with t <text>)")
		fmt.Printf("Answer: %s\n", q.Draft)
	default:
		fmt.Printf("Answer: %s\n", q.Draft)
	}

	saved := 0
	for _, f := range snap.SavedFlags {
		if f {
			saved++
		}
	}
	state := "not saved"
	if q.Saved {
		state = "saved"
	}
	fmt.Printf("[%s] %d/%d answers saved\n\n", state, saved, snap.Total)
}

func printResult(result *quizengine.QuizResult) {
	fmt.Println()
	if result.TimedOut {
		fmt.Println("⌛ Time is up!")
	}
	fmt.Println("📊 Results:")
	for i, status := range result.PerQuestionStatus {
		icon := "❌"
		if status == quizengine.StatusCorrect {
			icon = "✅"
		}
		fmt.Printf("  %s %d. %s\n", icon, i+1, status)
	}
	fmt.Printf("\n🏆 %d/%d correct (%s%%)\n", result.CorrectCount, result.Total, result.GradeString())

	if result.Grade >= 80 {
		fmt.Println("🌟 Excellent work!")
	} else if result.Grade >= 60 {
		fmt.Println("👍 Good job!")
	} else {
		fmt.Println("📚 Keep studying!")
	}
	fmt.Println("Type 'retry' to try the same questions again, or 'regen' for new ones.")
	fmt.Println()
}

func formatSeconds(total int) string {
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
